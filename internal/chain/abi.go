package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// zeroSumABI is the subset of the ZeroSum contract interface this client uses.
const zeroSumABI = `[
	{"type":"function","name":"gameCounter","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getGame","stateMutability":"view",
	 "inputs":[{"name":"gameId","type":"uint256"}],
	 "outputs":[
		{"name":"gameId","type":"uint256"},
		{"name":"mode","type":"uint8"},
		{"name":"status","type":"uint8"},
		{"name":"currentNumber","type":"uint256"},
		{"name":"currentPlayer","type":"address"},
		{"name":"entryFee","type":"uint256"},
		{"name":"prizePool","type":"uint256"},
		{"name":"winner","type":"address"},
		{"name":"numberGenerated","type":"bool"},
		{"name":"createdAt","type":"uint256"},
		{"name":"lastMoveAt","type":"uint256"}]},
	{"type":"function","name":"getPlayers","stateMutability":"view",
	 "inputs":[{"name":"gameId","type":"uint256"}],
	 "outputs":[{"name":"","type":"address[]"}]},
	{"type":"function","name":"getPlayerView","stateMutability":"view",
	 "inputs":[{"name":"gameId","type":"uint256"}],
	 "outputs":[
		{"name":"yourTurn","type":"bool"},
		{"name":"timeLeft","type":"uint256"},
		{"name":"yourTimeouts","type":"uint8"},
		{"name":"opponentTimeouts","type":"uint8"},
		{"name":"gameStuck","type":"bool"},
		{"name":"stuckPlayer","type":"address"}]},
	{"type":"function","name":"getUserGames","stateMutability":"view",
	 "inputs":[{"name":"user","type":"address"},{"name":"offset","type":"uint256"},{"name":"limit","type":"uint256"}],
	 "outputs":[{"name":"gameIds","type":"uint256[]"},{"name":"total","type":"uint256"}]},
	{"type":"function","name":"getGamesBatch","stateMutability":"view",
	 "inputs":[{"name":"gameIds","type":"uint256[]"}],
	 "outputs":[
		{"name":"modes","type":"uint8[]"},
		{"name":"statuses","type":"uint8[]"},
		{"name":"currentNumbers","type":"uint256[]"},
		{"name":"currentPlayers","type":"address[]"},
		{"name":"entryFees","type":"uint256[]"},
		{"name":"prizePools","type":"uint256[]"},
		{"name":"winners","type":"address[]"},
		{"name":"numberGenerated","type":"bool[]"}]},
	{"type":"function","name":"isGameBettable","stateMutability":"view",
	 "inputs":[{"name":"gameId","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]},

	{"type":"function","name":"createQuickDraw","stateMutability":"payable","inputs":[],"outputs":[]},
	{"type":"function","name":"createStrategic","stateMutability":"payable","inputs":[],"outputs":[]},
	{"type":"function","name":"joinGame","stateMutability":"payable","inputs":[{"name":"gameId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"makeMove","stateMutability":"nonpayable",
	 "inputs":[{"name":"gameId","type":"uint256"},{"name":"subtraction","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"handleTimeout","stateMutability":"nonpayable","inputs":[{"name":"gameId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"cancelWaitingGame","stateMutability":"nonpayable","inputs":[{"name":"gameId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"forceFinishInactiveGame","stateMutability":"nonpayable","inputs":[{"name":"gameId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[],"outputs":[]},

	{"type":"event","name":"GameCreated","anonymous":false,"inputs":[
		{"name":"gameId","type":"uint256","indexed":true},
		{"name":"creator","type":"address","indexed":true},
		{"name":"mode","type":"uint8","indexed":false},
		{"name":"entryFee","type":"uint256","indexed":false}]},
	{"type":"event","name":"PlayerJoined","anonymous":false,"inputs":[
		{"name":"gameId","type":"uint256","indexed":true},
		{"name":"player","type":"address","indexed":true}]},
	{"type":"event","name":"MoveMade","anonymous":false,"inputs":[
		{"name":"gameId","type":"uint256","indexed":true},
		{"name":"player","type":"address","indexed":true},
		{"name":"subtraction","type":"uint256","indexed":false},
		{"name":"newNumber","type":"uint256","indexed":false}]},
	{"type":"event","name":"GameFinished","anonymous":false,"inputs":[
		{"name":"gameId","type":"uint256","indexed":true},
		{"name":"winner","type":"address","indexed":true},
		{"name":"prize","type":"uint256","indexed":false}]},
	{"type":"event","name":"NumberGenerated","anonymous":false,"inputs":[
		{"name":"gameId","type":"uint256","indexed":true},
		{"name":"number","type":"uint256","indexed":false}]},
	{"type":"event","name":"TimeoutHandled","anonymous":false,"inputs":[
		{"name":"gameId","type":"uint256","indexed":true},
		{"name":"player","type":"address","indexed":true},
		{"name":"timeoutCount","type":"uint8","indexed":false}]},
	{"type":"event","name":"GameCancelled","anonymous":false,"inputs":[
		{"name":"gameId","type":"uint256","indexed":true},
		{"name":"creator","type":"address","indexed":true}]}
]`

// Contract method names, also used as TxResult actions.
const (
	MethodGameCounter     = "gameCounter"
	MethodGetGame         = "getGame"
	MethodGetPlayers      = "getPlayers"
	MethodGetPlayerView   = "getPlayerView"
	MethodGetUserGames    = "getUserGames"
	MethodGetGamesBatch   = "getGamesBatch"
	MethodIsGameBettable  = "isGameBettable"
	MethodCreateQuickDraw = "createQuickDraw"
	MethodCreateStrategic = "createStrategic"
	MethodJoinGame        = "joinGame"
	MethodMakeMove        = "makeMove"
	MethodHandleTimeout   = "handleTimeout"
	MethodCancelWaiting   = "cancelWaitingGame"
	MethodForceFinish     = "forceFinishInactiveGame"
	MethodWithdraw        = "withdraw"
)

// ParseABI parses the embedded contract ABI.
func ParseABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(zeroSumABI))
}
