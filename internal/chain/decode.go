package chain

import (
	"fmt"
	"math/big"
	"time"

	"zerosum_client/internal/domain"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func asBig(v interface{}) (*big.Int, error) {
	b, ok := v.(*big.Int)
	if !ok || b == nil {
		return nil, fmt.Errorf("decode: want *big.Int, got %T", v)
	}
	return b, nil
}

func asUint64(v interface{}) (uint64, error) {
	b, err := asBig(v)
	if err != nil {
		return 0, err
	}
	if !b.IsUint64() {
		return 0, fmt.Errorf("decode: %s overflows uint64", b)
	}
	return b.Uint64(), nil
}

func asUint8(v interface{}) (uint8, error) {
	u, ok := v.(uint8)
	if !ok {
		return 0, fmt.Errorf("decode: want uint8, got %T", v)
	}
	return u, nil
}

func asAddress(v interface{}) (common.Address, error) {
	a, ok := v.(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("decode: want address, got %T", v)
	}
	return a, nil
}

func asBool(v interface{}) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("decode: want bool, got %T", v)
	}
	return b, nil
}

func unixTime(v interface{}) (time.Time, error) {
	n, err := asUint64(v)
	if err != nil || n == 0 {
		return time.Time{}, err
	}
	return time.Unix(int64(n), 0).UTC(), nil
}

// gameFromOutputs maps getGame outputs onto domain.Game. Players come from a
// separate getPlayers call.
func gameFromOutputs(out []interface{}) (domain.Game, error) {
	var g domain.Game
	if len(out) != 11 {
		return g, fmt.Errorf("decode getGame: want 11 outputs, got %d", len(out))
	}

	var err error
	if g.ID, err = asUint64(out[0]); err != nil {
		return g, err
	}
	mode, err := asUint8(out[1])
	if err != nil {
		return g, err
	}
	status, err := asUint8(out[2])
	if err != nil {
		return g, err
	}
	g.Mode = domain.GameMode(mode)
	g.Status = domain.GameStatus(status)

	if g.CurrentNumber, err = asUint64(out[3]); err != nil {
		return g, err
	}
	if g.CurrentPlayer, err = asAddress(out[4]); err != nil {
		return g, err
	}
	if g.EntryFee, err = asBig(out[5]); err != nil {
		return g, err
	}
	if g.PrizePool, err = asBig(out[6]); err != nil {
		return g, err
	}
	if g.Winner, err = asAddress(out[7]); err != nil {
		return g, err
	}
	if g.NumberGenerated, err = asBool(out[8]); err != nil {
		return g, err
	}
	if g.CreatedAt, err = unixTime(out[9]); err != nil {
		return g, err
	}
	if g.LastMoveAt, err = unixTime(out[10]); err != nil {
		return g, err
	}
	return g, nil
}

func playerViewFromOutputs(out []interface{}) (domain.PlayerView, error) {
	var v domain.PlayerView
	if len(out) != 6 {
		return v, fmt.Errorf("decode getPlayerView: want 6 outputs, got %d", len(out))
	}

	var err error
	if v.YourTurn, err = asBool(out[0]); err != nil {
		return v, err
	}
	if v.TimeLeft, err = asUint64(out[1]); err != nil {
		return v, err
	}
	if v.YourTimeouts, err = asUint8(out[2]); err != nil {
		return v, err
	}
	if v.OpponentTimeouts, err = asUint8(out[3]); err != nil {
		return v, err
	}
	if v.GameStuck, err = asBool(out[4]); err != nil {
		return v, err
	}
	if v.StuckPlayer, err = asAddress(out[5]); err != nil {
		return v, err
	}
	return v, nil
}

func playersFromOutputs(out []interface{}) ([]common.Address, error) {
	if len(out) != 1 {
		return nil, fmt.Errorf("decode getPlayers: want 1 output, got %d", len(out))
	}
	players, ok := out[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("decode getPlayers: want []address, got %T", out[0])
	}
	return players, nil
}

func userGamesFromOutputs(out []interface{}) (domain.UserGames, error) {
	res := domain.UserGames{Source: domain.SourceIndexed}
	if len(out) != 2 {
		return res, fmt.Errorf("decode getUserGames: want 2 outputs, got %d", len(out))
	}
	ids, ok := out[0].([]*big.Int)
	if !ok {
		return res, fmt.Errorf("decode getUserGames: want []uint256, got %T", out[0])
	}
	for _, id := range ids {
		if id == nil || !id.IsUint64() {
			continue
		}
		res.GameIDs = append(res.GameIDs, id.Uint64())
	}
	total, err := asUint64(out[1])
	if err != nil {
		return res, err
	}
	res.Total = total
	return res, nil
}

// gamesFromBatch zips the parallel arrays returned by getGamesBatch.
func gamesFromBatch(ids []uint64, out []interface{}) ([]domain.Game, error) {
	if len(out) != 8 {
		return nil, fmt.Errorf("decode getGamesBatch: want 8 outputs, got %d", len(out))
	}
	modes, ok1 := out[0].([]uint8)
	statuses, ok2 := out[1].([]uint8)
	numbers, ok3 := out[2].([]*big.Int)
	current, ok4 := out[3].([]common.Address)
	fees, ok5 := out[4].([]*big.Int)
	pools, ok6 := out[5].([]*big.Int)
	winners, ok7 := out[6].([]common.Address)
	generated, ok8 := out[7].([]bool)
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6 && ok7 && ok8) {
		return nil, fmt.Errorf("decode getGamesBatch: unexpected output types")
	}

	n := len(ids)
	for _, l := range []int{len(modes), len(statuses), len(numbers), len(current), len(fees), len(pools), len(winners), len(generated)} {
		if l != n {
			return nil, fmt.Errorf("decode getGamesBatch: length mismatch %d != %d", l, n)
		}
	}

	games := make([]domain.Game, 0, n)
	for i, id := range ids {
		num := uint64(0)
		if numbers[i] != nil && numbers[i].IsUint64() {
			num = numbers[i].Uint64()
		}
		games = append(games, domain.Game{
			ID:              id,
			Mode:            domain.GameMode(modes[i]),
			Status:          domain.GameStatus(statuses[i]),
			CurrentNumber:   num,
			CurrentPlayer:   current[i],
			EntryFee:        fees[i],
			PrizePool:       pools[i],
			Winner:          winners[i],
			NumberGenerated: generated[i],
		})
	}
	return games, nil
}

// DecodeLog turns a raw contract log into a typed event.
func DecodeLog(parsed abi.ABI, lg types.Log) (domain.Event, error) {
	var ev domain.Event
	if len(lg.Topics) < 2 {
		return ev, fmt.Errorf("decode log: need gameId topic, got %d topics", len(lg.Topics))
	}

	evABI, err := parsed.EventByID(lg.Topics[0])
	if err != nil {
		return ev, fmt.Errorf("decode log: %w", err)
	}

	ev.Kind = domain.EventKind(evABI.Name)
	gameID := new(big.Int).SetBytes(lg.Topics[1].Bytes())
	if !gameID.IsUint64() {
		return ev, fmt.Errorf("decode log: gameId overflows uint64")
	}
	ev.GameID = gameID.Uint64()
	ev.BlockNumber = lg.BlockNumber
	ev.TxHash = lg.TxHash
	ev.LogIndex = lg.Index

	// second indexed topic is always an address (creator/player/winner)
	var actor common.Address
	if len(lg.Topics) >= 3 {
		actor = common.BytesToAddress(lg.Topics[2].Bytes())
	}

	fields := make(map[string]interface{})
	if err := parsed.UnpackIntoMap(fields, evABI.Name, lg.Data); err != nil {
		return ev, fmt.Errorf("decode %s: %w", evABI.Name, err)
	}

	switch ev.Kind {
	case domain.EventGameCreated:
		ev.Player = actor
		mode, err := asUint8(fields["mode"])
		if err != nil {
			return ev, err
		}
		ev.Mode = domain.GameMode(mode)
		if ev.EntryFee, err = asBig(fields["entryFee"]); err != nil {
			return ev, err
		}
	case domain.EventPlayerJoined, domain.EventGameCancelled:
		ev.Player = actor
	case domain.EventMoveMade:
		ev.Player = actor
		if ev.Subtraction, err = asUint64(fields["subtraction"]); err != nil {
			return ev, err
		}
		if ev.NewNumber, err = asUint64(fields["newNumber"]); err != nil {
			return ev, err
		}
	case domain.EventGameFinished:
		ev.Winner = actor
		if ev.Prize, err = asBig(fields["prize"]); err != nil {
			return ev, err
		}
	case domain.EventNumberGenerated:
		if ev.Number, err = asUint64(fields["number"]); err != nil {
			return ev, err
		}
	case domain.EventTimeoutHandled:
		ev.Player = actor
		if ev.TimeoutCount, err = asUint8(fields["timeoutCount"]); err != nil {
			return ev, err
		}
	}
	return ev, nil
}
