package ws

const (
	// client - server
	MsgPing          = "ping"
	MsgRefresh       = "refresh"
	MsgMove          = "move"
	MsgCancelUnstick = "cancel_unstick"

	// server - client
	MsgReady   = "ready"
	MsgPong    = "pong"
	MsgState   = "state"
	MsgEvent   = "event"
	MsgMyGames = "my_games"
	MsgTx      = "tx"
	MsgClosed  = "closed"
	MsgError   = "error"
)
