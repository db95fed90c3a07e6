package ws

import "encoding/json"

// client → server
type Inbound struct {
	Type        string `json:"type"`
	Subtraction uint64 `json:"subtraction,omitempty"`
}

// server → client
type Outbound struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type TxPayload struct {
	Action  string `json:"action"`
	GameID  uint64 `json:"game_id"`
	Success bool   `json:"success"`
	TxHash  string `json:"tx_hash,omitempty"`
	Error   string `json:"error,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func encode(typ string, data any) []byte {
	b, err := json.Marshal(Outbound{Type: typ, Data: data})
	if err != nil {
		b, _ = json.Marshal(Outbound{Type: MsgError, Data: ErrorPayload{Message: "encode: " + err.Error()}})
	}
	return b
}
