package types

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Err    string `json:"err"`
	Code   string `json:"code"`
	Kind   string `json:"kind"`
	GameID int64  `json:"gameId,omitempty"`
}

type CreateSessionResponse struct {
	GameID int64 `json:"gameId"`
}

type JoinResponse struct {
	DidConnect bool `json:"didConnect"`
	Slot       int  `json:"slot"`
}

// HostCheckResponse lists seat occupants in slot order; empty seats are "".
type HostCheckResponse struct {
	Player1 string `json:"player1"`
	Player2 string `json:"player2"`
	Player3 string `json:"player3"`
	Player4 string `json:"player4"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

type GameStateResponse struct {
	GameState string `json:"gameState"`
	IsActive  bool   `json:"isActive"`
}

type AckResponse struct {
	AckCount int `json:"ackCount"`
}

type ReadyResponse struct {
	IsReady bool `json:"isReady"`
}

type ScoreResponse struct {
	FinalScore int `json:"finalScore"`
}
