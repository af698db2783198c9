// Package types holds the JSON bodies exchanged with game clients.
package types

type CreateSessionRequest struct {
	HostID   string `json:"hostId"`
	Name     string `json:"name"`
	Password string `json:"password,omitempty"`
}

type JoinRequest struct {
	PlayerID string `json:"playerId"`
	Password string `json:"password,omitempty"`
}

type StartGameRequest struct {
	HostID string `json:"hostId"`
}

type AdvanceWaveRequest struct {
	WaveNumber int `json:"waveNumber"`
}

// KillsRequest is the list of zombie ids a client saw die.
type KillsRequest []string

// AckRequest may omit PlayerID; anonymous acks are counted but not deduplicated.
type AckRequest struct {
	PlayerID string `json:"playerId,omitempty"`
}

type HealthRequest struct {
	Health *int `json:"health"`
}

type ScoreRequest struct {
	Delta int `json:"delta"`
}

type AddItemRequest struct {
	ItemName string `json:"itemName"`
}
