package types

import (
	"encoding/json"

	"github.com/photonarena/lasertag-backend/internal/engine"
)

// Inbound event names (client -> server).
const (
	EventCreateLobby   = "createLobby"
	EventJoinLobby     = "joinLobby"
	EventJoinRoom      = "joinRoom"
	EventColorDetected = "playerColorDetected"
	EventStartGame     = "startGame"
	EventPlayerShoot   = "playerShoot"
	EventHealPlayer    = "healPlayer"
	EventResetHealth   = "resetPlayerHealth"
)

// Outbound event names (server -> client).
const (
	EventCreateLobbyResponse = "createLobbyResponse"
	EventJoinLobbyResponse   = "joinLobbyResponse"
	EventStartGameResponse   = "startGameResponse"
	EventLobbyUpdated        = "lobbyUpdated"
	EventGameStarted         = "gameStarted"
	EventGameEnded           = "gameEnded"
	EventPlayerHit           = "playerHit"
	EventPlayerHealed        = "playerHealed"
	EventError               = "error"
)

type ClientMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type ServerMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type CreateLobbyPayload struct {
	PlayerName  string `json:"playerName"`
	LobbyCode   string `json:"lobbyCode"`
	IsSpectator bool   `json:"isSpectator,omitempty"`
}

type JoinLobbyPayload struct {
	PlayerName  string `json:"playerName"`
	LobbyCode   string `json:"lobbyCode"`
	IsSpectator bool   `json:"isSpectator,omitempty"`
}

type JoinRoomPayload struct {
	LobbyCode string `json:"lobbyCode"`
}

type RGBPayload struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

type ColorDetectedPayload struct {
	LobbyCode string     `json:"lobbyCode"`
	Username  string     `json:"username"`
	RGB       RGBPayload `json:"rgb"`
}

type StartGamePayload struct {
	LobbyCode string `json:"lobbyCode"`
}

type PlayerShootPayload struct {
	TargetPlayerID string `json:"targetPlayerId"`
	LobbyCode      string `json:"lobbyCode"`
	Damage         int    `json:"damage,omitempty"`
}

type HealPlayerPayload struct {
	PlayerID   string `json:"playerId"`
	LobbyCode  string `json:"lobbyCode"`
	HealAmount int    `json:"healAmount,omitempty"`
}

type ResetHealthPayload struct {
	PlayerID  string `json:"playerId"`
	LobbyCode string `json:"lobbyCode"`
}

// PlayerSnapshot flattens the optional detected color into r/g/b fields, the
// shape the browser client reads.
type PlayerSnapshot struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsHost      bool   `json:"isHost"`
	IsSpectator bool   `json:"isSpectator"`
	Health      int    `json:"health"`
	MaxHealth   int    `json:"maxHealth"`
	R           *uint8 `json:"r,omitempty"`
	G           *uint8 `json:"g,omitempty"`
	B           *uint8 `json:"b,omitempty"`
}

// LobbySnapshot is the full state of one lobby. Every successful mutation
// broadcasts one of these rather than a delta, so a client view rebuilds from
// scratch on each update.
type LobbySnapshot struct {
	Code    string           `json:"code"`
	State   string           `json:"state"`
	Players []PlayerSnapshot `json:"players"`
}

type LobbyResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Lobby   *LobbySnapshot `json:"lobby"`
}

type StartGameResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type PlayerHitPayload struct {
	ShooterID    string `json:"shooterId"`
	TargetID     string `json:"targetId"`
	Damage       int    `json:"damage"`
	TargetHealth int    `json:"targetHealth"`
	IsKilled     bool   `json:"isKilled"`
}

type PlayerHealedPayload struct {
	PlayerID   string `json:"playerId"`
	HealAmount int    `json:"healAmount"`
	NewHealth  int    `json:"newHealth"`
}

type GameEndedPayload struct {
	Winner    *PlayerSnapshot `json:"winner"`
	LobbyCode string          `json:"lobbyCode"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func SnapshotPlayer(p engine.Player) PlayerSnapshot {
	snap := PlayerSnapshot{
		ID:          p.ID,
		Name:        p.Name,
		IsHost:      p.IsHost,
		IsSpectator: p.IsSpectator,
		Health:      p.Health,
		MaxHealth:   p.MaxHealth,
	}
	if p.Color != nil {
		r, g, b := p.Color.R, p.Color.G, p.Color.B
		snap.R, snap.G, snap.B = &r, &g, &b
	}
	return snap
}

func SnapshotLobby(s engine.State) LobbySnapshot {
	players := make([]PlayerSnapshot, len(s.Players))
	for i, p := range s.Players {
		players[i] = SnapshotPlayer(p)
	}
	return LobbySnapshot{
		Code:    s.Code,
		State:   string(s.Phase),
		Players: players,
	}
}
