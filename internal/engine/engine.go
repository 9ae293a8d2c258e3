package engine

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

var ErrInvalidCode = errors.New("lobby code must be exactly 6 uppercase alphanumeric characters")
var ErrCodeTaken = errors.New("lobby code already exists")
var ErrNotFound = errors.New("lobby not found")
var ErrNameTaken = errors.New("username already taken in this lobby")
var ErrLobbyFull = errors.New("lobby is full (max 20 players)")
var ErrLobbyClosed = errors.New("lobby is no longer accepting players")
var ErrNotHost = errors.New("only the host can start the game")
var ErrNotEnoughPlayers = errors.New("need at least 2 players to start")
var ErrColorsMissing = errors.New("every player needs a detected color before starting")
var ErrUnknownPlayer = errors.New("player not found in this lobby")
var ErrSpectator = errors.New("spectators cannot take part in combat")
var ErrMatchNotActive = errors.New("match is not active")
var ErrAlreadyStarted = errors.New("game has already started")
var ErrUnsupportedCommand = errors.New("unsupported command")

const (
	MaxHealth     = 100
	MaxCombatants = 20
	MinPlayers    = 2
	DefaultDamage = 25
	DefaultHeal   = 25
)

type Phase string

const (
	PhaseWaiting Phase = "waiting"
	PhaseActive  Phase = "active"
	PhaseEnded   Phase = "ended"
)

type RGB struct {
	R uint8
	G uint8
	B uint8
}

// HostColor is assigned to the lobby creator up front so the host is
// recognizable before any camera detection has run.
var HostColor = RGB{R: 96, G: 96, B: 80}

type Player struct {
	ID          string
	Name        string
	IsHost      bool
	IsSpectator bool
	Health      int
	MaxHealth   int
	Color       *RGB
}

type State struct {
	Code      string
	Phase     Phase
	Players   []Player
	StartedAt time.Time
}

type CommandType string

const (
	CmdJoin        CommandType = "Join"
	CmdSetColor    CommandType = "SetColor"
	CmdStartGame   CommandType = "StartGame"
	CmdShoot       CommandType = "Shoot"
	CmdHeal        CommandType = "Heal"
	CmdResetHealth CommandType = "ResetHealth"
	CmdLeave       CommandType = "Leave"
)

type Command struct {
	Type        CommandType
	ActorID     string // originating connection id
	Name        string // Join: player name; SetColor: name of the detected player
	AsHost      bool   // Join: the lobby creator joins as host
	IsSpectator bool
	TargetID    string // Shoot/Heal/ResetHealth
	Amount      int    // damage or heal amount; <=0 uses the default
	Color       RGB    // SetColor
	At          time.Time
}

type EventType string

const (
	EvtPlayerJoined  EventType = "PlayerJoined"
	EvtColorAssigned EventType = "ColorAssigned"
	EvtGameStarted   EventType = "GameStarted"
	EvtPlayerHit     EventType = "PlayerHit"
	EvtPlayerHealed  EventType = "PlayerHealed"
	EvtPlayerLeft    EventType = "PlayerLeft"
	EvtHostChanged   EventType = "HostChanged"
	EvtGameEnded     EventType = "GameEnded"
	EvtLobbyEmpty    EventType = "LobbyEmpty"
)

type Event struct {
	Type     EventType
	PlayerID string
	TargetID string
	Amount   int
	Health   int
	Killed   bool
	Winner   *Player // nil on EvtGameEnded means a draw
}

var codePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

func ValidateLobbyCode(code string) error {
	if !codePattern.MatchString(code) {
		return ErrInvalidCode
	}
	return nil
}

// Apply validates cmd against s and, on success, returns the events it caused
// plus the next state. The input state is never mutated: a failed command
// returns s unchanged, so callers validate fully before committing anything.
func Apply(s State, cmd Command) ([]Event, State, error) {
	switch cmd.Type {
	case CmdJoin:
		return applyJoin(s, cmd)
	case CmdSetColor:
		return applySetColor(s, cmd)
	case CmdStartGame:
		return applyStartGame(s, cmd)
	case CmdShoot:
		return applyShoot(s, cmd)
	case CmdHeal:
		return applyHeal(s, cmd, false)
	case CmdResetHealth:
		return applyHeal(s, cmd, true)
	case CmdLeave:
		return applyLeave(s, cmd)
	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func applyJoin(s State, cmd Command) ([]Event, State, error) {
	for _, p := range s.Players {
		if strings.EqualFold(p.Name, cmd.Name) {
			return nil, s, ErrNameTaken
		}
	}
	if !cmd.IsSpectator && combatantCount(s) >= MaxCombatants {
		return nil, s, ErrLobbyFull
	}
	if s.Phase != PhaseWaiting {
		return nil, s, ErrLobbyClosed
	}

	p := Player{
		ID:          cmd.ActorID,
		Name:        cmd.Name,
		IsHost:      cmd.AsHost,
		IsSpectator: cmd.IsSpectator,
		Health:      MaxHealth,
		MaxHealth:   MaxHealth,
	}
	if cmd.AsHost {
		c := HostColor
		p.Color = &c
	}

	newState := s
	newState.Players = append(clonePlayers(s.Players), p)
	return []Event{{Type: EvtPlayerJoined, PlayerID: p.ID}}, newState, nil
}

func applySetColor(s State, cmd Command) ([]Event, State, error) {
	idx := indexByName(s, cmd.Name)
	if idx < 0 {
		return nil, s, ErrUnknownPlayer
	}

	newState := s
	newState.Players = clonePlayers(s.Players)
	c := cmd.Color
	newState.Players[idx].Color = &c
	return []Event{{Type: EvtColorAssigned, PlayerID: newState.Players[idx].ID}}, newState, nil
}

func applyStartGame(s State, cmd Command) ([]Event, State, error) {
	if s.Phase != PhaseWaiting {
		return nil, s, ErrAlreadyStarted
	}
	host := hostOf(s)
	if host == nil || host.ID != cmd.ActorID {
		return nil, s, ErrNotHost
	}
	if len(s.Players) < MinPlayers {
		return nil, s, ErrNotEnoughPlayers
	}
	for _, p := range s.Players {
		if !p.IsSpectator && p.Color == nil {
			return nil, s, ErrColorsMissing
		}
	}

	newState := s
	newState.Phase = PhaseActive
	newState.StartedAt = cmd.At
	newState.Players = clonePlayers(s.Players)
	for i := range newState.Players {
		newState.Players[i].Health = newState.Players[i].MaxHealth
	}
	return []Event{{Type: EvtGameStarted}}, newState, nil
}

func applyShoot(s State, cmd Command) ([]Event, State, error) {
	if s.Phase != PhaseActive {
		return nil, s, ErrMatchNotActive
	}
	shooterIdx := indexByID(s, cmd.ActorID)
	targetIdx := indexByID(s, cmd.TargetID)
	if shooterIdx < 0 || targetIdx < 0 {
		return nil, s, ErrUnknownPlayer
	}
	if s.Players[shooterIdx].IsSpectator || s.Players[targetIdx].IsSpectator {
		return nil, s, ErrSpectator
	}

	damage := cmd.Amount
	if damage <= 0 {
		damage = DefaultDamage
	}

	newState := s
	newState.Players = clonePlayers(s.Players)
	target := &newState.Players[targetIdx]
	wasAlive := target.Health > 0
	target.Health = clamp(target.Health-damage, 0, target.MaxHealth)
	killed := wasAlive && target.Health == 0

	events := []Event{{
		Type:     EvtPlayerHit,
		PlayerID: newState.Players[shooterIdx].ID,
		TargetID: target.ID,
		Amount:   damage,
		Health:   target.Health,
		Killed:   killed,
	}}

	if winner, over := checkWinCondition(newState); over {
		newState.Phase = PhaseEnded
		events = append(events, Event{Type: EvtGameEnded, Winner: winner})
	}
	return events, newState, nil
}

func applyHeal(s State, cmd Command, reset bool) ([]Event, State, error) {
	idx := indexByID(s, cmd.TargetID)
	if idx < 0 {
		return nil, s, ErrUnknownPlayer
	}

	newState := s
	newState.Players = clonePlayers(s.Players)
	p := &newState.Players[idx]

	amount := cmd.Amount
	if reset {
		amount = p.MaxHealth
		p.Health = p.MaxHealth
	} else {
		if amount <= 0 {
			amount = DefaultHeal
		}
		p.Health = clamp(p.Health+amount, 0, p.MaxHealth)
	}

	return []Event{{
		Type:     EvtPlayerHealed,
		PlayerID: p.ID,
		Amount:   amount,
		Health:   p.Health,
	}}, newState, nil
}

func applyLeave(s State, cmd Command) ([]Event, State, error) {
	idx := indexByID(s, cmd.ActorID)
	if idx < 0 {
		return nil, s, ErrUnknownPlayer
	}

	wasHost := s.Players[idx].IsHost
	left := s.Players[idx].ID

	newState := s
	newState.Players = append(clonePlayers(s.Players[:idx]), s.Players[idx+1:]...)

	events := []Event{{Type: EvtPlayerLeft, PlayerID: left}}
	if wasHost && len(newState.Players) > 0 {
		// Host succession follows insertion order.
		newState.Players[0].IsHost = true
		events = append(events, Event{Type: EvtHostChanged, PlayerID: newState.Players[0].ID})
	}
	if len(newState.Players) == 0 {
		events = append(events, Event{Type: EvtLobbyEmpty})
	}
	return events, newState, nil
}

// checkWinCondition reports whether an active match is over: one combatant
// left standing wins, zero left is a draw (winner == nil). A lobby that never
// had two combatants cannot end this way.
func checkWinCondition(s State) (*Player, bool) {
	if combatantCount(s) < MinPlayers {
		return nil, false
	}
	var alive []Player
	for _, p := range s.Players {
		if !p.IsSpectator && p.Health > 0 {
			alive = append(alive, p)
		}
	}
	switch len(alive) {
	case 1:
		w := alive[0]
		return &w, true
	case 0:
		return nil, true
	default:
		return nil, false
	}
}
