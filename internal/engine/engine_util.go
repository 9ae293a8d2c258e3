package engine

import "strings"

func NewLobbyState(code string) State {
	return State{
		Code:    code,
		Phase:   PhaseWaiting,
		Players: []Player{},
	}
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

func clonePlayers(ps []Player) []Player {
	out := make([]Player, len(ps))
	copy(out, ps)
	return out
}

func combatantCount(s State) int {
	n := 0
	for _, p := range s.Players {
		if !p.IsSpectator {
			n++
		}
	}
	return n
}

func indexByID(s State, id string) int {
	for i, p := range s.Players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func indexByName(s State, name string) int {
	for i, p := range s.Players {
		if strings.EqualFold(p.Name, name) {
			return i
		}
	}
	return -1
}

func hostOf(s State) *Player {
	for i, p := range s.Players {
		if p.IsHost {
			return &s.Players[i]
		}
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
