package lobby

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/photonarena/lasertag-backend/internal/engine"
	"github.com/photonarena/lasertag-backend/internal/types"
)

type Msg interface{ isLobbyMsg() }

// Join registers a connection as a player. AsHost is set only by the
// create-lobby path; the reply goes to ResponseEvent so the same flow serves
// createLobbyResponse and joinLobbyResponse.
type Join struct {
	ConnID        string
	Name          string
	AsHost        bool
	IsSpectator   bool
	Outbox        chan types.ServerMessage
	ResponseEvent string
}

func (Join) isLobbyMsg() {}

// Watch re-attaches a connection to the room without creating a player, e.g.
// after a client-side page navigation.
type Watch struct {
	ConnID string
	Outbox chan types.ServerMessage
}

func (Watch) isLobbyMsg() {}

type Leave struct{ ConnID string }

func (Leave) isLobbyMsg() {}

// FromClient carries a validated-shape command from the transport layer.
// ResponseEvent names the unicast reply event for failures; empty means a
// generic error event.
type FromClient struct {
	ConnID        string
	Cmd           engine.Command
	ResponseEvent string
}

func (FromClient) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

// View is a test-only reflection of lobby internals, read on the actor
// goroutine so there are no data races.
type View struct {
	NumClients int
	State      engine.State
}

type Lobby struct {
	inbox   chan Msg
	state   engine.State
	clients map[string]chan types.ServerMessage
	onEmpty func(code string)
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewLobby starts the lobby actor. onEmpty is called (from the actor
// goroutine) when the last player leaves, so the owner can drop the code.
func NewLobby(parent context.Context, initial engine.State, onEmpty func(code string)) *Lobby {
	ctx, cancel := context.WithCancel(parent)

	l := &Lobby{
		inbox:   make(chan Msg, 64),
		state:   initial,
		clients: make(map[string]chan types.ServerMessage),
		onEmpty: onEmpty,
		ctx:     ctx,
		cancel:  cancel,
	}

	go l.loop()
	return l
}

func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

func (l *Lobby) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				l.handleJoin(msg)

			case Watch:
				l.clients[msg.ConnID] = msg.Outbox
				l.send(msg.ConnID, types.ServerMessage{
					Event: types.EventLobbyUpdated,
					Data:  types.SnapshotLobby(l.state),
				})

			case Leave:
				l.handleLeave(msg)

			case FromClient:
				l.handleCommand(msg)

			case GetState:
				msg.Reply <- View{
					NumClients: len(l.clients),
					State:      l.state,
				}

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

func (l *Lobby) handleJoin(msg Join) {
	cmd := engine.Command{
		Type:        engine.CmdJoin,
		ActorID:     msg.ConnID,
		Name:        msg.Name,
		AsHost:      msg.AsHost,
		IsSpectator: msg.IsSpectator,
	}
	_, newState, err := engine.Apply(l.state, cmd)
	if err != nil {
		// Not a member yet, so reply on the offered outbox directly.
		select {
		case msg.Outbox <- types.ServerMessage{
			Event: msg.ResponseEvent,
			Data:  types.LobbyResponse{Success: false, Message: err.Error(), Lobby: nil},
		}:
		default:
		}
		return
	}

	l.state = newState
	l.clients[msg.ConnID] = msg.Outbox

	okMsg := "Successfully joined lobby"
	if msg.AsHost {
		okMsg = "Lobby created successfully"
	}
	snap := types.SnapshotLobby(l.state)
	l.send(msg.ConnID, types.ServerMessage{
		Event: msg.ResponseEvent,
		Data:  types.LobbyResponse{Success: true, Message: okMsg, Lobby: &snap},
	})
	l.broadcast(types.ServerMessage{Event: types.EventLobbyUpdated, Data: snap})
}

func (l *Lobby) handleLeave(msg Leave) {
	delete(l.clients, msg.ConnID)

	events, newState, err := engine.Apply(l.state, engine.Command{
		Type:    engine.CmdLeave,
		ActorID: msg.ConnID,
	})
	if err != nil {
		// Connection was a watcher, not a player. Nothing else to do.
		return
	}
	l.state = newState

	if engine.ContainsEvent(events, engine.EvtLobbyEmpty) {
		zap.L().Info("lobby empty, shutting down", zap.String("code", l.state.Code))
		if l.onEmpty != nil {
			l.onEmpty(l.state.Code)
		}
		l.shutdown()
		return
	}

	l.broadcast(types.ServerMessage{
		Event: types.EventLobbyUpdated,
		Data:  types.SnapshotLobby(l.state),
	})
}

func (l *Lobby) handleCommand(msg FromClient) {
	cmd := msg.Cmd
	cmd.At = time.Now()

	events, newState, err := engine.Apply(l.state, cmd)
	if err != nil {
		l.replyError(msg, err)
		return
	}
	l.state = newState

	if cmd.Type == engine.CmdStartGame {
		l.send(msg.ConnID, types.ServerMessage{
			Event: msg.ResponseEvent,
			Data:  types.StartGameResponse{Success: true, Message: "Game started successfully"},
		})
		zap.L().Info("game started",
			zap.String("code", l.state.Code),
			zap.Int("players", len(l.state.Players)))
	}

	snap := types.SnapshotLobby(l.state)
	var ended *types.ServerMessage

	for _, ev := range events {
		switch ev.Type {
		case engine.EvtGameStarted:
			l.broadcast(types.ServerMessage{Event: types.EventGameStarted, Data: snap})

		case engine.EvtPlayerHit:
			l.broadcast(types.ServerMessage{
				Event: types.EventPlayerHit,
				Data: types.PlayerHitPayload{
					ShooterID:    ev.PlayerID,
					TargetID:     ev.TargetID,
					Damage:       ev.Amount,
					TargetHealth: ev.Health,
					IsKilled:     ev.Killed,
				},
			})

		case engine.EvtPlayerHealed:
			l.broadcast(types.ServerMessage{
				Event: types.EventPlayerHealed,
				Data: types.PlayerHealedPayload{
					PlayerID:   ev.PlayerID,
					HealAmount: ev.Amount,
					NewHealth:  ev.Health,
				},
			})

		case engine.EvtGameEnded:
			var winner *types.PlayerSnapshot
			if ev.Winner != nil {
				w := types.SnapshotPlayer(*ev.Winner)
				winner = &w
			}
			ended = &types.ServerMessage{
				Event: types.EventGameEnded,
				Data:  types.GameEndedPayload{Winner: winner, LobbyCode: l.state.Code},
			}
		}
	}

	l.broadcast(types.ServerMessage{Event: types.EventLobbyUpdated, Data: snap})

	// gameEnded goes out after the snapshot that already shows state=ended.
	if ended != nil {
		l.broadcast(*ended)
		zap.L().Info("game ended", zap.String("code", l.state.Code))
	}
}

func (l *Lobby) replyError(msg FromClient, err error) {
	if msg.ResponseEvent == types.EventStartGameResponse {
		l.send(msg.ConnID, types.ServerMessage{
			Event: msg.ResponseEvent,
			Data:  types.StartGameResponse{Success: false, Message: err.Error()},
		})
		return
	}
	l.send(msg.ConnID, types.ServerMessage{
		Event: types.EventError,
		Data:  types.ErrorPayload{Message: err.Error()},
	})
}

func (l *Lobby) send(connID string, m types.ServerMessage) {
	ch, ok := l.clients[connID]
	if !ok {
		return
	}
	select {
	case ch <- m:
	default:
		// Client is slow/full - drop them. The channel is not closed here:
		// the connection may still share it with another room, and its
		// writer goroutine shuts down with the connection instead.
		delete(l.clients, connID)
	}
}

func (l *Lobby) broadcast(m types.ServerMessage) {
	for id, ch := range l.clients {
		select {
		case ch <- m:
			// ok
		default:
			delete(l.clients, id)
		}
	}
}

func (l *Lobby) shutdown() {
	clear(l.clients)
	l.cancel()
}
