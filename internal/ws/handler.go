package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/photonarena/lasertag-backend/internal/engine"
	"github.com/photonarena/lasertag-backend/internal/hub"
	"github.com/photonarena/lasertag-backend/internal/lobby"
	"github.com/photonarena/lasertag-backend/internal/types"
)

const writeTimeout = 3 * time.Second

// session is the per-connection state: an id, the shared outbox the writer
// goroutine drains, and the lobby the connection is currently attached to.
type session struct {
	connID string
	outbox chan types.ServerMessage
	hub    *hub.Hub

	attached     *lobby.Lobby
	attachedCode string
}

func Handler(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// The browser client is served from this same process, but camera
			// pages are often opened via LAN IP, so skip same-origin checks.
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		s := &session{
			connID: uuid.NewString(),
			outbox: make(chan types.ServerMessage, 16),
			hub:    h,
		}
		defer s.detach()

		zap.L().Info("client connected", zap.String("conn", s.connID))
		defer zap.L().Info("client disconnected", zap.String("conn", s.connID))

		// Writer goroutine. The outbox is never closed; the writer exits when
		// the handler returns.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for {
				select {
				case <-writeCtx.Done():
					return
				case m := <-s.outbox:
					payload, err := json.Marshal(m)
					if err != nil {
						zap.L().Error("marshal outbound event", zap.Error(err))
						continue
					}
					ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
					_ = conn.Write(ctx, websocket.MessageText, payload)
					cancel()
				}
			}
		}()

		// Reader loop.
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				// Clean close, going-away, or a dead connection all end the
				// same way: detach (in the defer) and let the room move on.
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				s.unicastError("bad json")
				continue
			}

			s.dispatch(cm)
		}
	}
}

// dispatch routes one named client event. Malformed payloads and unknown
// events produce a unicast error for the sender and nothing else; one
// misbehaving client must not take anyone down with it.
func (s *session) dispatch(cm types.ClientMessage) {
	switch cm.Event {
	case types.EventCreateLobby:
		var p types.CreateLobbyPayload
		if !s.decode(cm.Data, &p) {
			return
		}
		s.createLobby(p)

	case types.EventJoinLobby:
		var p types.JoinLobbyPayload
		if !s.decode(cm.Data, &p) {
			return
		}
		s.joinLobby(p)

	case types.EventJoinRoom:
		var p types.JoinRoomPayload
		if !s.decode(cm.Data, &p) {
			return
		}
		if lb := s.getLobby(p.LobbyCode); lb != nil {
			s.attach(lb, p.LobbyCode)
			lb.Inbox() <- lobby.Watch{ConnID: s.connID, Outbox: s.outbox}
		}

	case types.EventColorDetected:
		var p types.ColorDetectedPayload
		if !s.decode(cm.Data, &p) {
			return
		}
		s.forward(p.LobbyCode, engine.Command{
			Type:    engine.CmdSetColor,
			ActorID: s.connID,
			Name:    p.Username,
			Color:   engine.RGB{R: p.RGB.R, G: p.RGB.G, B: p.RGB.B},
		})

	case types.EventStartGame:
		var p types.StartGamePayload
		if !s.decode(cm.Data, &p) {
			return
		}
		lb := s.getLobby(p.LobbyCode)
		if lb == nil {
			s.unicast(types.ServerMessage{
				Event: types.EventStartGameResponse,
				Data:  types.StartGameResponse{Success: false, Message: engine.ErrNotFound.Error()},
			})
			return
		}
		lb.Inbox() <- lobby.FromClient{
			ConnID:        s.connID,
			Cmd:           engine.Command{Type: engine.CmdStartGame, ActorID: s.connID},
			ResponseEvent: types.EventStartGameResponse,
		}

	case types.EventPlayerShoot:
		var p types.PlayerShootPayload
		if !s.decode(cm.Data, &p) {
			return
		}
		s.forward(p.LobbyCode, engine.Command{
			Type:     engine.CmdShoot,
			ActorID:  s.connID,
			TargetID: p.TargetPlayerID,
			Amount:   p.Damage,
		})

	case types.EventHealPlayer:
		var p types.HealPlayerPayload
		if !s.decode(cm.Data, &p) {
			return
		}
		s.forward(p.LobbyCode, engine.Command{
			Type:     engine.CmdHeal,
			ActorID:  s.connID,
			TargetID: p.PlayerID,
			Amount:   p.HealAmount,
		})

	case types.EventResetHealth:
		var p types.ResetHealthPayload
		if !s.decode(cm.Data, &p) {
			return
		}
		s.forward(p.LobbyCode, engine.Command{
			Type:     engine.CmdResetHealth,
			ActorID:  s.connID,
			TargetID: p.PlayerID,
		})

	default:
		s.unicastError("unknown event")
	}
}

func (s *session) createLobby(p types.CreateLobbyPayload) {
	reply := make(chan hub.CreateResult, 1)
	s.hub.Inbox() <- hub.CreateLobby{Code: p.LobbyCode, Reply: reply}
	res := <-reply
	if res.Err != nil {
		s.unicast(types.ServerMessage{
			Event: types.EventCreateLobbyResponse,
			Data:  types.LobbyResponse{Success: false, Message: res.Err.Error(), Lobby: nil},
		})
		return
	}

	s.attach(res.Lobby, p.LobbyCode)
	res.Lobby.Inbox() <- lobby.Join{
		ConnID:        s.connID,
		Name:          p.PlayerName,
		AsHost:        true,
		IsSpectator:   p.IsSpectator,
		Outbox:        s.outbox,
		ResponseEvent: types.EventCreateLobbyResponse,
	}
}

func (s *session) joinLobby(p types.JoinLobbyPayload) {
	lb := s.getLobby(p.LobbyCode)
	if lb == nil {
		s.unicast(types.ServerMessage{
			Event: types.EventJoinLobbyResponse,
			Data:  types.LobbyResponse{Success: false, Message: engine.ErrNotFound.Error(), Lobby: nil},
		})
		return
	}

	s.attach(lb, p.LobbyCode)
	lb.Inbox() <- lobby.Join{
		ConnID:        s.connID,
		Name:          p.PlayerName,
		IsSpectator:   p.IsSpectator,
		Outbox:        s.outbox,
		ResponseEvent: types.EventJoinLobbyResponse,
	}
}

// forward sends a command to the lobby named by code, or a unicast error if
// the lobby does not exist.
func (s *session) forward(code string, cmd engine.Command) {
	lb := s.getLobby(code)
	if lb == nil {
		s.unicastError(engine.ErrNotFound.Error())
		return
	}
	lb.Inbox() <- lobby.FromClient{ConnID: s.connID, Cmd: cmd}
}

func (s *session) getLobby(code string) *lobby.Lobby {
	reply := make(chan *lobby.Lobby, 1)
	s.hub.Inbox() <- hub.GetLobby{Code: code, Reply: reply}
	return <-reply
}

// attach records the lobby this connection belongs to. A connection is in at
// most one room at a time; attaching elsewhere leaves the previous room.
func (s *session) attach(lb *lobby.Lobby, code string) {
	if s.attached != nil && s.attached != lb {
		s.attached.Inbox() <- lobby.Leave{ConnID: s.connID}
	}
	s.attached = lb
	s.attachedCode = code
}

func (s *session) detach() {
	if s.attached != nil {
		s.attached.Inbox() <- lobby.Leave{ConnID: s.connID}
		s.attached = nil
	}
}

func (s *session) decode(data json.RawMessage, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		zap.L().Warn("malformed payload", zap.String("conn", s.connID), zap.Error(err))
		s.unicastError("malformed payload")
		return false
	}
	return true
}

func (s *session) unicastError(msg string) {
	s.unicast(types.ServerMessage{Event: types.EventError, Data: types.ErrorPayload{Message: msg}})
}

func (s *session) unicast(m types.ServerMessage) {
	select {
	case s.outbox <- m:
	default:
	}
}
