package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/photonarena/lasertag-backend/internal/engine"
	"github.com/photonarena/lasertag-backend/internal/lobby"
)

type HubMsg interface{ isHubMsg() }

// CreateLobby reserves a code and spins up its lobby actor. The caller picks
// the code; creation fails if it is malformed or already taken.
type CreateLobby struct {
	Code  string
	Reply chan CreateResult
}

type CreateResult struct {
	Lobby *lobby.Lobby
	Err   error
}

type GetLobby struct {
	Code  string
	Reply chan *lobby.Lobby
}

type RemoveLobby struct {
	Code string
}

type ShutdownHub struct{}

func (CreateLobby) isHubMsg() {}
func (GetLobby) isHubMsg()    {}
func (RemoveLobby) isHubMsg() {}
func (ShutdownHub) isHubMsg() {}

// Hub owns the code -> lobby registry. All access goes through the inbox, so
// lookups and creation are serialized: two racing creates for one code cannot
// both succeed.
type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*lobby.Lobby
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[string]*lobby.Lobby),
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateLobby:
				if h.lobbies[msg.Code] != nil {
					msg.Reply <- CreateResult{Err: engine.ErrCodeTaken}
					break
				}
				if err := engine.ValidateLobbyCode(msg.Code); err != nil {
					msg.Reply <- CreateResult{Err: err}
					break
				}

				lb := lobby.NewLobby(h.ctx, engine.NewLobbyState(msg.Code), h.onLobbyEmpty)
				h.lobbies[msg.Code] = lb
				zap.L().Info("lobby created", zap.String("code", msg.Code))
				msg.Reply <- CreateResult{Lobby: lb}

			case GetLobby:
				msg.Reply <- h.lobbies[msg.Code] // may be nil

			case RemoveLobby:
				if lb := h.lobbies[msg.Code]; lb != nil {
					delete(h.lobbies, msg.Code)
					zap.L().Info("lobby removed", zap.String("code", msg.Code))
				}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

// onLobbyEmpty runs on the emptied lobby's goroutine; removal is enqueued so
// the hub processes it in order with any racing create for the same code.
func (h *Hub) onLobbyEmpty(code string) {
	select {
	case h.inbox <- RemoveLobby{Code: code}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) shutdown() {
	for _, lb := range h.lobbies {
		lb.Inbox() <- lobby.Shutdown{}
	}
	clear(h.lobbies)
	h.cancel()
}
