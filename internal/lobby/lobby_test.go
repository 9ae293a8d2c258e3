package lobby

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/photonarena/lasertag-backend/internal/engine"
	"github.com/photonarena/lasertag-backend/internal/types"
)

// helper: receive one message with a timeout so tests never hang
func recvMsg(t *testing.T, ch <-chan types.ServerMessage, within time.Duration) types.ServerMessage {
	t.Helper()
	select {
	case m, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		return m
	case <-time.After(within):
		t.Fatalf("timed out waiting for message")
		return types.ServerMessage{} // unreachable
	}
}

// helper: drain messages until one with the given event name arrives
func recvEvent(t *testing.T, ch <-chan types.ServerMessage, event string, within time.Duration) types.ServerMessage {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case m, ok := <-ch:
			if !ok {
				t.Fatalf("client outbox closed while waiting for %q", event)
			}
			if m.Event == event {
				return m
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event %q", event)
			return types.ServerMessage{} // unreachable
		}
	}
}

func recvNoMsg(t *testing.T, ch <-chan types.ServerMessage, within time.Duration) {
	t.Helper()
	select {
	case m, ok := <-ch:
		if !ok {
			return
		}
		t.Fatalf("expected no message within %v, but got: %+v", within, m)
	case <-time.After(within):
		// good: nothing arrived
	}
}

func recvView(t *testing.T, ch <-chan View, within time.Duration) View {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(within):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

func newTestLobby(t *testing.T, code string, onEmpty func(string)) *Lobby {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewLobby(ctx, engine.NewLobbyState(code), onEmpty)
}

func joinAs(l *Lobby, connID, name string, host bool, out chan types.ServerMessage) {
	event := types.EventJoinLobbyResponse
	if host {
		event = types.EventCreateLobbyResponse
	}
	l.Inbox() <- Join{
		ConnID:        connID,
		Name:          name,
		AsHost:        host,
		Outbox:        out,
		ResponseEvent: event,
	}
}

func TestLobby_HostJoinSendsResponseAndSnapshot(t *testing.T) {
	l := newTestLobby(t, "ABC123", nil)

	out := make(chan types.ServerMessage, 8)
	joinAs(l, "c1", "Alice", true, out)

	resp := recvMsg(t, out, 100*time.Millisecond)
	require.Equal(t, types.EventCreateLobbyResponse, resp.Event)
	lr := resp.Data.(types.LobbyResponse)
	require.True(t, lr.Success)
	require.NotNil(t, lr.Lobby)
	require.Equal(t, "ABC123", lr.Lobby.Code)
	require.True(t, lr.Lobby.Players[0].IsHost)

	update := recvMsg(t, out, 100*time.Millisecond)
	require.Equal(t, types.EventLobbyUpdated, update.Event)
	snap := update.Data.(types.LobbySnapshot)
	require.Equal(t, "waiting", snap.State)
	require.Len(t, snap.Players, 1)
}

func TestLobby_JoinErrorGoesOnlyToRequester(t *testing.T) {
	l := newTestLobby(t, "ABC123", nil)

	hostOut := make(chan types.ServerMessage, 8)
	joinAs(l, "c1", "Alice", true, hostOut)
	recvEvent(t, hostOut, types.EventLobbyUpdated, 100*time.Millisecond)

	dupOut := make(chan types.ServerMessage, 8)
	joinAs(l, "c2", "alice", false, dupOut)

	resp := recvMsg(t, dupOut, 100*time.Millisecond)
	require.Equal(t, types.EventJoinLobbyResponse, resp.Event)
	lr := resp.Data.(types.LobbyResponse)
	require.False(t, lr.Success)
	require.Nil(t, lr.Lobby)

	// The failed join must not have produced a broadcast.
	recvNoMsg(t, hostOut, 100*time.Millisecond)
}

func TestLobby_NonHostCannotStart(t *testing.T) {
	l := newTestLobby(t, "ABC123", nil)

	hostOut := make(chan types.ServerMessage, 8)
	joinAs(l, "c1", "Alice", true, hostOut)
	bobOut := make(chan types.ServerMessage, 8)
	joinAs(l, "c2", "Bob", false, bobOut)
	recvEvent(t, bobOut, types.EventLobbyUpdated, 100*time.Millisecond)

	l.Inbox() <- FromClient{
		ConnID:        "c2",
		Cmd:           engine.Command{Type: engine.CmdStartGame, ActorID: "c2"},
		ResponseEvent: types.EventStartGameResponse,
	}

	resp := recvEvent(t, bobOut, types.EventStartGameResponse, 100*time.Millisecond)
	sr := resp.Data.(types.StartGameResponse)
	require.False(t, sr.Success)
	require.Equal(t, engine.ErrNotHost.Error(), sr.Message)
}

// Full match flow: create, join, color, start, one-shot kill, game over.
func TestLobby_FullMatchFlow(t *testing.T) {
	l := newTestLobby(t, "ABC123", nil)

	aliceOut := make(chan types.ServerMessage, 32)
	joinAs(l, "c1", "Alice", true, aliceOut)
	bobOut := make(chan types.ServerMessage, 32)
	joinAs(l, "c2", "Bob", false, bobOut)

	resp := recvEvent(t, bobOut, types.EventJoinLobbyResponse, 100*time.Millisecond)
	require.True(t, resp.Data.(types.LobbyResponse).Success)
	require.Len(t, resp.Data.(types.LobbyResponse).Lobby.Players, 2)

	// Bob's shirt color comes in from the camera.
	l.Inbox() <- FromClient{
		ConnID: "c2",
		Cmd: engine.Command{
			Type:  engine.CmdSetColor,
			Name:  "Bob",
			Color: engine.RGB{R: 178, G: 34, B: 34},
		},
	}
	update := recvEvent(t, bobOut, types.EventLobbyUpdated, 100*time.Millisecond)
	snap := update.Data.(types.LobbySnapshot)
	require.NotNil(t, snap.Players[1].R)

	l.Inbox() <- FromClient{
		ConnID:        "c1",
		Cmd:           engine.Command{Type: engine.CmdStartGame, ActorID: "c1"},
		ResponseEvent: types.EventStartGameResponse,
	}

	started := recvEvent(t, bobOut, types.EventGameStarted, 100*time.Millisecond)
	snap = started.Data.(types.LobbySnapshot)
	require.Equal(t, "active", snap.State)
	for _, p := range snap.Players {
		require.Equal(t, engine.MaxHealth, p.Health)
	}

	hostResp := recvEvent(t, aliceOut, types.EventStartGameResponse, 100*time.Millisecond)
	require.True(t, hostResp.Data.(types.StartGameResponse).Success)

	// Alice lands a lethal hit on Bob.
	l.Inbox() <- FromClient{
		ConnID: "c1",
		Cmd: engine.Command{
			Type:     engine.CmdShoot,
			ActorID:  "c1",
			TargetID: "c2",
			Amount:   engine.MaxHealth,
		},
	}

	hit := recvEvent(t, bobOut, types.EventPlayerHit, 100*time.Millisecond)
	hp := hit.Data.(types.PlayerHitPayload)
	require.Equal(t, "c1", hp.ShooterID)
	require.Equal(t, "c2", hp.TargetID)
	require.Equal(t, 0, hp.TargetHealth)
	require.True(t, hp.IsKilled)

	update = recvEvent(t, bobOut, types.EventLobbyUpdated, 100*time.Millisecond)
	require.Equal(t, "ended", update.Data.(types.LobbySnapshot).State)

	ended := recvEvent(t, bobOut, types.EventGameEnded, 100*time.Millisecond)
	ep := ended.Data.(types.GameEndedPayload)
	require.NotNil(t, ep.Winner)
	require.Equal(t, "Alice", ep.Winner.Name)
	require.Equal(t, "ABC123", ep.LobbyCode)

	// The lobby has ended: a late join is refused.
	lateOut := make(chan types.ServerMessage, 8)
	joinAs(l, "c3", "Carol", false, lateOut)
	late := recvMsg(t, lateOut, 100*time.Millisecond)
	lr := late.Data.(types.LobbyResponse)
	require.False(t, lr.Success)
	require.Equal(t, engine.ErrLobbyClosed.Error(), lr.Message)
}

func TestLobby_HealBroadcasts(t *testing.T) {
	l := newTestLobby(t, "ABC123", nil)

	out := make(chan types.ServerMessage, 32)
	joinAs(l, "c1", "Alice", true, out)
	joinAs(l, "c2", "Bob", false, out)

	l.Inbox() <- FromClient{
		ConnID: "c1",
		Cmd:    engine.Command{Type: engine.CmdHeal, ActorID: "c1", TargetID: "c2", Amount: 25},
	}

	healed := recvEvent(t, out, types.EventPlayerHealed, 100*time.Millisecond)
	ph := healed.Data.(types.PlayerHealedPayload)
	require.Equal(t, "c2", ph.PlayerID)
	require.Equal(t, 25, ph.HealAmount)
	require.Equal(t, engine.MaxHealth, ph.NewHealth)
}

func TestLobby_CommandErrorIsUnicast(t *testing.T) {
	l := newTestLobby(t, "ABC123", nil)

	aliceOut := make(chan types.ServerMessage, 8)
	joinAs(l, "c1", "Alice", true, aliceOut)
	recvEvent(t, aliceOut, types.EventLobbyUpdated, 100*time.Millisecond)

	bobOut := make(chan types.ServerMessage, 8)
	joinAs(l, "c2", "Bob", false, bobOut)
	recvEvent(t, aliceOut, types.EventLobbyUpdated, 100*time.Millisecond)
	recvEvent(t, bobOut, types.EventLobbyUpdated, 100*time.Millisecond)

	// Shooting before the match starts fails, for the shooter only.
	l.Inbox() <- FromClient{
		ConnID: "c2",
		Cmd:    engine.Command{Type: engine.CmdShoot, ActorID: "c2", TargetID: "c1"},
	}

	errMsg := recvMsg(t, bobOut, 100*time.Millisecond)
	require.Equal(t, types.EventError, errMsg.Event)
	require.Equal(t, engine.ErrMatchNotActive.Error(), errMsg.Data.(types.ErrorPayload).Message)

	recvNoMsg(t, aliceOut, 100*time.Millisecond)
}

func TestLobby_WatchSendsCurrentSnapshot(t *testing.T) {
	l := newTestLobby(t, "ABC123", nil)

	out := make(chan types.ServerMessage, 8)
	joinAs(l, "c1", "Alice", true, out)

	watchOut := make(chan types.ServerMessage, 8)
	l.Inbox() <- Watch{ConnID: "c2", Outbox: watchOut}

	update := recvMsg(t, watchOut, 100*time.Millisecond)
	require.Equal(t, types.EventLobbyUpdated, update.Event)
	require.Len(t, update.Data.(types.LobbySnapshot).Players, 1)
}

func TestLobby_LeavePromotesHostAndBroadcasts(t *testing.T) {
	l := newTestLobby(t, "ABC123", nil)

	aliceOut := make(chan types.ServerMessage, 8)
	joinAs(l, "c1", "Alice", true, aliceOut)
	bobOut := make(chan types.ServerMessage, 8)
	joinAs(l, "c2", "Bob", false, bobOut)
	recvEvent(t, bobOut, types.EventLobbyUpdated, 100*time.Millisecond)

	l.Inbox() <- Leave{ConnID: "c1"}

	update := recvEvent(t, bobOut, types.EventLobbyUpdated, 100*time.Millisecond)
	snap := update.Data.(types.LobbySnapshot)
	require.Len(t, snap.Players, 1)
	require.Equal(t, "Bob", snap.Players[0].Name)
	require.True(t, snap.Players[0].IsHost)
}

func TestLobby_LastLeaveFiresOnEmpty(t *testing.T) {
	emptied := make(chan string, 1)
	l := newTestLobby(t, "ABC123", func(code string) { emptied <- code })

	out := make(chan types.ServerMessage, 8)
	joinAs(l, "c1", "Alice", true, out)
	recvEvent(t, out, types.EventLobbyUpdated, 100*time.Millisecond)

	l.Inbox() <- Leave{ConnID: "c1"}

	select {
	case code := <-emptied:
		require.Equal(t, "ABC123", code)
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for onEmpty")
	}
}

func TestLobby_DropSlowClient(t *testing.T) {
	l := newTestLobby(t, "ABC123", nil)

	// Buffer of one: the join response fills it and the following
	// lobbyUpdated broadcast finds it full.
	out := make(chan types.ServerMessage, 1)
	joinAs(l, "c1", "Alice", true, out)

	reply := make(chan View, 1)
	l.Inbox() <- GetState{Reply: reply}
	view := recvView(t, reply, 100*time.Millisecond)

	require.Equal(t, 0, view.NumClients)
	// The player is still in the lobby; only the connection was dropped.
	require.Len(t, view.State.Players, 1)
}

func TestLobby_SnapshotIdempotence(t *testing.T) {
	l := newTestLobby(t, "ABC123", nil)

	out := make(chan types.ServerMessage, 8)
	joinAs(l, "c1", "Alice", true, out)
	recvEvent(t, out, types.EventLobbyUpdated, 100*time.Millisecond)

	// Two watchers of the same state receive identical snapshots: a client
	// applying one of them twice ends up in the same view either way.
	w1 := make(chan types.ServerMessage, 8)
	l.Inbox() <- Watch{ConnID: "w1", Outbox: w1}
	w2 := make(chan types.ServerMessage, 8)
	l.Inbox() <- Watch{ConnID: "w2", Outbox: w2}

	s1 := recvMsg(t, w1, 100*time.Millisecond).Data.(types.LobbySnapshot)
	s2 := recvMsg(t, w2, 100*time.Millisecond).Data.(types.LobbySnapshot)
	require.Equal(t, s1, s2)
}
