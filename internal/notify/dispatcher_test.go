package notify

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/sheridanzzz/CamTag-WebApp/internal/events"
	"github.com/sheridanzzz/CamTag-WebApp/internal/game"
	"github.com/sheridanzzz/CamTag-WebApp/internal/models"
)

type push struct {
	connID string
	method string
}

type fakeLive struct {
	pushes []push
}

func (l *fakeLive) Push(connectionID, method string, payload any) error {
	l.pushes = append(l.pushes, push{connID: connectionID, method: method})
	return nil
}

func (l *fakeLive) methodsFor(connID string) []string {
	var out []string
	for _, p := range l.pushes {
		if p.connID == connID {
			out = append(out, p.method)
		}
	}
	return out
}

type sent struct {
	playerID uuid.UUID
	subject  string
	body     string
}

type fakeMessenger struct {
	sent []sent
}

func (m *fakeMessenger) Send(_ context.Context, p *models.Player, subject, body string) error {
	m.sent = append(m.sent, sent{playerID: p.ID, subject: subject, body: body})
	return nil
}

func (m *fakeMessenger) sentTo(playerID uuid.UUID) []sent {
	var out []sent
	for _, s := range m.sent {
		if s.playerID == playerID {
			out = append(out, s)
		}
	}
	return out
}

type dispatchEnv struct {
	store *game.MemStore
	live  *fakeLive
	msgr  *fakeMessenger
	clock *clockwork.FakeClock
	d     *Dispatcher
	ctx   context.Context
}

func newDispatchEnv(t *testing.T) *dispatchEnv {
	t.Helper()
	clock := clockwork.NewFakeClock()
	store := game.NewMemStore()
	live := &fakeLive{}
	msgr := &fakeMessenger{}
	return &dispatchEnv{
		store: store,
		live:  live,
		msgr:  msgr,
		clock: clock,
		d:     NewDispatcher(store, live, msgr, clock),
		ctx:   context.Background(),
	}
}

func (e *dispatchEnv) addGame(t *testing.T, state models.GameState) *models.Game {
	t.Helper()
	g := &models.Game{
		ID:        uuid.New(),
		Code:      models.GenerateGameCode(),
		Mode:      models.GameModeStandard,
		State:     state,
		TimeLimit: time.Hour,
		CreatedAt: e.clock.Now(),
	}
	if err := e.store.CreateGame(e.ctx, g); err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	return g
}

type playerOpt func(*models.Player)

func connected(connID string) playerOpt {
	return func(p *models.Player) { p.ConnectionID = connID }
}

func unverified() playerOpt {
	return func(p *models.Player) { p.Verified = false }
}

func eliminated() playerOpt {
	return func(p *models.Player) { p.Eliminated = true }
}

func leftGame() playerOpt {
	return func(p *models.Player) { p.LeftGame = true }
}

func (e *dispatchEnv) addPlayer(t *testing.T, gameID uuid.UUID, nickname string, opts ...playerOpt) *models.Player {
	t.Helper()
	p := &models.Player{
		ID:        uuid.New(),
		GameID:    gameID,
		Nickname:  nickname,
		Contact:   nickname + "@example.com",
		Verified:  true,
		CreatedAt: e.clock.Now(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := e.store.CreatePlayer(e.ctx, p); err != nil {
		t.Fatalf("CreatePlayer: %v", err)
	}
	return p
}

func (e *dispatchEnv) envelope(t *testing.T, eventType string, gameID uuid.UUID, payload any) events.Envelope {
	t.Helper()
	env, err := events.NewEnvelope(eventType, gameID, e.clock.Now(), payload)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	return env
}

func (e *dispatchEnv) notificationsFor(t *testing.T, playerID uuid.UUID) []*models.Notification {
	t.Helper()
	notes, err := e.store.ListNotifications(e.ctx, playerID)
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	return notes
}

func TestDispatch_PlayerJoined_LobbyRedrawsScreens(t *testing.T) {
	e := newDispatchEnv(t)
	g := e.addGame(t, models.GameStateLobby)
	host := e.addPlayer(t, g.ID, "alice", connected("conn-alice"))
	e.addPlayer(t, g.ID, "bob", connected("conn-bob"), unverified())
	e.addPlayer(t, g.ID, "carol")
	joiner := e.addPlayer(t, g.ID, "dave", connected("conn-dave"), unverified())

	env := e.envelope(t, events.TypePlayerJoined, g.ID, events.PlayerJoinedPayload{
		PlayerID: joiner.ID.String(),
		Nickname: joiner.Nickname,
		Verified: false,
	})
	if err := e.d.Dispatch(e.ctx, env); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if got := e.live.methodsFor("conn-alice"); len(got) != 1 || got[0] != MethodUpdateGameLobbyList {
		t.Errorf("host pushes = %v, want one %s", got, MethodUpdateGameLobbyList)
	}
	// Unverified lobby members still see the list move.
	if got := e.live.methodsFor("conn-bob"); len(got) != 1 || got[0] != MethodUpdateGameLobbyList {
		t.Errorf("unverified member pushes = %v, want one %s", got, MethodUpdateGameLobbyList)
	}
	if got := e.live.methodsFor("conn-dave"); len(got) != 0 {
		t.Errorf("joiner got %v, want no pushes", got)
	}
	if len(e.msgr.sent) != 0 {
		t.Errorf("lobby join sent %d off-line messages, want 0", len(e.msgr.sent))
	}
	if notes := e.notificationsFor(t, host.ID); len(notes) != 0 {
		t.Errorf("lobby join recorded %d notifications, want 0", len(notes))
	}
}

func TestDispatch_PlayerJoined_ActiveVerifiedFansOut(t *testing.T) {
	e := newDispatchEnv(t)
	g := e.addGame(t, models.GameStateActive)
	e.addPlayer(t, g.ID, "alice", connected("conn-alice"))
	offline := e.addPlayer(t, g.ID, "bob")
	knockedOut := e.addPlayer(t, g.ID, "carol", eliminated())
	joiner := e.addPlayer(t, g.ID, "dave", connected("conn-dave"))

	env := e.envelope(t, events.TypePlayerJoined, g.ID, events.PlayerJoinedPayload{
		PlayerID: joiner.ID.String(),
		Nickname: joiner.Nickname,
		Verified: true,
	})
	if err := e.d.Dispatch(e.ctx, env); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	got := e.live.methodsFor("conn-alice")
	if len(got) != 2 || got[0] != MethodUpdateNotifications || got[1] != MethodUpdateScoreboard {
		t.Errorf("online pushes = %v, want [%s %s]", got, MethodUpdateNotifications, MethodUpdateScoreboard)
	}
	msgs := e.msgr.sentTo(offline.ID)
	if len(msgs) != 1 {
		t.Fatalf("offline player got %d messages, want 1", len(msgs))
	}
	if msgs[0].subject != subjectPlayerJoined || !strings.Contains(msgs[0].body, "dave") {
		t.Errorf("offline message = %+v, want joined text naming dave", msgs[0])
	}
	// Eliminated and disconnected: row yes, interruption no.
	if msgs := e.msgr.sentTo(knockedOut.ID); len(msgs) != 0 {
		t.Errorf("eliminated offline player got %d messages, want 0", len(msgs))
	}
	if notes := e.notificationsFor(t, knockedOut.ID); len(notes) != 1 {
		t.Errorf("eliminated player has %d notification rows, want 1", len(notes))
	}
	if notes := e.notificationsFor(t, joiner.ID); len(notes) != 0 {
		t.Errorf("joiner has %d notification rows, want 0", len(notes))
	}
}

func TestDispatch_PlayerLeft_LobbyRedrawsScreens(t *testing.T) {
	e := newDispatchEnv(t)
	g := e.addGame(t, models.GameStateLobby)
	host := e.addPlayer(t, g.ID, "alice", connected("conn-alice"))
	e.addPlayer(t, g.ID, "bob", connected("conn-bob"), unverified())
	leaver := e.addPlayer(t, g.ID, "dave", connected("conn-dave"), leftGame())

	env := e.envelope(t, events.TypePlayerLeft, g.ID, events.PlayerLeftPayload{
		PlayerID: leaver.ID.String(),
		Nickname: leaver.Nickname,
	})
	if err := e.d.Dispatch(e.ctx, env); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if got := e.live.methodsFor("conn-alice"); len(got) != 1 || got[0] != MethodUpdateGameLobbyList {
		t.Errorf("host pushes = %v, want one %s", got, MethodUpdateGameLobbyList)
	}
	if got := e.live.methodsFor("conn-bob"); len(got) != 1 || got[0] != MethodUpdateGameLobbyList {
		t.Errorf("unverified member pushes = %v, want one %s", got, MethodUpdateGameLobbyList)
	}
	if got := e.live.methodsFor("conn-dave"); len(got) != 0 {
		t.Errorf("leaver got %v, want no pushes", got)
	}
	if len(e.msgr.sent) != 0 {
		t.Errorf("lobby leave sent %d off-line messages, want 0", len(e.msgr.sent))
	}
	if notes := e.notificationsFor(t, host.ID); len(notes) != 0 {
		t.Errorf("lobby leave recorded %d notifications, want 0", len(notes))
	}
}

func TestDispatch_PlayerLeft_ActiveFansOut(t *testing.T) {
	e := newDispatchEnv(t)
	g := e.addGame(t, models.GameStateActive)
	e.addPlayer(t, g.ID, "alice", connected("conn-alice"))
	offline := e.addPlayer(t, g.ID, "bob")
	knockedOut := e.addPlayer(t, g.ID, "carol", eliminated())
	leaver := e.addPlayer(t, g.ID, "dave", connected("conn-dave"), leftGame())

	env := e.envelope(t, events.TypePlayerLeft, g.ID, events.PlayerLeftPayload{
		PlayerID: leaver.ID.String(),
		Nickname: leaver.Nickname,
	})
	if err := e.d.Dispatch(e.ctx, env); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	got := e.live.methodsFor("conn-alice")
	if len(got) != 2 || got[0] != MethodUpdateNotifications || got[1] != MethodUpdateScoreboard {
		t.Errorf("online pushes = %v, want [%s %s]", got, MethodUpdateNotifications, MethodUpdateScoreboard)
	}
	msgs := e.msgr.sentTo(offline.ID)
	if len(msgs) != 1 {
		t.Fatalf("offline player got %d messages, want 1", len(msgs))
	}
	if msgs[0].subject != subjectPlayerLeft || !strings.Contains(msgs[0].body, "dave") {
		t.Errorf("offline message = %+v, want left text naming dave", msgs[0])
	}
	// Eliminated and disconnected: row yes, interruption no.
	if msgs := e.msgr.sentTo(knockedOut.ID); len(msgs) != 0 {
		t.Errorf("eliminated offline player got %d messages, want 0", len(msgs))
	}
	if notes := e.notificationsFor(t, knockedOut.ID); len(notes) != 1 {
		t.Errorf("eliminated player has %d notification rows, want 1", len(notes))
	}
	if notes := e.notificationsFor(t, leaver.ID); len(notes) != 0 {
		t.Errorf("leaver has %d notification rows, want 0", len(notes))
	}
}

func TestDispatch_PlayerJoined_ActiveUnverifiedIsQuiet(t *testing.T) {
	e := newDispatchEnv(t)
	g := e.addGame(t, models.GameStateActive)
	e.addPlayer(t, g.ID, "alice", connected("conn-alice"))
	joiner := e.addPlayer(t, g.ID, "bob", unverified())

	env := e.envelope(t, events.TypePlayerJoined, g.ID, events.PlayerJoinedPayload{
		PlayerID: joiner.ID.String(),
		Nickname: joiner.Nickname,
		Verified: false,
	})
	if err := e.d.Dispatch(e.ctx, env); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(e.live.pushes) != 0 || len(e.msgr.sent) != 0 {
		t.Errorf("unverified mid-game join fanned out: pushes=%d messages=%d", len(e.live.pushes), len(e.msgr.sent))
	}
}

func TestDispatch_PhotoUploaded_ShooterAndSubjectExcluded(t *testing.T) {
	e := newDispatchEnv(t)
	g := e.addGame(t, models.GameStateActive)
	shooter := e.addPlayer(t, g.ID, "alice", connected("conn-alice"))
	subject := e.addPlayer(t, g.ID, "bob", connected("conn-bob"))
	e.addPlayer(t, g.ID, "carol", connected("conn-carol"))
	offline := e.addPlayer(t, g.ID, "dave")

	env := e.envelope(t, events.TypePhotoUploaded, g.ID, events.PhotoUploadedPayload{
		PhotoID:        uuid.NewString(),
		TakenByID:      shooter.ID.String(),
		PhotoOfID:      subject.ID.String(),
		VotingDeadline: e.clock.Now().Add(models.VotingWindow),
	})
	if err := e.d.Dispatch(e.ctx, env); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if got := e.live.methodsFor("conn-alice"); len(got) != 0 {
		t.Errorf("shooter got %v, want nothing", got)
	}
	if got := e.live.methodsFor("conn-bob"); len(got) != 0 {
		t.Errorf("photo subject got %v, want nothing", got)
	}
	if got := e.live.methodsFor("conn-carol"); len(got) != 1 || got[0] != MethodUpdatePhotoUploaded {
		t.Errorf("bystander pushes = %v, want one %s", got, MethodUpdatePhotoUploaded)
	}
	msgs := e.msgr.sentTo(offline.ID)
	if len(msgs) != 1 || msgs[0].subject != subjectPhotoUploaded {
		t.Errorf("offline bystander messages = %+v, want one %q", msgs, subjectPhotoUploaded)
	}
}

func TestDispatch_PhotoResolved_TargetsOutcomes(t *testing.T) {
	e := newDispatchEnv(t)
	g := e.addGame(t, models.GameStateActive)
	shooter := e.addPlayer(t, g.ID, "alice")
	subject := e.addPlayer(t, g.ID, "bob", connected("conn-bob"), eliminated())
	bystander := e.addPlayer(t, g.ID, "carol", connected("conn-carol"))

	env := e.envelope(t, events.TypePhotoResolved, g.ID, events.PhotoResolvedPayload{
		PhotoID:    uuid.NewString(),
		TakenByID:  shooter.ID.String(),
		TakenByNN:  shooter.Nickname,
		PhotoOfID:  subject.ID.String(),
		PhotoOfNN:  subject.Nickname,
		Successful: true,
		Eliminated: true,
	})
	if err := e.d.Dispatch(e.ctx, env); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	// The eliminated subject gets the dedicated elimination push.
	if got := e.live.methodsFor("conn-bob"); len(got) != 1 || got[0] != MethodPlayerEliminated {
		t.Errorf("subject pushes = %v, want one %s", got, MethodPlayerEliminated)
	}
	got := e.live.methodsFor("conn-carol")
	if len(got) != 2 || got[0] != MethodUpdateNotifications || got[1] != MethodUpdateScoreboard {
		t.Errorf("bystander pushes = %v, want notifications then scoreboard", got)
	}
	// The disconnected shooter hears about the outcome off-line.
	msgs := e.msgr.sentTo(shooter.ID)
	if len(msgs) != 1 || msgs[0].subject != subjectVotingComplete {
		t.Fatalf("shooter messages = %+v, want one %q", msgs, subjectVotingComplete)
	}
	if !strings.Contains(msgs[0].body, "bob") {
		t.Errorf("shooter outcome text = %q, want it to name bob", msgs[0].body)
	}
	if notes := e.notificationsFor(t, shooter.ID); len(notes) != 1 {
		t.Errorf("shooter has %d notification rows, want 1", len(notes))
	}
	if notes := e.notificationsFor(t, subject.ID); len(notes) != 1 {
		t.Errorf("subject has %d notification rows, want 1", len(notes))
	}
	if notes := e.notificationsFor(t, bystander.ID); len(notes) != 0 {
		t.Errorf("bystander has %d notification rows, want 0", len(notes))
	}
}

func TestDispatch_AmmoReplenished_QuietUnlessClipWasDry(t *testing.T) {
	e := newDispatchEnv(t)
	g := e.addGame(t, models.GameStateActive)
	offline := e.addPlayer(t, g.ID, "alice")

	topUp := e.envelope(t, events.TypeAmmoReplenished, g.ID, events.AmmoReplenishedPayload{
		PlayerID: offline.ID.String(),
		Ammo:     3,
		WasEmpty: false,
	})
	if err := e.d.Dispatch(e.ctx, topUp); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(e.msgr.sent) != 0 {
		t.Errorf("partial top-up sent %d messages, want 0", len(e.msgr.sent))
	}

	fromEmpty := e.envelope(t, events.TypeAmmoReplenished, g.ID, events.AmmoReplenishedPayload{
		PlayerID: offline.ID.String(),
		Ammo:     1,
		WasEmpty: true,
	})
	if err := e.d.Dispatch(e.ctx, fromEmpty); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	msgs := e.msgr.sentTo(offline.ID)
	if len(msgs) != 1 || msgs[0].subject != subjectAmmo {
		t.Errorf("dry-clip refill messages = %+v, want one %q", msgs, subjectAmmo)
	}
	if notes := e.notificationsFor(t, offline.ID); len(notes) != 1 {
		t.Errorf("player has %d notification rows, want 1", len(notes))
	}
}

func TestDispatch_AmmoReplenished_ConnectedGetsPushOnly(t *testing.T) {
	e := newDispatchEnv(t)
	g := e.addGame(t, models.GameStateActive)
	online := e.addPlayer(t, g.ID, "alice", connected("conn-alice"))

	env := e.envelope(t, events.TypeAmmoReplenished, g.ID, events.AmmoReplenishedPayload{
		PlayerID: online.ID.String(),
		Ammo:     1,
		WasEmpty: true,
	})
	if err := e.d.Dispatch(e.ctx, env); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got := e.live.methodsFor("conn-alice"); len(got) != 1 || got[0] != MethodAmmoReplenished {
		t.Errorf("pushes = %v, want one %s", got, MethodAmmoReplenished)
	}
	if len(e.msgr.sent) != 0 {
		t.Errorf("connected refill sent %d messages, want 0", len(e.msgr.sent))
	}
}

func TestDispatch_GameCompleted_Broadcasts(t *testing.T) {
	e := newDispatchEnv(t)
	g := e.addGame(t, models.GameStateCompleted)
	e.addPlayer(t, g.ID, "alice", connected("conn-alice"))
	offline := e.addPlayer(t, g.ID, "bob")

	env := e.envelope(t, events.TypeGameCompleted, g.ID, events.GameCompletedPayload{
		GameCode:            g.Code,
		InsufficientPlayers: true,
	})
	if err := e.d.Dispatch(e.ctx, env); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got := e.live.methodsFor("conn-alice"); len(got) != 1 || got[0] != MethodGameCompleted {
		t.Errorf("pushes = %v, want one %s", got, MethodGameCompleted)
	}
	msgs := e.msgr.sentTo(offline.ID)
	if len(msgs) != 1 || msgs[0].body != completedInsufficientText {
		t.Errorf("offline messages = %+v, want the insufficient-players text", msgs)
	}
}

func TestDispatch_PlayerDisabled_Targeted(t *testing.T) {
	e := newDispatchEnv(t)
	g := e.addGame(t, models.GameStateActive)
	e.addPlayer(t, g.ID, "alice", connected("conn-alice"))
	penalized := e.addPlayer(t, g.ID, "bob")

	until := e.clock.Now().Add(3 * time.Minute)
	env := e.envelope(t, events.TypePlayerDisabled, g.ID, events.PlayerDisabledPayload{
		PlayerID:      penalized.ID.String(),
		DisabledUntil: until,
		Minutes:       3,
	})
	if err := e.d.Dispatch(e.ctx, env); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got := e.live.methodsFor("conn-alice"); len(got) != 0 {
		t.Errorf("bystander got %v, want nothing", got)
	}
	msgs := e.msgr.sentTo(penalized.ID)
	if len(msgs) != 1 || !strings.Contains(msgs[0].body, "3") {
		t.Errorf("messages = %+v, want one naming the 3 minute lockout", msgs)
	}
	if notes := e.notificationsFor(t, penalized.ID); len(notes) != 1 {
		t.Errorf("player has %d notification rows, want 1", len(notes))
	}
}

func TestDispatch_UnknownEventTypeIsIgnored(t *testing.T) {
	e := newDispatchEnv(t)
	g := e.addGame(t, models.GameStateActive)

	env := e.envelope(t, "something_else", g.ID, struct{}{})
	if err := e.d.Dispatch(e.ctx, env); err != nil {
		t.Errorf("Dispatch unknown type = %v, want nil", err)
	}
}
