package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/sheridanzzz/CamTag-WebApp/internal/events"
	"github.com/sheridanzzz/CamTag-WebApp/internal/models"
)

// Store is what the dispatcher needs from persistence.
type Store interface {
	GetGame(ctx context.Context, id uuid.UUID) (*models.Game, error)
	GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error)
	ListPlayers(ctx context.Context, gameID uuid.UUID) ([]*models.Player, error)
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// LiveChannel pushes a client method call to one live connection. The
// websocket gateway implements this.
type LiveChannel interface {
	Push(connectionID, method string, payload any) error
}

// Messenger delivers an off-line message to a player's contact address
// (email or SMS in production).
type Messenger interface {
	Send(ctx context.Context, p *models.Player, subject, body string) error
}

// Dispatcher fans one domain event out to the players who should hear about
// it. The eligibility matrix lives in fanoutRules, one table evaluated per
// recipient: a notification row where the event is worth keeping, client
// method calls for the connected, an off-line message for the rest.
type Dispatcher struct {
	store Store
	live  LiveChannel
	msgr  Messenger
	clock clockwork.Clock
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(store Store, live LiveChannel, msgr Messenger, clock clockwork.Clock) *Dispatcher {
	return &Dispatcher{store: store, live: live, msgr: msgr, clock: clock}
}

// Emit lets the dispatcher stand in for the outbox in single-process mode;
// events go straight to fan-out.
func (d *Dispatcher) Emit(ctx context.Context, env events.Envelope) error {
	return d.Dispatch(ctx, env)
}

// role is a recipient's relation to the event: the player who caused it,
// the player it happened to, the single player a targeted event names, or
// anyone else in the game.
type role int

const (
	roleAny role = iota
	roleActor
	roleSubject
	roleTarget
	roleMember
)

// phase buckets the game state for events whose fan-out depends on it.
type phase int

const (
	phaseAny phase = iota
	phaseLobby
	phaseActive
)

// tri is a three-valued selector: match anything, require true, require
// false.
type tri int

const (
	triAny tri = iota
	triYes
	triNo
)

func (t tri) match(v bool) bool {
	return t == triAny || (t == triYes) == v
}

// audienceKind says which roster slice hears an event at all.
type audienceKind int

const (
	audienceMembers audienceKind = iota // verified players still in the game
	audienceLobby                       // everyone seated, verified or not
	audienceTarget                      // the single player the payload names
)

// policy is the channel half of a table row: which channels carry the
// event to a matching recipient. Connected recipients get the pushes,
// off-line ones the message; the notification row is kept either way.
type policy struct {
	record  bool
	pushes  []string
	message bool
}

// fanoutRule is one row of the dispatch table, keyed by event type, game
// phase, and recipient state. Zero-valued selector fields are wildcards,
// and the first matching row wins; a row with an empty policy silences
// the recipients it matches.
type fanoutRule struct {
	event      string
	phase      phase
	role       role
	connected  tri
	verified   tri
	eliminated tri

	// Event-level selectors decoded from the payload.
	actorVerified   tri // joiner verified (player_joined)
	refillFromEmpty tri // clip was at zero (ammo_replenished)
	outcomeKnockout tri // subject was eliminated (photo_resolved)

	policy policy
}

func (r fanoutRule) matches(event string, ph phase, rec *models.Player, rl role, v eventView) bool {
	if r.event != event {
		return false
	}
	if r.phase != phaseAny && r.phase != ph {
		return false
	}
	if r.role != roleAny && r.role != rl {
		return false
	}
	return r.connected.match(rec.Connected()) &&
		r.verified.match(rec.Verified) &&
		r.eliminated.match(rec.Eliminated) &&
		r.actorVerified.match(v.actorVerified) &&
		r.refillFromEmpty.match(v.refillFromEmpty) &&
		r.outcomeKnockout.match(v.outcomeKnockout)
}

var refreshPushes = []string{MethodUpdateNotifications, MethodUpdateScoreboard}

// fanoutRules is the whole eligibility matrix.
var fanoutRules = []fanoutRule{
	// player_joined: lobby screens redraw on any join, verified or not; an
	// active game hears about verified joiners only.
	{event: events.TypePlayerJoined, role: roleActor},
	{event: events.TypePlayerJoined, phase: phaseLobby, connected: triYes,
		policy: policy{pushes: []string{MethodUpdateGameLobbyList}}},
	{event: events.TypePlayerJoined, phase: phaseLobby},
	{event: events.TypePlayerJoined, phase: phaseActive, actorVerified: triNo},
	{event: events.TypePlayerJoined, phase: phaseActive, connected: triYes,
		policy: policy{record: true, pushes: refreshPushes}},
	{event: events.TypePlayerJoined, phase: phaseActive, eliminated: triNo,
		policy: policy{record: true, message: true}},
	{event: events.TypePlayerJoined, phase: phaseActive,
		policy: policy{record: true}},

	// player_left mirrors joins, without the verified gate on the leaver.
	{event: events.TypePlayerLeft, role: roleActor},
	{event: events.TypePlayerLeft, phase: phaseLobby, connected: triYes,
		policy: policy{pushes: []string{MethodUpdateGameLobbyList}}},
	{event: events.TypePlayerLeft, phase: phaseLobby},
	{event: events.TypePlayerLeft, phase: phaseActive, connected: triYes,
		policy: policy{record: true, pushes: refreshPushes}},
	{event: events.TypePlayerLeft, phase: phaseActive, eliminated: triNo,
		policy: policy{record: true, message: true}},
	{event: events.TypePlayerLeft, phase: phaseActive,
		policy: policy{record: true}},

	// photo_uploaded: the shooter knows, and the subject must not be
	// tipped off.
	{event: events.TypePhotoUploaded, role: roleActor},
	{event: events.TypePhotoUploaded, role: roleSubject},
	{event: events.TypePhotoUploaded, connected: triYes,
		policy: policy{pushes: []string{MethodUpdatePhotoUploaded}}},
	{event: events.TypePhotoUploaded, eliminated: triNo,
		policy: policy{message: true}},
	{event: events.TypePhotoUploaded},

	// photo_resolved: shooter and subject get the outcome on whichever
	// channel they are on; bystanders just see the scoreboard move.
	{event: events.TypePhotoResolved, role: roleActor, connected: triYes,
		policy: policy{record: true, pushes: refreshPushes}},
	{event: events.TypePhotoResolved, role: roleActor,
		policy: policy{record: true, message: true}},
	{event: events.TypePhotoResolved, role: roleSubject, connected: triYes, outcomeKnockout: triYes,
		policy: policy{record: true, pushes: []string{MethodPlayerEliminated}}},
	{event: events.TypePhotoResolved, role: roleSubject, connected: triYes,
		policy: policy{record: true, pushes: refreshPushes}},
	{event: events.TypePhotoResolved, role: roleSubject,
		policy: policy{record: true, message: true}},
	{event: events.TypePhotoResolved, connected: triYes,
		policy: policy{pushes: refreshPushes}},
	{event: events.TypePhotoResolved},

	// Game lifecycle broadcasts reach every member on some channel.
	{event: events.TypeGameStarting, connected: triYes,
		policy: policy{pushes: []string{MethodGameStarting}}},
	{event: events.TypeGameStarting, policy: policy{message: true}},
	{event: events.TypeGameNowPlaying, connected: triYes,
		policy: policy{pushes: []string{MethodGameNowPlaying}}},
	{event: events.TypeGameNowPlaying, policy: policy{message: true}},
	{event: events.TypeGameCompleted, connected: triYes,
		policy: policy{pushes: []string{MethodGameCompleted}}},
	{event: events.TypeGameCompleted, policy: policy{message: true}},

	// lobby_ended: unverified members never confirmed a reachable address.
	{event: events.TypeLobbyEnded, connected: triYes,
		policy: policy{pushes: []string{MethodLobbyEnded}}},
	{event: events.TypeLobbyEnded, verified: triYes,
		policy: policy{message: true}},
	{event: events.TypeLobbyEnded},

	// ammo_replenished: only a refill out of a dry clip is worth
	// interrupting someone over.
	{event: events.TypeAmmoReplenished, connected: triYes,
		policy: policy{pushes: []string{MethodAmmoReplenished}}},
	{event: events.TypeAmmoReplenished, refillFromEmpty: triYes,
		policy: policy{record: true, message: true}},
	{event: events.TypeAmmoReplenished},

	// Lockout notices always leave a row.
	{event: events.TypePlayerDisabled, connected: triYes,
		policy: policy{record: true, pushes: []string{MethodPlayerDisabled}}},
	{event: events.TypePlayerDisabled, policy: policy{record: true, message: true}},
	{event: events.TypePlayerReEnabled, connected: triYes,
		policy: policy{record: true, pushes: []string{MethodPlayerReEnabled}}},
	{event: events.TypePlayerReEnabled, policy: policy{record: true, message: true}},
}

func lookupPolicy(event string, ph phase, rec *models.Player, rl role, v eventView) (policy, bool) {
	for _, r := range fanoutRules {
		if r.matches(event, ph, rec, rl, v) {
			return r.policy, true
		}
	}
	return policy{}, false
}

// eventView is the decoded, event-specific half of the table key: the
// roles the payload names, the flags the selectors test, and the texts
// each role receives.
type eventView struct {
	phased   bool // fan-out depends on game phase
	audience audienceKind
	targetID string

	actorID   string
	subjectID string

	actorVerified   bool
	refillFromEmpty bool
	outcomeKnockout bool

	subjectLine string
	bodies      map[role]string
}

func (v eventView) roleOf(p *models.Player) role {
	switch {
	case v.targetID != "":
		return roleTarget
	case p.ID.String() == v.actorID:
		return roleActor
	case p.ID.String() == v.subjectID:
		return roleSubject
	default:
		return roleMember
	}
}

func (v eventView) bodyFor(r role) string {
	if body, ok := v.bodies[r]; ok {
		return body
	}
	return v.bodies[roleMember]
}

// Dispatch routes one envelope through the fan-out table.
func (d *Dispatcher) Dispatch(ctx context.Context, env events.Envelope) error {
	log.Debug().
		Str("event_id", env.EventID.String()).
		Str("event_type", env.EventType).
		Str("game_id", env.GameID.String()).
		Msg("dispatching event")

	v, known, err := d.decode(env)
	if err != nil {
		return err
	}
	if !known {
		log.Warn().Str("event_type", env.EventType).Msg("unknown event type, ignoring")
		return nil
	}

	ph := phaseAny
	if v.phased {
		g, err := d.store.GetGame(ctx, env.GameID)
		if err != nil {
			return err
		}
		switch {
		case g.InLobbyPhase():
			ph = phaseLobby
			v.audience = audienceLobby
		case g.State == models.GameStateActive:
			ph = phaseActive
		default:
			// Finished games fan out nothing.
			return nil
		}
	}

	recipients, err := d.audience(ctx, env.GameID, v)
	if err != nil {
		return err
	}

	for _, p := range recipients {
		pol, ok := lookupPolicy(env.EventType, ph, p, v.roleOf(p), v)
		if !ok {
			continue
		}
		d.deliver(ctx, env, v, p, pol)
	}
	return nil
}

// deliver executes one recipient's policy.
func (d *Dispatcher) deliver(ctx context.Context, env events.Envelope, v eventView, p *models.Player, pol policy) {
	body := v.bodyFor(v.roleOf(p))
	if pol.record {
		d.record(ctx, env.GameID, p.ID, body)
	}
	if p.Connected() {
		for _, method := range pol.pushes {
			payload := any(env.Payload)
			if method == MethodUpdateScoreboard {
				payload = nil
			}
			d.push(p, method, payload)
		}
		return
	}
	if pol.message {
		d.message(ctx, p, v.subjectLine, body)
	}
}

// decode builds the eventView for one envelope. The second return is
// false for event types the table does not know.
func (d *Dispatcher) decode(env events.Envelope) (eventView, bool, error) {
	switch env.EventType {
	case events.TypePlayerJoined:
		p, err := decodeAs[events.PlayerJoinedPayload](env)
		if err != nil {
			return eventView{}, true, err
		}
		return eventView{
			phased:        true,
			actorID:       p.PlayerID,
			actorVerified: p.Verified,
			subjectLine:   subjectPlayerJoined,
			bodies:        map[role]string{roleMember: joinedText(p.Nickname)},
		}, true, nil

	case events.TypePlayerLeft:
		p, err := decodeAs[events.PlayerLeftPayload](env)
		if err != nil {
			return eventView{}, true, err
		}
		return eventView{
			phased:      true,
			actorID:     p.PlayerID,
			subjectLine: subjectPlayerLeft,
			bodies:      map[role]string{roleMember: leftText(p.Nickname)},
		}, true, nil

	case events.TypePhotoUploaded:
		p, err := decodeAs[events.PhotoUploadedPayload](env)
		if err != nil {
			return eventView{}, true, err
		}
		return eventView{
			actorID:     p.TakenByID,
			subjectID:   p.PhotoOfID,
			subjectLine: subjectPhotoUploaded,
			bodies:      map[role]string{roleMember: uploadedText},
		}, true, nil

	case events.TypePhotoResolved:
		p, err := decodeAs[events.PhotoResolvedPayload](env)
		if err != nil {
			return eventView{}, true, err
		}
		var ofText, byText string
		switch {
		case p.Successful && p.Eliminated:
			ofText = eliminatedOfText(p.PhotoOfNN)
			byText = eliminatedByText(p.TakenByNN)
		case p.Successful:
			ofText = taggedOfText(p.PhotoOfNN)
			byText = taggedByText(p.TakenByNN)
		default:
			ofText = tagFailedOfText(p.PhotoOfNN)
			byText = tagFailedByText(p.TakenByNN)
		}
		return eventView{
			actorID:         p.TakenByID,
			subjectID:       p.PhotoOfID,
			outcomeKnockout: p.Eliminated,
			subjectLine:     subjectVotingComplete,
			bodies: map[role]string{
				roleActor:   ofText,
				roleSubject: byText,
			},
		}, true, nil

	case events.TypeGameStarting:
		p, err := decodeAs[events.GameStartingPayload](env)
		if err != nil {
			return eventView{}, true, err
		}
		return eventView{
			subjectLine: subjectGameStarting,
			bodies:      map[role]string{roleMember: startingText(p.StartsAt)},
		}, true, nil

	case events.TypeGameNowPlaying:
		return eventView{
			subjectLine: subjectGameNowPlaying,
			bodies:      map[role]string{roleMember: nowPlayingText},
		}, true, nil

	case events.TypeGameCompleted:
		p, err := decodeAs[events.GameCompletedPayload](env)
		if err != nil {
			return eventView{}, true, err
		}
		text := completedText
		if p.InsufficientPlayers {
			text = completedInsufficientText
		}
		return eventView{
			subjectLine: subjectGameCompleted,
			bodies:      map[role]string{roleMember: text},
		}, true, nil

	case events.TypeLobbyEnded:
		// The game row is already soft deleted; fan out to everyone who
		// was still seated.
		return eventView{
			audience:    audienceLobby,
			subjectLine: subjectLobbyEnded,
			bodies:      map[role]string{roleMember: lobbyEndedText},
		}, true, nil

	case events.TypeAmmoReplenished:
		p, err := decodeAs[events.AmmoReplenishedPayload](env)
		if err != nil {
			return eventView{}, true, err
		}
		return eventView{
			audience:        audienceTarget,
			targetID:        p.PlayerID,
			refillFromEmpty: p.WasEmpty,
			subjectLine:     subjectAmmo,
			bodies:          map[role]string{roleTarget: ammoText},
		}, true, nil

	case events.TypePlayerDisabled:
		p, err := decodeAs[events.PlayerDisabledPayload](env)
		if err != nil {
			return eventView{}, true, err
		}
		return eventView{
			audience:    audienceTarget,
			targetID:    p.PlayerID,
			subjectLine: subjectDisabled,
			bodies:      map[role]string{roleTarget: disabledText(p.Minutes)},
		}, true, nil

	case events.TypePlayerReEnabled:
		p, err := decodeAs[events.PlayerReEnabledPayload](env)
		if err != nil {
			return eventView{}, true, err
		}
		return eventView{
			audience:    audienceTarget,
			targetID:    p.PlayerID,
			subjectLine: subjectReEnabled,
			bodies:      map[role]string{roleTarget: reenabledText},
		}, true, nil

	default:
		return eventView{}, false, nil
	}
}

func decodeAs[P any](env events.Envelope) (P, error) {
	var payload P
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return payload, fmt.Errorf("unmarshal %s payload: %w", env.EventType, err)
	}
	return payload, nil
}

// audience resolves the roster slice an event reaches.
func (d *Dispatcher) audience(ctx context.Context, gameID uuid.UUID, v eventView) ([]*models.Player, error) {
	switch v.audience {
	case audienceLobby:
		return d.lobbyMembers(ctx, gameID)
	case audienceTarget:
		p, err := d.targetPlayer(ctx, v.targetID)
		if err != nil {
			return nil, err
		}
		return []*models.Player{p}, nil
	default:
		return d.members(ctx, gameID)
	}
}

// lobbyMembers returns everyone still sitting in the lobby, verified or not.
func (d *Dispatcher) lobbyMembers(ctx context.Context, gameID uuid.UUID) ([]*models.Player, error) {
	players, err := d.store.ListPlayers(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	var out []*models.Player
	for _, p := range players {
		if p.LeftGame || p.Deleted {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// members returns the players of a game who are still participating.
func (d *Dispatcher) members(ctx context.Context, gameID uuid.UUID) ([]*models.Player, error) {
	players, err := d.store.ListPlayers(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	var out []*models.Player
	for _, p := range players {
		if p.InGame() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (d *Dispatcher) targetPlayer(ctx context.Context, id string) (*models.Player, error) {
	playerID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse player id: %w", err)
	}
	p, err := d.store.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("get player: %w", err)
	}
	return p, nil
}

// push sends a client method call, logging rather than failing on a broken
// connection; the write pump closes those on its own.
func (d *Dispatcher) push(p *models.Player, method string, payload any) {
	if err := d.live.Push(p.ConnectionID, method, payload); err != nil {
		log.Warn().
			Err(err).
			Str("player_id", p.ID.String()).
			Str("method", method).
			Msg("live push failed")
	}
}

func (d *Dispatcher) message(ctx context.Context, p *models.Player, subject, body string) {
	if err := d.msgr.Send(ctx, p, subject, body); err != nil {
		log.Warn().
			Err(err).
			Str("player_id", p.ID.String()).
			Str("subject", subject).
			Msg("off-line message failed")
	}
}

func (d *Dispatcher) record(ctx context.Context, gameID uuid.UUID, playerID uuid.UUID, text string) {
	n := &models.Notification{
		ID:        uuid.New(),
		GameID:    gameID,
		PlayerID:  playerID,
		Text:      text,
		CreatedAt: d.clock.Now(),
	}
	if err := d.store.CreateNotification(ctx, n); err != nil {
		log.Warn().
			Err(err).
			Str("player_id", playerID.String()).
			Msg("failed to record notification")
	}
}
