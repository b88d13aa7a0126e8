package models

import (
	"time"

	"github.com/google/uuid"
)

// Photo represents a tag attempt: one player photographing another, pending a
// vote by the rest of the game.
type Photo struct {
	ID     uuid.UUID `json:"id"`
	GameID uuid.UUID `json:"game_id"`

	TakenByID uuid.UUID `json:"taken_by_id"`
	PhotoOfID uuid.UUID `json:"photo_of_id"`

	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	ImageURL  string  `json:"image_url,omitempty"`

	VotingDeadline time.Time `json:"voting_deadline"`

	// Resolved is monotonic; Successful is meaningless until it is set and
	// fixed forever afterwards.
	Resolved   bool `json:"resolved"`
	Successful bool `json:"successful"`

	// Deactivated marks photos whose voting was abandoned because the game
	// completed first. A deactivated photo never resolves.
	Deactivated bool `json:"deactivated"`

	CreatedAt time.Time `json:"created_at"`
}

// VoteDecision is a voter's verdict on a photo. Pending rows are created at
// upload time, one per eligible voter, and flip exactly once.
type VoteDecision string

const (
	VotePending VoteDecision = "PENDING"
	VoteYes     VoteDecision = "YES"
	VoteNo      VoteDecision = "NO"
)

// Vote is one eligible voter's slot on one photo.
type Vote struct {
	ID       uuid.UUID    `json:"id"`
	PhotoID  uuid.UUID    `json:"photo_id"`
	PlayerID uuid.UUID    `json:"player_id"`
	Decision VoteDecision `json:"decision"`
	CastAt   *time.Time   `json:"cast_at,omitempty"`
}

// Cast reports whether the voter has made a decision.
func (v *Vote) Cast() bool {
	return v.Decision != VotePending
}

// Tally counts cast decisions over a photo's vote rows.
type Tally struct {
	Yes     int
	No      int
	Pending int
}

// TallyVotes sums the decisions in votes.
func TallyVotes(votes []*Vote) Tally {
	var t Tally
	for _, v := range votes {
		switch v.Decision {
		case VoteYes:
			t.Yes++
		case VoteNo:
			t.No++
		default:
			t.Pending++
		}
	}
	return t
}

// Successful applies the resolution rule: a photo succeeds iff strictly more
// yes than no decisions exist at the moment of resolution. Ties and empty
// tallies are unsuccessful. The same comparison applies whether resolution
// was triggered by the final vote or by the deadline.
func (t Tally) Successful() bool {
	return t.Yes > t.No
}

// AllCast reports whether no pending slots remain.
func (t Tally) AllCast() bool {
	return t.Pending == 0
}
