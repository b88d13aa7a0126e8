// Package geo computes the shrinking playable zone for elimination games.
// Everything here is a pure function of the game's timestamps and a clock
// reading, so concurrent callers need no synchronization.
package geo

import (
	"errors"
	"math"
	"time"

	"github.com/sheridanzzz/CamTag-WebApp/internal/models"
)

// ErrZoneUnavailable is returned when zone math is requested for a game that
// has no zone: a standard game, or an elimination game whose deadlines are
// not set yet.
var ErrZoneUnavailable = errors.New("geo: game has no active zone")

// Out-of-zone penalty bounds. The penalty is 5% of the game duration, never
// shorter than MinDisable and never longer than MaxDisable.
const (
	MinDisable = 2 * time.Minute
	MaxDisable = 30 * time.Minute
)

// CurrentRadius returns the zone radius in meters at the given instant. The
// radius shrinks linearly with the fraction of game time remaining and is
// floored at models.MinZoneRadiusMeters, including after the end deadline.
func CurrentRadius(g *models.Game, now time.Time) (float64, error) {
	if g.Elimination == nil || g.StartDeadline == nil || g.EndDeadline == nil {
		return 0, ErrZoneUnavailable
	}

	total := g.EndDeadline.Sub(*g.StartDeadline)
	if total <= 0 {
		return 0, ErrZoneUnavailable
	}

	remaining := g.EndDeadline.Sub(now)
	fraction := float64(remaining) / float64(total)

	r := g.Elimination.InitialRadius * fraction
	if r < models.MinZoneRadiusMeters {
		r = models.MinZoneRadiusMeters
	}
	return r, nil
}

// InZone reports whether the position is inside the zone at the given
// instant.
func InZone(g *models.Game, lat, lng float64, now time.Time) (bool, error) {
	radius, err := CurrentRadius(g, now)
	if err != nil {
		return false, err
	}
	d := Distance(g.Elimination.Latitude, g.Elimination.Longitude, lat, lng)
	return d <= radius, nil
}

// DisableDuration returns how long a player is locked out for using ammo
// outside the zone: 5% of the game duration, clamped to
// [MinDisable, MaxDisable]. Deterministic given the game's deadlines.
func DisableDuration(g *models.Game) (time.Duration, error) {
	if g.StartDeadline == nil || g.EndDeadline == nil {
		return 0, ErrZoneUnavailable
	}

	total := g.EndDeadline.Sub(*g.StartDeadline)
	d := total / 20
	if d < MinDisable {
		d = MinDisable
	} else if d > MaxDisable {
		d = MaxDisable
	}
	return d, nil
}

const earthRadiusMeters = 6371000.0

// Distance returns the great-circle distance in meters between two
// coordinates, using the haversine formula.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	φ1 := lat1 * math.Pi / 180
	φ2 := lat2 * math.Pi / 180
	Δφ := (lat2 - lat1) * math.Pi / 180
	Δλ := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(Δφ/2)*math.Sin(Δφ/2) +
		math.Cos(φ1)*math.Cos(φ2)*math.Sin(Δλ/2)*math.Sin(Δλ/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}
