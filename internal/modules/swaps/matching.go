// Package swaps runs the peer-to-peer assignment exchange marketplace:
// propose/accept/cancel with an atomic two-assignment driver exchange, plus
// compatibility scoring for marketplace listings.
package swaps

import (
	"math"

	"github.com/fleetops/dispatch/internal/domain"
)

// AutoMatchThreshold is the minimum compatibility score the marketplace
// surfaces as a recommended swap.
const AutoMatchThreshold = 0.5

const earthRadiusKm = 6371.0

// Compatibility weighs how attractive a proposed swap is for the acceptor:
// 0.4 distance + 0.3 difficulty delta + 0.3 net-benefit flag, each in [0,1].
type Compatibility struct {
	Score           float64 `json:"score"`
	DistanceSavedKm float64 `json:"distance_saved_km"`
	DistanceScore   float64 `json:"distance_score"`
	DifficultyScore float64 `json:"difficulty_score"`
	Beneficial      bool    `json:"beneficial"`
}

// ScoreSwap evaluates a swap from the acceptor's perspective. The acceptor
// currently delivers requestedPkg and would take offeredPkg instead; the
// distance term rewards a shorter drive from their last known position.
// Missing coordinates contribute a neutral zero distance term.
func ScoreSwap(acceptor *domain.Driver, offeredPkg, requestedPkg *domain.Package, offeredDifficulty, requestedDifficulty float64) Compatibility {
	c := Compatibility{}

	oldDist, okOld := driverToDropoff(acceptor, requestedPkg)
	newDist, okNew := driverToDropoff(acceptor, offeredPkg)
	if okOld && okNew && oldDist > 0 {
		improvement := oldDist - newDist
		c.DistanceSavedKm = improvement
		// 2x amplification of the fractional improvement, clamped to [0,1]
		c.DistanceScore = math.Min(1, math.Max(0, 2*improvement/oldDist))
		c.Beneficial = improvement > 0
	}

	c.DifficultyScore = math.Min(1, math.Abs(offeredDifficulty-requestedDifficulty)/50)

	benefit := 0.0
	if c.Beneficial {
		benefit = 1.0
	}
	c.Score = 0.4*c.DistanceScore + 0.3*c.DifficultyScore + 0.3*benefit
	return c
}

func driverToDropoff(d *domain.Driver, p *domain.Package) (float64, bool) {
	if d.CurrentLatitude == nil || d.CurrentLongitude == nil ||
		p.DeliveryLatitude == nil || p.DeliveryLongitude == nil {
		return 0, false
	}
	return Haversine(*d.CurrentLatitude, *d.CurrentLongitude, *p.DeliveryLatitude, *p.DeliveryLongitude), true
}

// Haversine returns the great-circle distance between two points in km
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLon := radians(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
