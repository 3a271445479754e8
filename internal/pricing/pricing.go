// Package pricing is the flat-rate fare table used when a broadcast is created.
package pricing

import (
	"fmt"
	"math"
	"strings"

	"truck-dispatch/internal/apperr"
)

// Fare is a fare breakdown in the smallest currency unit.
type Fare struct {
	BaseFare     int64
	DistanceFare int64
	PerTruck     int64
	Total        int64
}

// Estimator prices a request.
type Estimator interface {
	Estimate(vehicleType string, distanceKm float64, trucks int) (Fare, error)
}

type rate struct {
	base  int64
	perKm int64
}

type flatTable struct{}

// NewFlatTable - creates the flat-rate Estimator.
func NewFlatTable() Estimator {
	return flatTable{}
}

// Estimate returns the fare for trucks vehicles of the type over distanceKm.
func (flatTable) Estimate(vehicleType string, distanceKm float64, trucks int) (Fare, error) {
	r, err := rateFor(vehicleType)
	if err != nil {
		return Fare{}, err
	}
	if distanceKm < 0 || trucks <= 0 {
		return Fare{}, fmt.Errorf("%w: distance %.2f, trucks %d", apperr.ErrInvalid, distanceKm, trucks)
	}
	distance := int64(math.Ceil(distanceKm)) * r.perKm
	per := r.base + distance
	return Fare{
		BaseFare:     r.base,
		DistanceFare: distance,
		PerTruck:     per,
		Total:        per * int64(trucks),
	}, nil
}

func rateFor(vehicleType string) (rate, error) {
	switch strings.ToLower(strings.TrimSpace(vehicleType)) {
	case "mini", "pickup":
		return rate{base: 500, perKm: 18}, nil
	case "open":
		return rate{base: 1200, perKm: 32}, nil
	case "container":
		return rate{base: 1800, perKm: 45}, nil
	case "trailer":
		return rate{base: 3000, perKm: 60}, nil
	case "tipper":
		return rate{base: 2200, perKm: 50}, nil
	case "tanker":
		return rate{base: 2500, perKm: 55}, nil
	default:
		return rate{}, fmt.Errorf("%w: unknown vehicle type %q", apperr.ErrInvalid, vehicleType)
	}
}
