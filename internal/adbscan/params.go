// Package adbscan approximates DBSCAN over large point sets by voting over
// repeated exact runs on random subsamples.
package adbscan

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hotspot-cli/internal/model"
)

// Params controls the approximation.
type Params struct {
	// Eps is the neighborhood radius.
	Eps float64
	// MinPts is the number of other points within Eps that makes a point a
	// core point. When zero it is derived from MinPtsFrac.
	MinPts int
	// MinPtsFrac expresses MinPts as a share of the input size.
	MinPtsFrac float64
	// PctExact is the share of points clustered exactly in each pass.
	PctExact float64
	Reps     int
	Seed     uint64
	Workers  int
}

// DefaultParams returns the historical defaults.
func DefaultParams() Params {
	return Params{Eps: 0.15, MinPtsFrac: 0.01, PctExact: 0.5, Reps: 50}
}

// Validate checks parameter ranges independent of input size.
func (p Params) Validate() error {
	switch {
	case !(p.Eps > 0) || math.IsInf(p.Eps, 0):
		return eris.Wrapf(model.ErrConfig, "adbscan: eps must be positive, got %g", p.Eps)
	case p.MinPts < 0:
		return eris.Wrapf(model.ErrConfig, "adbscan: min_pts must be >= 1, got %d", p.MinPts)
	case p.MinPts == 0 && !(p.MinPtsFrac > 0 && p.MinPtsFrac <= 1):
		return eris.Wrapf(model.ErrConfig, "adbscan: min_pts must be >= 1 (min_pts_frac %g)", p.MinPtsFrac)
	case !(p.PctExact > 0 && p.PctExact <= 1):
		return eris.Wrapf(model.ErrConfig, "adbscan: pct_exact must be in (0,1], got %g", p.PctExact)
	case p.Reps < 1:
		return eris.Wrapf(model.ErrConfig, "adbscan: reps must be >= 1, got %d", p.Reps)
	}
	return nil
}

// ResolveMinPts returns the absolute minPts for an input of n points.
func (p Params) ResolveMinPts(n int) int {
	if p.MinPts > 0 {
		return p.MinPts
	}
	m := int(math.Ceil(p.MinPtsFrac * float64(n)))
	if m < 1 {
		m = 1
	}
	return m
}

// sampleSize returns the number of points clustered exactly per pass.
func (p Params) sampleSize(n int) int {
	m := int(math.Ceil(float64(n) * p.PctExact))
	if m > n {
		m = n
	}
	return m
}

// sampleMinPts scales minPts to the subsample density.
func (p Params) sampleMinPts(minPts int) int {
	m := int(math.Round(float64(minPts) * p.PctExact))
	if m < 1 {
		m = 1
	}
	return m
}
