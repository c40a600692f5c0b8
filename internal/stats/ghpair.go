// Package stats holds the per-instance gradient statistics of a boosting round.
package stats

import "fmt"

// GHPair is a summable (gradient, hessian) pair.
type GHPair struct {
	G float32
	H float32
}

// Add returns p + o.
func (p GHPair) Add(o GHPair) GHPair {
	return GHPair{G: p.G + o.G, H: p.H + o.H}
}

// Sub returns p - o.
func (p GHPair) Sub(o GHPair) GHPair {
	return GHPair{G: p.G - o.G, H: p.H - o.H}
}

// Scale returns p weighted by w.
func (p GHPair) Scale(w float32) GHPair {
	return GHPair{G: p.G * w, H: p.H * w}
}

// Weight returns the optimal leaf weight -G/(H+lambda).
func (p GHPair) Weight(lambda float32) float32 {
	if p.H+lambda == 0 {
		return 0
	}
	return -p.G / (p.H + lambda)
}

// Score returns the structure score G^2/(H+lambda).
func (p GHPair) Score(lambda float32) float32 {
	if p.H+lambda == 0 {
		return 0
	}
	return p.G * p.G / (p.H + lambda)
}

// String formats the pair as g/h.
func (p GHPair) String() string {
	return fmt.Sprintf("%g/%g", p.G, p.H)
}

// Sum adds all pairs.
func Sum(gh []GHPair) GHPair {
	var s GHPair
	for _, p := range gh {
		s = s.Add(p)
	}
	return s
}
