// Package testutil provides deterministic random data generation for tests:
// a seeded RNG and generators for the indexed morphology types.
package testutil

import (
	"math/rand"
	"sync"

	"github.com/hupe1980/morphidx/geometry"
	"github.com/hupe1980/morphidx/model"
)

// RNG encapsulates a seeded random number generator. It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float32 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float32() float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float32()
}

// Float32Range returns a pseudo-random number in [minVal, maxVal).
func (r *RNG) Float32Range(minVal, maxVal float32) float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return minVal + r.rand.Float32()*(maxVal-minVal)
}

// Point returns a random point with coordinates in [minVal, maxVal).
func (r *RNG) Point(minVal, maxVal float32) geometry.Point3D {
	return geometry.Point3D{
		X: r.Float32Range(minVal, maxVal),
		Y: r.Float32Range(minVal, maxVal),
		Z: r.Float32Range(minVal, maxVal),
	}
}

// Spheres returns n random indexed spheres with ids 0..n-1, centers in
// [minVal, maxVal) and radii in [0.01, 1).
func (r *RNG) Spheres(n int, minVal, maxVal float32) []model.IndexedSphere {
	out := make([]model.IndexedSphere, n)
	for i := range out {
		out[i] = model.IndexedSphere{
			ID:     uint64(i),
			Center: r.Point(minVal, maxVal),
			Radius: r.Float32Range(0.01, 1),
		}
	}
	return out
}

// Synapses returns n random synapses with ids 0..n-1 and post gids in
// [0, nNeurons).
func (r *RNG) Synapses(n, nNeurons int, minVal, maxVal float32) []model.Synapse {
	out := make([]model.Synapse, n)
	for i := range out {
		out[i] = model.Synapse{
			ID:      uint64(i),
			PostGID: uint64(r.Intn(nNeurons)),
			PreGID:  uint64(r.Intn(nNeurons)),
			Center:  r.Point(minVal, maxVal),
		}
	}
	return out
}

// Segments returns n random segments with gids 0..n-1, unit-scale lengths
// and radii in [0.01, 0.5).
func (r *RNG) Segments(n int, minVal, maxVal float32) []model.Segment {
	out := make([]model.Segment, n)
	for i := range out {
		p1 := r.Point(minVal, maxVal)
		out[i] = model.Segment{
			GID:       uint64(i),
			SectionID: uint32(r.Intn(16)),
			SegmentID: uint32(i),
			P1:        p1,
			P2:        p1.Add(r.Point(-1, 1)),
			Radius:    r.Float32Range(0.01, 0.5),
		}
	}
	return out
}
