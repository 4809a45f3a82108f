// Package oracle answers how many results a query has. The session
// sprouts one branch per result.
package oracle

import (
	"context"
	"errors"
	"sync"

	"github.com/chazu/canopy/pkg/grow"
)

// ErrNoResults is returned when a response carries nothing to count.
var ErrNoResults = errors.New("oracle: no results")

// Oracle reports the number of results for a query.
type Oracle interface {
	Results(ctx context.Context, query string) (int, error)
}

// SimulatedMax is the largest count Simulated returns.
const SimulatedMax = 4

// Simulated draws a count in [1, SimulatedMax] from a seeded source.
type Simulated struct {
	mu  sync.Mutex
	rnd grow.Source
}

// NewSimulated returns a Simulated oracle seeded with seed.
func NewSimulated(seed int64) *Simulated {
	return &Simulated{rnd: grow.NewSource(seed)}
}

func (s *Simulated) Results(ctx context.Context, query string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return 1 + s.rnd.Intn(SimulatedMax), nil
}

// Fixed always returns N. Useful for scripted sessions.
type Fixed int

func (f Fixed) Results(ctx context.Context, query string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return int(f), nil
}
