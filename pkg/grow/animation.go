package grow

import (
	"fmt"
	"time"

	"github.com/chazu/canopy/pkg/tree"
)

// Animation stretches one branch from its start to its target over a
// fixed duration. It is driven by Tick calls from an external frame
// loop; nothing runs between ticks.
type Animation struct {
	reg       *tree.Registry
	id        tree.ID
	duration  time.Duration
	elapsed   time.Duration
	done      bool
	abandoned bool
}

// NewAnimation collapses branch id to its start and returns an
// animation that grows it back over duration. A non-positive duration
// completes on the first tick.
func NewAnimation(reg *tree.Registry, id tree.ID, duration time.Duration) (*Animation, error) {
	if err := reg.SetGrowth(id, 0); err != nil {
		return nil, fmt.Errorf("grow: animate %d: %w", id, err)
	}
	return &Animation{reg: reg, id: id, duration: duration}, nil
}

// ID returns the animated branch.
func (a *Animation) ID() tree.ID { return a.id }

// Progress returns the fraction of the duration elapsed, in [0,1].
func (a *Animation) Progress() float64 {
	if a.duration <= 0 || a.elapsed >= a.duration {
		return 1
	}
	return float64(a.elapsed) / float64(a.duration)
}

// Done reports whether the animation finished or was abandoned.
func (a *Animation) Done() bool { return a.done || a.abandoned }

// Abandon stops the animation where it is. Later ticks do nothing.
func (a *Animation) Abandon() { a.abandoned = true }

// Tick advances the animation by dt and applies the new progress to
// the branch. It reports whether the animation is finished. If the
// branch was deleted mid-growth the animation ends with the error.
func (a *Animation) Tick(dt time.Duration) (bool, error) {
	if a.Done() {
		return true, nil
	}
	if dt > 0 {
		a.elapsed += dt
	}
	p := a.Progress()
	if err := a.reg.SetGrowth(a.id, p); err != nil {
		a.done = true
		return true, fmt.Errorf("grow: animate %d: %w", a.id, err)
	}
	if p >= 1 {
		a.done = true
	}
	return a.done, nil
}
