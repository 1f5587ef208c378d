package progress

import "sync"

// skipTolerance is how far past the high-water mark a reported position may
// land before it counts as a skip. Normal playback advances in sub-second
// steps; anything beyond one second is a seek.
const skipTolerance = 1.0

// Guard blocks skip-ahead during video playback. It tracks the high-water
// mark of playback position; positions beyond the mark plus tolerance are
// rejected and the caller is told to seek back.
type Guard struct {
	mu         sync.Mutex
	maxWatched float64
}

// NewGuard creates a guard, optionally resuming from a previously persisted
// position.
func NewGuard(resumeFrom float64) *Guard {
	return &Guard{maxWatched: resumeFrom}
}

// RecordTime handles a playback time update. It returns the position the
// player should be at and whether a forced seek-back is required. When the
// reported position is within tolerance, the high-water mark advances.
func (g *Guard) RecordTime(position float64) (float64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if position > g.maxWatched+skipTolerance {
		return g.maxWatched, true
	}
	if position > g.maxWatched {
		g.maxWatched = position
	}
	return position, false
}

// RequestSeek reports whether an explicit seek to target is allowed. Only
// already-watched positions are seekable.
func (g *Guard) RequestSeek(target float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return target <= g.maxWatched
}

// MaxWatched returns the current high-water mark.
func (g *Guard) MaxWatched() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.maxWatched
}
