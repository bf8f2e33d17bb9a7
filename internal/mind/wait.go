package mind

import (
	"slices"
	"time"

	"github.com/keshon/kokoroflow/internal/config"
)

// ClampWait turns a proposed wait into the enforced duration:
// clamp(proposed*multiplier, min, max). A non-positive proposal means no wait.
func ClampWait(cfg config.Wait, proposed time.Duration) time.Duration {
	if proposed <= 0 {
		return 0
	}
	mult := cfg.Multiplier
	if mult <= 0 {
		mult = 1
	}
	d := time.Duration(float64(proposed) * mult)
	if d < cfg.Min {
		d = cfg.Min
	}
	if cfg.Max > 0 && d > cfg.Max {
		d = cfg.Max
	}
	return d
}

// WaitEpisode is the self-imposed wait of a Waiting session.
type WaitEpisode struct {
	StartedAt        time.Time     `json:"started_at"`
	Deadline         time.Time     `json:"deadline"`
	Planned          time.Duration `json:"planned"`
	ExpectedReaction string        `json:"expected_reaction,omitempty"`
	Fired            []int         `json:"fired,omitempty"` // threshold indices, ascending
	LastThoughtAt    time.Time     `json:"last_thought_at"`
	Thoughts         []string      `json:"thoughts,omitempty"`
}

func (w *WaitEpisode) clone() *WaitEpisode {
	if w == nil {
		return nil
	}
	c := *w
	c.Fired = slices.Clone(w.Fired)
	c.Thoughts = slices.Clone(w.Thoughts)
	return &c
}

// Elapsed is the time spent waiting so far.
func (w *WaitEpisode) Elapsed(now time.Time) time.Duration {
	return max(0, now.Sub(w.StartedAt))
}

// Progress is Elapsed/Planned clamped to [0,1].
func (w *WaitEpisode) Progress(now time.Time) float64 {
	if w.Planned <= 0 {
		return 1
	}
	p := float64(w.Elapsed(now)) / float64(w.Planned)
	return min(1, max(0, p))
}

// Expired reports whether the deadline has passed.
func (w *WaitEpisode) Expired(now time.Time) bool {
	return !now.Before(w.Deadline)
}

// NextThreshold returns the index of the lowest threshold that has not fired.
// Thresholds fire in ascending order only, so it is the count already fired.
func (w *WaitEpisode) NextThreshold(thresholds []float64) (int, bool) {
	i := len(w.Fired)
	return i, i < len(thresholds)
}

// ThoughtDue reports whether threshold idx may fire at now.
func (w *WaitEpisode) ThoughtDue(thresholds []float64, minInterval time.Duration, now time.Time) (int, bool) {
	idx, ok := w.NextThreshold(thresholds)
	if !ok || w.Progress(now) < thresholds[idx] {
		return 0, false
	}
	if !w.LastThoughtAt.IsZero() && now.Sub(w.LastThoughtAt) < minInterval {
		return 0, false
	}
	return idx, true
}
