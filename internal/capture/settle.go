package capture

import (
	"context"
	"math"
)

// SettleOptions tunes AwaitScrollSettled.
type SettleOptions struct {
	MaxFrames int     `json:"max_frames"`
	Tolerance float64 `json:"tolerance"`
}

// DefaultSettleOptions matches the frame budget used for captures.
func DefaultSettleOptions() SettleOptions {
	return SettleOptions{MaxFrames: 30, Tolerance: 1}
}

// Why AwaitScrollSettled returned.
const (
	SettleReached   = "reached"
	SettleStable    = "stable"
	SettleExhausted = "exhausted"
	SettleCanceled  = "canceled"
)

// SettleResult reports where the scroll ended up.
type SettleResult struct {
	Offset float64 `json:"offset"`
	Frames int     `json:"frames"`
	Reason string  `json:"reason"`
}

// stableSamples is how many consecutive unchanged samples count as "stopped".
const stableSamples = 2

// AwaitScrollSettled waits, one frame pair at a time, until the viewport's
// scroll offset is within tolerance of target or has stopped moving.
//
// This is a heuristic. It may return with an offset that neither reached the
// target nor is provably final (bounce, clamped max scroll, or an exhausted
// frame budget); callers capture whatever offset is current.
func AwaitScrollSettled(ctx context.Context, reader ScrollReader, frames FrameWaiter, target float64, opts SettleOptions) SettleResult {
	if opts.MaxFrames <= 0 {
		opts.MaxFrames = DefaultSettleOptions().MaxFrames
	}
	if opts.Tolerance < 0 {
		opts.Tolerance = 0
	}

	last := -1.0
	stable := 0
	res := SettleResult{Offset: math.NaN(), Reason: SettleExhausted}

	for i := 0; i < opts.MaxFrames; i++ {
		if err := frames.NextFrame(ctx); err != nil {
			res.Frames = i + 1
			res.Reason = SettleCanceled
			return res
		}
		res.Frames = i + 1

		cur, err := reader.ScrollTop(ctx)
		if err != nil {
			// An unreadable sample neither advances nor resets stability.
			continue
		}
		res.Offset = cur

		if math.Abs(cur-target) <= opts.Tolerance {
			res.Reason = SettleReached
			return res
		}

		if math.Abs(cur-last) <= opts.Tolerance {
			stable++
		} else {
			stable = 0
		}
		if stable >= stableSamples {
			res.Reason = SettleStable
			return res
		}
		last = cur
	}
	return res
}
