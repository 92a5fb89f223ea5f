// Package stats provides the pure percentile computation and the feedback
// message tiers for accepted sessions. It owns no state; callers hand it the
// day's prior durations.
package stats

import (
	"fmt"
	"math"
)

// Percentile returns how a new duration ranks against the day's prior
// sessions, as an integer in [0,100]: the rounded share of priors the new
// duration meets or exceeds. The day's first session ranks at 100 by policy.
func Percentile(newDuration int, priors []int) int {
	if len(priors) == 0 {
		return 100
	}

	atOrBelow := 0
	for _, d := range priors {
		if d <= newDuration {
			atOrBelow++
		}
	}

	return int(math.Round(100 * float64(atOrBelow) / float64(len(priors))))
}

// Message tier breakpoints, highest first. Ordering is part of the contract:
// the first breakpoint at or below the percentile selects the tier.
var tiers = []struct {
	floor   int
	message func(percentile int) string
}{
	{99, func(int) string {
		return "welcome to the nothing club - you are in the top 1% of users."
	}},
	{95, func(p int) string {
		return fmt.Sprintf("stillness like this is rare - you're in the top %d%% of users.", 100-p)
	}},
	{90, func(p int) string {
		return fmt.Sprintf("exceptional focus - you outlasted %d%% of users today.", p)
	}},
	{75, func(p int) string {
		return fmt.Sprintf("you were more still than %d%% of users today.", p)
	}},
	{50, func(p int) string {
		return fmt.Sprintf("good practice - you were more still than %d%% of users today.", p)
	}},
	{25, func(int) string {
		return "every moment of stillness counts. keep practicing."
	}},
}

// MessageFor selects the encouraging feedback message for a percentile.
func MessageFor(percentile int) string {
	for _, tier := range tiers {
		if percentile >= tier.floor {
			return tier.message(percentile)
		}
	}
	return "stillness is a practice. this is a beautiful start."
}

// FormatDuration renders a duration in seconds as a compact human string,
// e.g. "1h 4m 5s", "3m 20s", or "45s".
func FormatDuration(seconds int) string {
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, secs)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}
