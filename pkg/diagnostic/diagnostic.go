// Package diagnostic interprets pairwise protocol comparisons into
// human/agent-readable verdicts: which protocol held up better under a given
// network condition, by how much, and with what caveats.
package diagnostic

import (
	"fmt"

	"github.com/netforge/protoperf/pkg/types"
)

// Verdict holds the semantic interpretation of one comparison.
type Verdict struct {
	Winner    string   `json:"winner"`
	Magnitude string   `json:"magnitude"`
	Summary   string   `json:"summary"`
	Concerns  []string `json:"concerns"`
}

// Params are the raw comparison values to interpret. RowA and RowB are the
// result rows the comparison was derived from and supply the quality flags.
type Params struct {
	Comparison types.Comparison
	RowA       types.ResultRow
	RowB       types.ResultRow
}

// Interpret produces a Verdict from one pairwise comparison.
func Interpret(p Params) *Verdict {
	v := &Verdict{
		Concerns: []string{},
	}

	v.Winner = pickWinner(p.Comparison)
	v.Magnitude = rateMagnitude(p.Comparison.MeanRatio)
	v.Concerns = concerns(p)
	v.Summary = buildSummary(v, p)

	return v
}

// pickWinner names the faster protocol by mean latency, or "tie" when the
// gap is inside the noise band.
func pickWinner(c types.Comparison) string {
	switch {
	case c.MeanRatio > 0.02:
		return c.ProtocolA
	case c.MeanRatio < -0.02:
		return c.ProtocolB
	default:
		return "tie"
	}
}

func rateMagnitude(meanRatio float64) string {
	gap := meanRatio
	if gap < 0 {
		gap = -gap
	}
	switch {
	case gap <= 0.02:
		return "negligible"
	case gap <= 0.10:
		return "minor"
	case gap <= 0.30:
		return "moderate"
	default:
		return "major"
	}
}

func concerns(p Params) []string {
	c := []string{}

	if p.RowA.Degraded || p.RowB.Degraded {
		c = append(c, "degraded_measurement")
	}
	if p.RowA.Missing || p.RowB.Missing {
		c = append(c, "missing_measurement")
	}
	if p.RowA.Filtered || p.RowB.Filtered {
		c = append(c, "outliers_removed")
	}

	// Mean and p95 pointing in opposite directions usually means one side
	// has a heavy tail; the mean alone is then misleading.
	if p.Comparison.MeanRatio*p.Comparison.P95Ratio < 0 {
		c = append(c, "tail_disagrees_with_mean")
	}

	return c
}

func buildSummary(v *Verdict, p Params) string {
	c := p.Comparison
	if v.Winner == "tie" {
		return fmt.Sprintf("%s and %s are within noise of each other under %s",
			c.ProtocolA, c.ProtocolB, c.Profile)
	}

	gap := c.MeanRatio * 100
	if gap < 0 {
		gap = -gap
	}
	return fmt.Sprintf("%s is %.1f%% faster on mean latency under %s (%s gap)",
		v.Winner, gap, c.Profile, v.Magnitude)
}
