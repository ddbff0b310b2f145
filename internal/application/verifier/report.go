package verifier

import (
	"fmt"
	"strings"

	"github.com/ozgurural/SecurePoL-Watermarking/internal/domain/pol"
)

// RenderText is the reference textual rendering of a verification result:
// per metric the average/min/max distance, the count and percentage of
// invalid intervals, and a final validity sentence.
func RenderText(r *pol.VerificationResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Verification run %s (proof %s, mode: %s, %d/%d intervals checked)\n",
		r.RunID, r.ProofID, r.Mode, len(r.CheckedIntervals), r.TotalIntervals)

	for _, m := range r.Metrics {
		fmt.Fprintf(&b, "Distance metric: %s || threshold: %g || delta: %g\n",
			m.Metric.Name(), m.Threshold, m.Delta)
		fmt.Fprintf(&b, "Average distance: %g, Max distance: %g, Min distance: %g\n",
			m.Average, m.Max, m.Min)
		if m.InvalidCount == 0 {
			b.WriteString("None of the intervals is above the threshold, the proof-of-learning is valid.\n")
		} else {
			fmt.Fprintf(&b, "%d / %d (%g%%) of the intervals are above the threshold, the proof-of-learning is invalid.\n",
				m.InvalidCount, len(m.Distances), 100*m.InvalidFraction)
		}
	}

	if r.Inconclusive {
		b.WriteString("One or more intervals could not be recomputed; the verification is inconclusive.\n")
	}

	if r.Watermark != nil {
		fmt.Fprintf(&b, "Watermark: %s (confidence %.3f)\n", r.Watermark.Verdict, r.Watermark.Confidence)
	}

	if r.ProofValid {
		b.WriteString("Overall: the proof-of-learning is valid.\n")
	} else {
		b.WriteString("Overall: the proof-of-learning is invalid.\n")
	}
	return b.String()
}
