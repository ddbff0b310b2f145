package verifier

import (
	"strings"
	"testing"

	"github.com/ozgurural/SecurePoL-Watermarking/internal/domain/pol"
)

// referenceResult mirrors the reference run: a single checked interval with
// L1 and Linf above their thresholds and L2 and cosine below.
func referenceResult() *pol.VerificationResult {
	metric := func(m pol.Metric, avg, max, min float64, invalid int) pol.MetricReport {
		report := pol.MetricReport{
			Metric:    m,
			Threshold: m.DefaultThreshold(),
			Average:   avg,
			Max:       max,
			Min:       min,
			Distances: []pol.IntervalDistance{{
				Interval: 4,
				Distance: avg,
				Invalid:  invalid > 0,
				Status:   pol.IntervalOK,
			}},
			InvalidCount: invalid,
			Valid:        invalid == 0,
		}
		if invalid > 0 {
			report.InvalidFraction = 1
		}
		return report
	}

	return &pol.VerificationResult{
		RunID:            "run-ref",
		ProofID:          "proof-ref",
		Mode:             pol.RunModeFull,
		CheckedIntervals: []int{4},
		TotalIntervals:   5,
		Metrics: []pol.MetricReport{
			metric(pol.MetricL1, 1312.5, 1312.5, 1312.5, 1),
			metric(pol.MetricL2, 3.98, 3.98, 3.98, 0),
			metric(pol.MetricLInf, 0.137, 0.137, 0.137, 1),
			metric(pol.MetricCosine, 0.0038, 0.0038, 0.0038, 0),
		},
		DistanceValid: false,
		ProofValid:    false,
	}
}

func TestRenderTextReferenceShape(t *testing.T) {
	text := RenderText(referenceResult())

	expected := []string{
		"Distance metric: L1 || threshold: 1000",
		"Average distance: 1312.5, Max distance: 1312.5, Min distance: 1312.5",
		"1 / 1 (100%) of the intervals are above the threshold, the proof-of-learning is invalid.",
		"Distance metric: L2 || threshold: 10",
		"Average distance: 3.98",
		"None of the intervals is above the threshold, the proof-of-learning is valid.",
		"Distance metric: Linf || threshold: 0.1",
		"Average distance: 0.137",
		"Distance metric: cosine || threshold: 0.01",
		"Average distance: 0.0038",
		"Overall: the proof-of-learning is invalid.",
	}
	for _, want := range expected {
		if !strings.Contains(text, want) {
			t.Errorf("report missing %q\nreport:\n%s", want, text)
		}
	}
}

func TestRenderTextValidProof(t *testing.T) {
	r := referenceResult()
	for i := range r.Metrics {
		r.Metrics[i].InvalidCount = 0
		r.Metrics[i].InvalidFraction = 0
		r.Metrics[i].Valid = true
		r.Metrics[i].Distances[0].Invalid = false
	}
	r.DistanceValid = true
	r.ProofValid = true

	text := RenderText(r)
	if strings.Contains(text, "is invalid") {
		t.Errorf("valid report mentions invalidity:\n%s", text)
	}
	if !strings.Contains(text, "Overall: the proof-of-learning is valid.") {
		t.Errorf("valid report missing overall verdict:\n%s", text)
	}
}

func TestRenderTextWatermarkLine(t *testing.T) {
	r := referenceResult()
	r.Watermark = &pol.WatermarkOutcome{Confidence: 0.97, Verdict: "present", Present: true}

	text := RenderText(r)
	if !strings.Contains(text, "Watermark: present (confidence 0.970)") {
		t.Errorf("report missing watermark line:\n%s", text)
	}
}

func TestRenderTextInconclusive(t *testing.T) {
	r := referenceResult()
	r.Inconclusive = true

	text := RenderText(r)
	if !strings.Contains(text, "inconclusive") {
		t.Errorf("report does not surface inconclusiveness:\n%s", text)
	}
}
