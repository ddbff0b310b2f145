package pol

import "fmt"

// Metric identifies a distance metric over flattened parameter vectors.
// The set is closed: dispatch is a simple switch, not a hierarchy.
type Metric string

const (
	MetricL1     Metric = "1"
	MetricL2     Metric = "2"
	MetricLInf   Metric = "inf"
	MetricCosine Metric = "cos"
)

// AllMetrics lists every supported metric in canonical order.
func AllMetrics() []Metric {
	return []Metric{MetricL1, MetricL2, MetricLInf, MetricCosine}
}

// ParseMetric resolves a metric identifier as accepted on the command line.
func ParseMetric(s string) (Metric, error) {
	switch s {
	case "1", "l1", "L1":
		return MetricL1, nil
	case "2", "l2", "L2":
		return MetricL2, nil
	case "inf", "linf", "Linf":
		return MetricLInf, nil
	case "cos", "cosine":
		return MetricCosine, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMetric, s)
}

// DefaultThreshold returns the metric's default validity threshold, tuned
// for the reference training configuration.
func (m Metric) DefaultThreshold() float64 {
	switch m {
	case MetricL1:
		return 1000
	case MetricL2:
		return 10
	case MetricLInf:
		return 0.1
	case MetricCosine:
		return 0.01
	}
	return 0
}

// String returns the canonical identifier.
func (m Metric) String() string { return string(m) }

// Name returns a human-readable metric name for reports.
func (m Metric) Name() string {
	switch m {
	case MetricL1:
		return "L1"
	case MetricL2:
		return "L2"
	case MetricLInf:
		return "Linf"
	case MetricCosine:
		return "cosine"
	}
	return string(m)
}

// ActiveThreshold inflates the default threshold by the additive slack
// delta. Delta absorbs legitimate numeric nondeterminism; delta = 0 is the
// strictest mode.
func (m Metric) ActiveThreshold(delta float64) float64 {
	if delta < 0 {
		delta = 0
	}
	return m.DefaultThreshold() + delta
}
