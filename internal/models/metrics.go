// Package models defines the result data structures passed between resolvers,
// the result cache and the metrics exporter.
package models

import (
	"fmt"
	"time"
)

// Value is a single metric value inside a Result. It is either a Number or a
// LabeledMetric; the exporter treats the two differently.
type Value interface {
	// Float returns the numeric part of the value.
	Float() float64
	isValue()
}

// Number is a plain numeric metric value.
type Number float64

// Float returns the value as float64.
func (n Number) Float() float64 { return float64(n) }

func (Number) isValue() {}

// LabeledMetric pairs a numeric value with a categorical label, for example a
// gauge set to 1 for the currently active map together with the map name.
type LabeledMetric struct {
	Value float64 `json:"value"`
	Label string  `json:"label"`
}

// Float returns the numeric part of the labeled metric.
func (l LabeledMetric) Float() float64 { return l.Value }

func (LabeledMetric) isValue() {}

// Metrics maps metric names to their values.
type Metrics map[string]Value

// Outcome is what a single resolver run produces: a *Result when a new
// measurement was taken, or a SkippedRun when the resolver chose not to run.
type Outcome interface {
	isOutcome()
}

// Result is an immutable measurement. Construct it with NewResult; the
// metrics map is copied so later changes by the caller are not visible.
type Result struct {
	timestamp time.Time
	metrics   Metrics
}

// NewResult creates a Result measured at timestamp.
func NewResult(timestamp time.Time, metrics Metrics) *Result {
	copied := make(Metrics, len(metrics))
	for name, value := range metrics {
		copied[name] = value
	}
	return &Result{
		timestamp: timestamp,
		metrics:   copied,
	}
}

func (*Result) isOutcome() {}

// Timestamp returns the instant the measurement completed.
func (r *Result) Timestamp() time.Time { return r.timestamp }

// Metric returns a single metric value by name.
func (r *Result) Metric(name string) (Value, bool) {
	v, ok := r.metrics[name]
	return v, ok
}

// Metrics returns a copy of all metric values.
func (r *Result) Metrics() Metrics {
	copied := make(Metrics, len(r.metrics))
	for name, value := range r.metrics {
		copied[name] = value
	}
	return copied
}

// Len returns the number of metrics in the result.
func (r *Result) Len() int { return len(r.metrics) }

// Range calls fn for every metric. Iteration order is unspecified.
func (r *Result) Range(fn func(name string, value Value)) {
	for name, value := range r.metrics {
		fn(name, value)
	}
}

// SkippedRun signals that a resolver deliberately took no measurement this
// cycle. It is not an error.
type SkippedRun struct {
	Reason string
}

func (SkippedRun) isOutcome() {}

// Skip builds a SkippedRun with a formatted reason.
func Skip(format string, args ...any) SkippedRun {
	return SkippedRun{Reason: fmt.Sprintf(format, args...)}
}
