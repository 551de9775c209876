package sensor

import (
	"context"

	"github.com/smartcrop/sensor-node/internal/model"
)

// Sensor is the uniform capability surface every sensor kind implements.
type Sensor interface {
	Kind() model.Kind
	// Collect takes one sample of every tracked attribute and appends it.
	Collect(ctx context.Context) error
	// Reduce collapses each attribute to its median. It fails unless every attribute
	// holds exactly the configured number of samples.
	Reduce() bool
	// Package returns the reduced reading; ok is false when Reduce did not succeed.
	Package(node int) (model.Reading, bool)
	// Reset clears accumulated samples and reduced values.
	Reset()
}

// accumulator holds per-attribute samples for one cycle and their reduced values.
type accumulator struct {
	attrs   []string
	n       int
	samples map[string][]model.Value
	reduced map[string]model.Value
}

func newAccumulator(n int, attrs ...string) accumulator {
	a := accumulator{attrs: attrs, n: n}
	a.reset()
	return a
}

func (a *accumulator) add(attr string, v model.Value) {
	a.samples[attr] = append(a.samples[attr], v)
}

func (a *accumulator) count(attr string) int {
	return len(a.samples[attr])
}

func (a *accumulator) first(attr string) (model.Value, bool) {
	s := a.samples[attr]
	if len(s) == 0 {
		return model.Value{}, false
	}
	return s[0], true
}

func (a *accumulator) reduce() bool {
	reduced := make(map[string]model.Value, len(a.attrs))
	for _, attr := range a.attrs {
		v, ok := Median(a.samples[attr], a.n)
		if !ok {
			a.reduced = nil
			return false
		}
		reduced[attr] = v
	}
	a.reduced = reduced
	return true
}

func (a *accumulator) reading(kind model.Kind, node int) (model.Reading, bool) {
	if a.reduced == nil {
		return model.Reading{}, false
	}
	values := make(map[string]model.Value, len(a.reduced))
	for k, v := range a.reduced {
		values[k] = v
	}
	return model.Reading{Sensor: kind, Node: node, Values: values}, true
}

func (a *accumulator) reset() {
	a.samples = make(map[string][]model.Value, len(a.attrs))
	a.reduced = nil
}
