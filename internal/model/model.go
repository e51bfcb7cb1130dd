// Package model holds the demo ML predictor. It is a placeholder kept for
// parity with the /predict endpoint: numeric inputs are doubled and
// anything else is echoed back with a suffix.
package model

import "fmt"

// Predictor is the stand-in for a real model.
type Predictor struct{}

// New returns a ready Predictor. There is no training step; the "model" is
// arithmetic.
func New() *Predictor {
	return &Predictor{}
}

// Predict returns a dummy prediction for a single data point. A map input
// has its "value" field doubled; any other input is echoed with a
// "_predicted" suffix.
func (p *Predictor) Predict(data any) any {
	switch v := data.(type) {
	case map[string]any:
		value, _ := toFloat(v["value"])
		return value * 2
	case float64:
		return v * 2
	case int:
		return float64(v) * 2
	default:
		return fmt.Sprintf("%v_predicted", v)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
