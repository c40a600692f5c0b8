// Package objective implements the loss functions boosted by the engine.
//
// Predictions and gradients of multi-output objectives are laid out
// class-major: entry k*n+i belongs to class k of instance i.
package objective

import (
	"fmt"
	"math"

	"github.com/born-ml/boost/internal/parallel"
	"github.com/born-ml/boost/internal/param"
	"github.com/born-ml/boost/internal/stats"
)

// Objective computes first and second order gradients of a loss.
type Objective interface {
	// Configure checks the labels against the objective and records the
	// output shape.
	Configure(p param.GBMParam, y []float32) error

	// GetGradient fills gh from labels y and raw predictions yPred.
	// len(yPred) == len(gh) == num_class * len(y).
	GetGradient(y, yPred []float32, gh []stats.GHPair)

	// PredTransform maps raw predictions to the objective's output space.
	PredTransform(yPred []float32) []float32

	// DefaultMetricName names the metric reported during training.
	DefaultMetricName() string
}

// Create returns the objective registered under name.
func Create(name string) (Objective, error) {
	switch name {
	case "reg:linear", "reg:squarederror":
		return &regression{}, nil
	case "reg:logistic", "binary:logistic":
		return &logistic{}, nil
	case "multi:softmax":
		return &softmax{}, nil
	case "multi:softprob":
		return &softmax{prob: true}, nil
	default:
		return nil, fmt.Errorf("%w: unknown objective %q", param.ErrConfiguration, name)
	}
}

// regression is squared loss: g = p - y, h = 1.
type regression struct{}

func (r *regression) Configure(p param.GBMParam, _ []float32) error {
	if p.NumClass != 1 {
		return fmt.Errorf("%w: regression needs num_class 1, got %d", param.ErrConfiguration, p.NumClass)
	}
	return nil
}

func (r *regression) GetGradient(y, yPred []float32, gh []stats.GHPair) {
	parallel.For(len(y), func(i int) {
		gh[i] = stats.GHPair{G: yPred[i] - y[i], H: 1}
	}, parallel.DefaultConfig())
}

func (r *regression) PredTransform(yPred []float32) []float32 {
	return append([]float32(nil), yPred...)
}

func (r *regression) DefaultMetricName() string { return "rmse" }

// logistic is the log loss of a sigmoid output for labels in [0, 1].
type logistic struct{}

func (l *logistic) Configure(p param.GBMParam, y []float32) error {
	if p.NumClass != 1 {
		return fmt.Errorf("%w: logistic needs num_class 1, got %d", param.ErrConfiguration, p.NumClass)
	}
	for i, v := range y {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: label %g of instance %d not in [0, 1]", param.ErrConfiguration, v, i)
		}
	}
	return nil
}

func (l *logistic) GetGradient(y, yPred []float32, gh []stats.GHPair) {
	parallel.For(len(y), func(i int) {
		p := Sigmoid(yPred[i])
		gh[i] = stats.GHPair{G: p - y[i], H: max(p*(1-p), 1e-16)}
	}, parallel.DefaultConfig())
}

func (l *logistic) PredTransform(yPred []float32) []float32 {
	out := make([]float32, len(yPred))
	for i, v := range yPred {
		out[i] = Sigmoid(v)
	}
	return out
}

func (l *logistic) DefaultMetricName() string { return "error" }

// softmax is the multi-class log loss. Labels are class indices.
type softmax struct {
	prob     bool
	numClass int
}

func (s *softmax) Configure(p param.GBMParam, y []float32) error {
	if p.NumClass < 2 {
		return fmt.Errorf("%w: softmax needs num_class > 1, got %d", param.ErrConfiguration, p.NumClass)
	}
	for i, v := range y {
		if v != float32(int(v)) || v < 0 || int(v) >= p.NumClass {
			return fmt.Errorf("%w: label %g of instance %d is not a class in [0, %d)",
				param.ErrConfiguration, v, i, p.NumClass)
		}
	}
	s.numClass = p.NumClass
	return nil
}

func (s *softmax) GetGradient(y, yPred []float32, gh []stats.GHPair) {
	n, k := len(y), s.numClass
	parallel.For(n, func(i int) {
		prob := make([]float32, k)
		for c := range k {
			prob[c] = yPred[c*n+i]
		}
		Softmax(prob)
		label := int(y[i])
		for c, p := range prob {
			g := p
			if c == label {
				g -= 1
			}
			gh[c*n+i] = stats.GHPair{G: g, H: max(2*p*(1-p), 1e-16)}
		}
	}, parallel.DefaultConfig())
}

// PredTransform returns class probabilities (class-major) for multi:softprob
// and the most likely class per instance for multi:softmax.
func (s *softmax) PredTransform(yPred []float32) []float32 {
	k := s.numClass
	n := len(yPred) / k
	probs := make([]float32, len(yPred))
	labels := make([]float32, n)
	row := make([]float32, k)
	for i := range n {
		for c := range k {
			row[c] = yPred[c*n+i]
		}
		Softmax(row)
		best := 0
		for c, p := range row {
			probs[c*n+i] = p
			if p > row[best] {
				best = c
			}
		}
		labels[i] = float32(best)
	}
	if s.prob {
		return probs
	}
	return labels
}

func (s *softmax) DefaultMetricName() string { return "merror" }

// Sigmoid returns 1/(1+e^-x).
func Sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}

// Softmax replaces v by its normalized exponentials.
func Softmax(v []float32) {
	if len(v) == 0 {
		return
	}
	m := v[0]
	for _, x := range v[1:] {
		m = max(m, x)
	}
	var sum float64
	for i, x := range v {
		e := math.Exp(float64(x - m))
		v[i] = float32(e)
		sum += e
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / sum)
	}
}
