// Package metric scores the running predictions on the training set.
package metric

import (
	"fmt"
	"math"

	"github.com/born-ml/boost/internal/objective"
	"github.com/born-ml/boost/internal/param"
	"gonum.org/v1/gonum/floats"
)

// Metric scores raw predictions (class-major margins) against the labels
// recorded by Configure. Lower is better for every metric here.
type Metric interface {
	Configure(p param.GBMParam, y []float32) error
	Score(yPred []float32) float64
	Name() string
}

// Create returns the metric registered under name.
func Create(name string) (Metric, error) {
	switch name {
	case "rmse":
		return &rmse{}, nil
	case "error":
		return &binaryError{}, nil
	case "logloss":
		return &logLoss{}, nil
	case "merror":
		return &multiError{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown metric %q", param.ErrConfiguration, name)
	}
}

type labels struct {
	y        []float64
	numClass int
}

func (l *labels) Configure(p param.GBMParam, y []float32) error {
	if len(y) == 0 {
		return fmt.Errorf("%w: no labels", param.ErrConfiguration)
	}
	l.y = widen(y)
	l.numClass = p.NumClass
	return nil
}

func widen(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// rmse is the root mean squared error of the margins.
type rmse struct{ labels }

func (m *rmse) Name() string { return "rmse" }

func (m *rmse) Score(yPred []float32) float64 {
	pred := widen(yPred[:len(m.y)])
	return floats.Distance(pred, m.y, 2) / math.Sqrt(float64(len(m.y)))
}

// binaryError is the fraction of instances on the wrong side of probability 0.5.
type binaryError struct{ labels }

func (m *binaryError) Name() string { return "error" }

func (m *binaryError) Score(yPred []float32) float64 {
	wrong := make([]float64, len(m.y))
	for i, y := range m.y {
		if (objective.Sigmoid(yPred[i]) > 0.5) != (y > 0.5) {
			wrong[i] = 1
		}
	}
	return floats.Sum(wrong) / float64(len(m.y))
}

// logLoss is the mean binary cross entropy of the sigmoid outputs.
type logLoss struct{ labels }

func (m *logLoss) Name() string { return "logloss" }

func (m *logLoss) Score(yPred []float32) float64 {
	const eps = 1e-16
	loss := make([]float64, len(m.y))
	for i, y := range m.y {
		p := min(max(float64(objective.Sigmoid(yPred[i])), eps), 1-eps)
		loss[i] = -(y*math.Log(p) + (1-y)*math.Log(1-p))
	}
	return floats.Sum(loss) / float64(len(m.y))
}

// multiError is the fraction of instances whose largest margin is not the
// labeled class.
type multiError struct{ labels }

func (m *multiError) Name() string { return "merror" }

func (m *multiError) Score(yPred []float32) float64 {
	n := len(m.y)
	wrong := make([]float64, n)
	row := make([]float64, m.numClass)
	for i, y := range m.y {
		for c := range row {
			row[c] = float64(yPred[c*n+i])
		}
		if floats.MaxIdx(row) != int(y) {
			wrong[i] = 1
		}
	}
	return floats.Sum(wrong) / float64(n)
}
