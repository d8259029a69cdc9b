// Package scoring predicts a composite ESG score from its four inputs using a
// pre-trained linear model loaded from disk.
package scoring

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"

	"github.com/goccy/go-json"
)

var (
	// ErrUnavailable means the model artifact is missing or unusable.
	ErrUnavailable = errors.New("model unavailable")

	// ErrPrediction means the model produced no usable score.
	ErrPrediction = errors.New("prediction failed")
)

// FeatureCount is the number of model inputs.
const FeatureCount = 4

// Features are ordered sentiment, environmental, social, governance.
type Features [FeatureCount]float64

// Model is a linear regression over Features.
type Model struct {
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
}

// Predict returns the model output. A non-finite result is ErrPrediction.
func (m *Model) Predict(f Features) (float64, error) {
	y := m.Intercept
	for i, x := range f {
		y += m.Coefficients[i] * x
	}
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return 0, fmt.Errorf("%w: result is not finite", ErrPrediction)
	}
	return y, nil
}

func (m *Model) validate() error {
	if len(m.Coefficients) != FeatureCount {
		return fmt.Errorf("want %d coefficients, got %d", FeatureCount, len(m.Coefficients))
	}
	for _, v := range append([]float64{m.Intercept}, m.Coefficients...) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("parameters must be finite")
		}
	}
	return nil
}

// LoadModel reads and validates a model artifact.
// Every failure wraps ErrUnavailable.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrUnavailable, path, err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, path, err)
	}
	return &m, nil
}

// Provider loads the model on first use and keeps it for the process
// lifetime. A failed load is not remembered, so a model file that appears
// later is picked up by the next call.
type Provider struct {
	path string

	mu    sync.Mutex
	model *Model
}

func NewProvider(path string) *Provider {
	return &Provider{path: path}
}

// Path returns the artifact location.
func (p *Provider) Path() string { return p.path }

// Model returns the loaded model, loading it if needed.
func (p *Provider) Model() (*Model, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.model != nil {
		return p.model, nil
	}

	m, err := LoadModel(p.path)
	if err != nil {
		slog.Error("failed to load scoring model", "path", p.path, "error", err)
		return nil, err
	}

	slog.Info("scoring model loaded", "path", p.path)
	p.model = m
	return m, nil
}

// Predict scores features with the provider's model.
func (p *Provider) Predict(f Features) (float64, error) {
	m, err := p.Model()
	if err != nil {
		return 0, err
	}
	return m.Predict(f)
}
