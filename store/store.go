package store

import (
	"context"
	"time"
)

// Persisted status values. Lifecycle states live in memory; the store only
// records whether a model was serving.
const (
	StatusActive = "active"
	StatusIdle   = "idle"
)

// Model is the persisted form of a registered model.
type Model struct {
	ID        string
	Name      string
	Type      string
	Framework string
	Device    string
	Language  string
	Path      string
	Endpoint  string
	Region    string
	// APIKey holds the encrypted key, never plaintext.
	APIKey    string
	Status    string
	Loaded    bool
	Latency   *float64
	CreatedAt time.Time
	Logo      string
}

// Transcript is one archived final transcript.
type Transcript struct {
	Model     string
	Text      string
	Language  string
	CreatedAt time.Time
}

// Store is the persistence contract used by the gateway.
type Store interface {
	SaveModel(ctx context.Context, m Model) error
	UpdateLoadedStatus(ctx context.Context, id string, loaded bool, latency *float64) error
	UpdateStatus(ctx context.Context, id, status string) error
	GetAllModels(ctx context.Context) ([]Model, error)
	DeleteModel(ctx context.Context, id string) error
	AppendTranscript(ctx context.Context, t Transcript) error
}

var logos = map[string]string{
	"OpenAI":     "OpenAI.svg",
	"PyTorch":    "PyTorch.svg",
	"Meta":       "Meta.svg",
	"TensorFlow": "Tensorflow.svg",
	"Google":     "Transformer.svg",
}

// LogoFor returns the static icon path for a model type.
func LogoFor(modelType string) string {
	name, ok := logos[modelType]
	if !ok {
		name = "default.svg"
	}
	return "/static/icons/" + name
}

// normalize fills the columns that have defaults.
func (m *Model) normalize(now time.Time) {
	if m.Status == "" {
		m.Status = StatusIdle
	}
	if m.Logo == "" {
		m.Logo = LogoFor(m.Type)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
}
