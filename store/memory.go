package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is a Store kept in process memory. It is used when the database
// is disabled and by tests.
type Memory struct {
	mu          sync.Mutex
	models      map[string]Model
	transcripts []Transcript
	now         func() time.Time

	// Fail, when set, is returned by every write.
	Fail error
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{models: make(map[string]Model), now: time.Now}
}

func (s *Memory) SaveModel(_ context.Context, m Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return s.Fail
	}
	m.normalize(s.now())
	s.models[m.ID] = m
	return nil
}

func (s *Memory) UpdateLoadedStatus(_ context.Context, id string, loaded bool, latency *float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return s.Fail
	}
	if m, ok := s.models[id]; ok {
		m.Loaded = loaded
		m.Latency = latency
		s.models[id] = m
	}
	return nil
}

func (s *Memory) UpdateStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return s.Fail
	}
	if m, ok := s.models[id]; ok {
		m.Status = status
		s.models[id] = m
	}
	return nil
}

func (s *Memory) GetAllModels(_ context.Context) ([]Model, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Model, 0, len(s.models))
	for _, m := range s.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Memory) DeleteModel(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return s.Fail
	}
	delete(s.models, id)
	return nil
}

func (s *Memory) AppendTranscript(_ context.Context, t Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return s.Fail
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	s.transcripts = append(s.transcripts, t)
	return nil
}

// Transcripts returns up to limit archived transcripts, newest first.
func (s *Memory) Transcripts(_ context.Context, limit int) ([]Transcript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.transcripts) {
		limit = len(s.transcripts)
	}
	out := make([]Transcript, 0, limit)
	for i := len(s.transcripts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.transcripts[i])
	}
	return out, nil
}

// Model returns one stored model.
func (s *Memory) Model(id string) (Model, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.models[id]
	return m, ok
}
