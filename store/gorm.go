package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/kbukum/speechgate/database"
	apperrors "github.com/kbukum/speechgate/errors"
	"github.com/kbukum/speechgate/logger"
	"github.com/kbukum/speechgate/resilience"
)

// ModelRow maps the asr_models table.
type ModelRow struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Name      string    `gorm:"size:255;not null"`
	Type      string    `gorm:"size:64"`
	Framework string    `gorm:"size:32;not null"`
	Device    string    `gorm:"size:32"`
	Language  string    `gorm:"size:32"`
	Path      string    `gorm:"size:1024"`
	Endpoint  string    `gorm:"size:1024"`
	Region    string    `gorm:"size:64"`
	APIKey    string    `gorm:"column:api_key;size:1024"`
	Status    string    `gorm:"size:16;not null;default:idle"`
	Loaded    bool      `gorm:"not null;default:false"`
	Latency   *float64
	CreatedAt time.Time
	Logo      string `gorm:"size:255"`
}

// TableName implements gorm's tabler.
func (ModelRow) TableName() string { return "asr_models" }

// TranscriptRow maps the asr_records table.
type TranscriptRow struct {
	ID        uint   `gorm:"primaryKey"`
	Model     string `gorm:"size:255;index"`
	Text      string `gorm:"column:transcription;type:text"`
	Language  string `gorm:"size:32"`
	CreatedAt time.Time
}

// TableName implements gorm's tabler.
func (TranscriptRow) TableName() string { return "asr_records" }

// Tables lists the rows to auto-migrate.
func Tables() []any {
	return []any{&ModelRow{}, &TranscriptRow{}}
}

// GormStore persists models and transcripts through gorm.
type GormStore struct {
	conn  func() *database.DB
	log   *logger.Logger
	retry resilience.RetryConfig
	now   func() time.Time
}

var _ Store = (*GormStore)(nil)

var errNotConnected = errors.New("database not connected")

// NewGormStore creates a store on an open database. Writes retry on lock
// contention and lost connections.
func NewGormStore(db *database.DB, log *logger.Logger) *GormStore {
	return newGormStore(func() *database.DB { return db }, log)
}

// NewComponentStore creates a store over a database component that has not
// started yet. Calls made before the component starts fail with
// STORE_FAILURE.
func NewComponentStore(c *database.Component, log *logger.Logger) *GormStore {
	return newGormStore(c.DB, log)
}

func newGormStore(conn func() *database.DB, log *logger.Logger) *GormStore {
	s := &GormStore{
		conn:  conn,
		log:   log.WithComponent("store"),
		retry: resilience.DefaultRetryConfig(),
		now:   time.Now,
	}
	s.retry.OnRetry = func(attempt int, err error, backoff time.Duration) {
		s.log.Warn("Store write failed, retrying", logger.Fields(
			"attempt", attempt, "error", err.Error(), "backoff", backoff.String(),
		))
	}
	return s
}

func (s *GormStore) session(ctx context.Context, op string) (*gorm.DB, error) {
	db := s.conn()
	if db == nil {
		return nil, apperrors.StoreFailure(op, errNotConnected)
	}
	return db.WithContext(ctx), nil
}

func (s *GormStore) write(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	tx, err := s.session(ctx, op)
	if err != nil {
		return err
	}
	return resilience.RetryFunc(ctx, s.retry, func() error {
		if err := fn(tx); err != nil {
			return database.FromDatabase(err, "model", op)
		}
		return nil
	})
}

// SaveModel inserts a model row.
func (s *GormStore) SaveModel(ctx context.Context, m Model) error {
	m.normalize(s.now())
	row := toRow(m)
	return s.write(ctx, "save_model", func(tx *gorm.DB) error {
		return tx.Create(&row).Error
	})
}

// UpdateLoadedStatus sets the loaded flag and latency. A nil latency
// clears the column.
func (s *GormStore) UpdateLoadedStatus(ctx context.Context, id string, loaded bool, latency *float64) error {
	return s.write(ctx, "update_loaded", func(tx *gorm.DB) error {
		return tx.Model(&ModelRow{}).Where("id = ?", id).
			Updates(map[string]any{"loaded": loaded, "latency": latency}).Error
	})
}

// UpdateStatus sets the persisted status column.
func (s *GormStore) UpdateStatus(ctx context.Context, id, status string) error {
	return s.write(ctx, "update_status", func(tx *gorm.DB) error {
		return tx.Model(&ModelRow{}).Where("id = ?", id).Update("status", status).Error
	})
}

// GetAllModels returns every model row ordered by creation time.
func (s *GormStore) GetAllModels(ctx context.Context) ([]Model, error) {
	tx, err := s.session(ctx, "list_models")
	if err != nil {
		return nil, err
	}
	var rows []ModelRow
	if err := tx.Order("created_at").Find(&rows).Error; err != nil {
		return nil, database.FromDatabase(err, "model", "list_models")
	}
	models := make([]Model, 0, len(rows))
	for _, row := range rows {
		m := fromRow(row)
		if m.Logo == "" {
			m.Logo = LogoFor(m.Type)
		}
		models = append(models, m)
	}
	return models, nil
}

// DeleteModel removes a model row. Deleting a missing row is not an error.
func (s *GormStore) DeleteModel(ctx context.Context, id string) error {
	return s.write(ctx, "delete_model", func(tx *gorm.DB) error {
		return tx.Where("id = ?", id).Delete(&ModelRow{}).Error
	})
}

// AppendTranscript archives a final transcript.
func (s *GormStore) AppendTranscript(ctx context.Context, t Transcript) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	row := TranscriptRow{Model: t.Model, Text: t.Text, Language: t.Language, CreatedAt: t.CreatedAt}
	return s.write(ctx, "append_transcript", func(tx *gorm.DB) error {
		return tx.Create(&row).Error
	})
}

// Transcripts returns the most recent archived transcripts, newest first.
func (s *GormStore) Transcripts(ctx context.Context, limit int) ([]Transcript, error) {
	if limit <= 0 {
		limit = 100
	}
	tx, err := s.session(ctx, "list_transcripts")
	if err != nil {
		return nil, err
	}
	var rows []TranscriptRow
	if err := tx.Order("created_at desc, id desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, database.FromDatabase(err, "transcript", "list_transcripts")
	}
	out := make([]Transcript, 0, len(rows))
	for _, row := range rows {
		out = append(out, Transcript{Model: row.Model, Text: row.Text, Language: row.Language, CreatedAt: row.CreatedAt})
	}
	return out, nil
}

func toRow(m Model) ModelRow {
	return ModelRow{
		ID: m.ID, Name: m.Name, Type: m.Type, Framework: m.Framework, Device: m.Device,
		Language: m.Language, Path: m.Path, Endpoint: m.Endpoint, Region: m.Region,
		APIKey: m.APIKey, Status: m.Status, Loaded: m.Loaded, Latency: m.Latency,
		CreatedAt: m.CreatedAt, Logo: m.Logo,
	}
}

func fromRow(r ModelRow) Model {
	return Model{
		ID: r.ID, Name: r.Name, Type: r.Type, Framework: r.Framework, Device: r.Device,
		Language: r.Language, Path: r.Path, Endpoint: r.Endpoint, Region: r.Region,
		APIKey: r.APIKey, Status: r.Status, Loaded: r.Loaded, Latency: r.Latency,
		CreatedAt: r.CreatedAt, Logo: r.Logo,
	}
}
