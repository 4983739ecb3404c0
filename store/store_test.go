package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kbukum/speechgate/database"
	"github.com/kbukum/speechgate/logger"
)

func openGormStore(t *testing.T) *GormStore {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Enabled: true, DSN: ":memory:", LogLevel: "silent"}, logger.NewDefault("test"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.AutoMigrate(Tables()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewGormStore(db, logger.NewDefault("test"))
}

// stores runs the same contract test against both implementations.
func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"gorm":   openGormStore(t),
		"memory": NewMemory(),
	}
}

func TestLogoFor(t *testing.T) {
	tests := map[string]string{
		"OpenAI":     "/static/icons/OpenAI.svg",
		"TensorFlow": "/static/icons/Tensorflow.svg",
		"Google":     "/static/icons/Transformer.svg",
		"Whisper":    "/static/icons/default.svg",
		"":           "/static/icons/default.svg",
	}
	for typ, want := range tests {
		if got := LogoFor(typ); got != want {
			t.Errorf("LogoFor(%q) = %q, want %q", typ, got, want)
		}
	}
}

func TestStore_ModelLifecycle(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			m := Model{ID: "m-1", Name: "whisper-small", Type: "OpenAI", Framework: "openvino", Device: "CPU", Path: "/models/small"}
			if err := s.SaveModel(ctx, m); err != nil {
				t.Fatalf("SaveModel: %v", err)
			}

			models, err := s.GetAllModels(ctx)
			if err != nil {
				t.Fatalf("GetAllModels: %v", err)
			}
			if len(models) != 1 {
				t.Fatalf("got %d models, want 1", len(models))
			}
			got := models[0]
			if got.Status != StatusIdle || got.Loaded || got.Latency != nil {
				t.Errorf("new model = status %q loaded %v latency %v, want idle/false/nil", got.Status, got.Loaded, got.Latency)
			}
			if got.Logo != "/static/icons/OpenAI.svg" {
				t.Errorf("Logo = %q", got.Logo)
			}
			if got.CreatedAt.IsZero() {
				t.Error("CreatedAt should be set")
			}

			latency := 12.34
			if err := s.UpdateLoadedStatus(ctx, "m-1", true, &latency); err != nil {
				t.Fatalf("UpdateLoadedStatus: %v", err)
			}
			if err := s.UpdateStatus(ctx, "m-1", StatusActive); err != nil {
				t.Fatalf("UpdateStatus: %v", err)
			}
			models, _ = s.GetAllModels(ctx)
			got = models[0]
			if !got.Loaded || got.Latency == nil || *got.Latency != 12.34 || got.Status != StatusActive {
				t.Errorf("after load = loaded %v latency %v status %q", got.Loaded, got.Latency, got.Status)
			}

			if err := s.UpdateLoadedStatus(ctx, "m-1", false, nil); err != nil {
				t.Fatalf("UpdateLoadedStatus clear: %v", err)
			}
			models, _ = s.GetAllModels(ctx)
			if models[0].Loaded || models[0].Latency != nil {
				t.Errorf("after unload = loaded %v latency %v, want false/nil", models[0].Loaded, models[0].Latency)
			}

			if err := s.DeleteModel(ctx, "m-1"); err != nil {
				t.Fatalf("DeleteModel: %v", err)
			}
			if err := s.DeleteModel(ctx, "m-1"); err != nil {
				t.Errorf("second DeleteModel = %v, want nil", err)
			}
			models, _ = s.GetAllModels(ctx)
			if len(models) != 0 {
				t.Errorf("got %d models after delete, want 0", len(models))
			}
		})
	}
}

func TestStore_KeepsCiphertext(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			m := Model{ID: "c-1", Name: "cloud", Framework: "azure", Region: "koreacentral", APIKey: "b64-ciphertext"}
			if err := s.SaveModel(ctx, m); err != nil {
				t.Fatal(err)
			}
			models, _ := s.GetAllModels(ctx)
			if models[0].APIKey != "b64-ciphertext" || models[0].Region != "koreacentral" {
				t.Errorf("round trip lost credentials: %+v", models[0])
			}
		})
	}
}

func TestGormStore_DuplicateIDFails(t *testing.T) {
	s := openGormStore(t)
	ctx := context.Background()
	m := Model{ID: "dup", Name: "a", Framework: "openvino"}
	if err := s.SaveModel(ctx, m); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveModel(ctx, m); err == nil {
		t.Error("second SaveModel with same id should fail")
	}
}

func TestStore_Transcripts(t *testing.T) {
	type lister interface {
		Transcripts(ctx context.Context, limit int) ([]Transcript, error)
	}
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, text := range []string{"first", "second", "third"} {
				tr := Transcript{Model: "m-1", Text: text, Language: "ko", CreatedAt: base.Add(time.Duration(i) * time.Second)}
				if err := s.AppendTranscript(ctx, tr); err != nil {
					t.Fatalf("AppendTranscript: %v", err)
				}
			}
			got, err := s.(lister).Transcripts(ctx, 2)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != 2 || got[0].Text != "third" || got[1].Text != "second" {
				t.Errorf("Transcripts(2) = %+v, want third, second", got)
			}
		})
	}
}

func TestMemory_Fail(t *testing.T) {
	s := NewMemory()
	boom := errors.New("disk full")
	s.Fail = boom
	if err := s.SaveModel(context.Background(), Model{ID: "x"}); !errors.Is(err, boom) {
		t.Errorf("SaveModel = %v, want injected failure", err)
	}
	if _, ok := s.Model("x"); ok {
		t.Error("failed save should not store the model")
	}
}

func TestComponentStore_BeforeStart(t *testing.T) {
	ctx := context.Background()
	comp := database.NewComponent(database.Config{Enabled: true, DSN: ":memory:", AutoMigrate: true, LogLevel: "silent"}, logger.NewDefault("test")).
		WithAutoMigrate(Tables()...)
	s := NewComponentStore(comp, logger.NewDefault("test"))

	if _, err := s.GetAllModels(ctx); err == nil {
		t.Fatal("expected error before the database starts")
	}

	if err := comp.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = comp.Stop(ctx) })

	if err := s.SaveModel(ctx, Model{ID: "m1", Name: "whisper", Framework: "openvino"}); err != nil {
		t.Fatalf("save after start: %v", err)
	}
	models, err := s.GetAllModels(ctx)
	if err != nil || len(models) != 1 {
		t.Fatalf("expected one model, got %v %v", models, err)
	}
}
