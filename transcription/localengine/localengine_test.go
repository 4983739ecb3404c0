package localengine

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kbukum/speechgate/audio"
	"github.com/kbukum/speechgate/security"
	"github.com/kbukum/speechgate/security/tlstest"
	"github.com/kbukum/speechgate/transcription"
)

type fakeSidecar struct {
	mu        sync.Mutex
	loaded    map[string]bool
	unloaded  []string
	inFlight  int32
	maxFlight int32
	failLoad  int
}

func newFakeSidecar() *fakeSidecar {
	return &fakeSidecar{loaded: map[string]bool{}}
}

func (f *fakeSidecar) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /models/load", func(w http.ResponseWriter, r *http.Request) {
		if f.failLoad != 0 {
			http.Error(w, "cannot load", f.failLoad)
			return
		}
		var req loadRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		handle := "h-" + req.ModelID
		f.mu.Lock()
		f.loaded[handle] = true
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(loadResponse{Handle: handle})
	})
	mux.HandleFunc("POST /models/unload", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		delete(f.loaded, req["handle"])
		f.unloaded = append(f.unloaded, req["handle"])
		f.mu.Unlock()
	})
	mux.HandleFunc("POST /transcribe", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&f.inFlight, 1)
		defer atomic.AddInt32(&f.inFlight, -1)
		for {
			prev := atomic.LoadInt32(&f.maxFlight)
			if n <= prev || atomic.CompareAndSwapInt32(&f.maxFlight, prev, n) {
				break
			}
		}

		handle := r.FormValue("handle")
		f.mu.Lock()
		ok := f.loaded[handle]
		f.mu.Unlock()
		if !ok {
			http.Error(w, "unknown handle", http.StatusNotFound)
			return
		}
		file, _, err := r.FormFile("audio")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		raw, _ := io.ReadAll(file)
		samples, err := audio.DecodeFloat32LE(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if r.FormValue("language") == "fail" {
			http.Error(w, "engine error", http.StatusInternalServerError)
			return
		}
		if len(samples) == 0 {
			_ = json.NewEncoder(w).Encode(map[string]string{"text": ""})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string][]string{"texts": {"안녕하세요", "안녕"}})
	})
	return mux
}

func newTestAdapter(t *testing.T, f *fakeSidecar, serialize bool) *Adapter {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return New(Config{URL: srv.URL + "/", Serialize: serialize})
}

func openModel(t *testing.T, a *Adapter) transcription.Instance {
	t.Helper()
	inst, err := a.Open(context.Background(), transcription.ModelConfig{ID: "m1", Path: "/models/whisper", Device: "CPU"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return inst
}

func TestAdapterIdentity(t *testing.T) {
	a := newTestAdapter(t, newFakeSidecar(), false)
	if a.Name() != "openvino" {
		t.Errorf("Name = %q, want openvino", a.Name())
	}
	if a.Kind() != transcription.KindLocal {
		t.Errorf("Kind = %s", a.Kind())
	}
	if !a.IsAvailable(context.Background()) {
		t.Error("expected sidecar to be available")
	}
}

func TestOpenRequiresPathAndDevice(t *testing.T) {
	a := newTestAdapter(t, newFakeSidecar(), false)
	_, err := a.Open(context.Background(), transcription.ModelConfig{ID: "m1", Path: "/models/whisper"})
	if !errors.Is(err, transcription.ErrConfigInvalid) {
		t.Errorf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestOpenSidecarFailures(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, transcription.ErrConfigInvalid},
		{http.StatusInternalServerError, transcription.ErrBackendUnavailable},
	}
	for _, tt := range tests {
		f := newFakeSidecar()
		f.failLoad = tt.status
		a := newTestAdapter(t, f, false)
		_, err := a.Open(context.Background(), transcription.ModelConfig{ID: "m1", Path: "/p", Device: "GPU"})
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: expected %v, got %v", tt.status, tt.want, err)
		}
	}
}

func TestOpenUnreachableSidecar(t *testing.T) {
	a := New(Config{URL: "http://127.0.0.1:1"})
	_, err := a.Open(context.Background(), transcription.ModelConfig{ID: "m1", Path: "/p", Device: "CPU"})
	if !errors.Is(err, transcription.ErrBackendUnavailable) {
		t.Errorf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestInferAndClose(t *testing.T) {
	f := newFakeSidecar()
	a := newTestAdapter(t, f, false)
	inst := openModel(t, a)

	texts, err := inst.Infer(context.Background(), []float32{0.1, 0.2}, "<|ko|>")
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if len(texts) != 2 || texts[0] != "안녕하세요" {
		t.Errorf("texts = %v", texts)
	}

	texts, err = inst.Infer(context.Background(), nil, "<|ko|>")
	if err != nil || len(texts) != 0 {
		t.Errorf("empty text should yield no alternatives, got %v, %v", texts, err)
	}

	if err := inst.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if len(f.unloaded) != 1 || f.unloaded[0] != "h-m1" {
		t.Errorf("unloaded = %v", f.unloaded)
	}

	_, err = inst.Infer(context.Background(), []float32{0.1}, "<|ko|>")
	if !errors.Is(err, transcription.ErrBackendUnavailable) {
		t.Errorf("expected ErrBackendUnavailable after unload, got %v", err)
	}
}

func TestEncodeForm(t *testing.T) {
	tests := []struct {
		name     string
		language string
		want     map[string]string
	}{
		{"with language", "<|ko|>", map[string]string{"handle": "h-1", "sample_rate": "16000", "language": "<|ko|>"}},
		{"without language", "", map[string]string{"handle": "h-1", "sample_rate": "16000"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType, err := encodeForm([]float32{0.5, -0.5}, "h-1", tt.language)
			if err != nil {
				t.Fatalf("encodeForm: %v", err)
			}
			_, params, err := mime.ParseMediaType(contentType)
			if err != nil {
				t.Fatalf("content type %q: %v", contentType, err)
			}
			form, err := multipart.NewReader(body, params["boundary"]).ReadForm(1 << 20)
			if err != nil {
				t.Fatalf("body is not a complete multipart form: %v", err)
			}
			if len(form.Value) != len(tt.want) {
				t.Errorf("fields = %v, want %v", form.Value, tt.want)
			}
			for k, v := range tt.want {
				if got := form.Value[k]; len(got) != 1 || got[0] != v {
					t.Errorf("field %s = %v, want %q", k, got, v)
				}
			}
			files := form.File["audio"]
			if len(files) != 1 || files[0].Size != 8 {
				t.Fatalf("audio part = %+v, want one 8-byte file", files)
			}
		})
	}
}

func TestInferTransientFailure(t *testing.T) {
	inst := openModel(t, newTestAdapter(t, newFakeSidecar(), false))
	_, err := inst.Infer(context.Background(), []float32{0.1}, "fail")
	if !errors.Is(err, transcription.ErrTransientInference) {
		t.Errorf("expected ErrTransientInference, got %v", err)
	}
}

func TestSerializedInfer(t *testing.T) {
	f := newFakeSidecar()
	inst := openModel(t, newTestAdapter(t, f, true))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = inst.Infer(context.Background(), []float32{0.1}, "<|ko|>")
		}()
	}
	wg.Wait()
	if got := atomic.LoadInt32(&f.maxFlight); got != 1 {
		t.Errorf("expected serialized requests, saw %d in flight", got)
	}
}

func TestOpenOverTLSWithPrivateCA(t *testing.T) {
	certs := tlstest.GenerateTLSCerts(t)
	srv := httptest.NewUnstartedServer(newFakeSidecar().handler())
	srv.TLS = &tls.Config{Certificates: []tls.Certificate{certs.ServerTLS}}
	srv.StartTLS()
	t.Cleanup(srv.Close)

	a := New(Config{URL: srv.URL, TLS: security.TLSConfig{CAFile: certs.CAFile}})
	if !a.IsAvailable(context.Background()) {
		t.Fatal("expected the TLS sidecar to be reachable with the private CA")
	}
	openModel(t, a)

	untrusted := New(Config{URL: srv.URL})
	if untrusted.IsAvailable(context.Background()) {
		t.Error("expected the system roots to reject the private CA")
	}
}

func TestOpenWithUnusableTLSSettings(t *testing.T) {
	a := New(Config{URL: "https://localhost:1", TLS: security.TLSConfig{CAFile: "/nonexistent/ca.pem"}})
	_, err := a.Open(context.Background(), transcription.ModelConfig{ID: "m1", Path: "/models/whisper", Device: "CPU"})
	if !errors.Is(err, transcription.ErrConfigInvalid) {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{URL: "localhost:8387"}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for URL without scheme")
	}
	cfg = Config{TLS: security.TLSConfig{CertFile: "c.pem"}}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for cert without key")
	}
}
