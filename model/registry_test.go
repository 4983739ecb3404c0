package model

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kbukum/speechgate/encryption"
	apperrors "github.com/kbukum/speechgate/errors"
	"github.com/kbukum/speechgate/logger"
	"github.com/kbukum/speechgate/probe"
	"github.com/kbukum/speechgate/store"
	"github.com/kbukum/speechgate/transcription"
	"github.com/kbukum/speechgate/transcription/transcriptiontest"
)

type fixture struct {
	reg   *Registry
	local *transcriptiontest.Local
	cloud *transcriptiontest.Cloud
	store *store.Memory
	codec encryption.Codec
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		local: &transcriptiontest.Local{},
		cloud: &transcriptiontest.Cloud{},
		store: store.NewMemory(),
	}
	adapters := transcription.NewRegistry()
	if err := adapters.Register(f.local); err != nil {
		t.Fatal(err)
	}
	if err := adapters.Register(f.cloud); err != nil {
		t.Fatal(err)
	}
	codec, err := encryption.New(encryption.Config{Key: "registry-test-key"})
	if err != nil {
		t.Fatal(err)
	}
	f.codec = codec
	f.reg = NewRegistry(Config{}, adapters, f.store, codec, probe.New(probe.Config{}), logger.NewDefault("test"))
	return f
}

func localRegistration() Registration {
	return Registration{Name: "whisper", Type: "OpenAI", Framework: "fakelocal", Device: "CPU", Path: "/models/whisper"}
}

func cloudRegistration() Registration {
	return Registration{Name: "speech", Framework: "fakecloud", Region: "koreacentral", APIKey: "secret-key"}
}

func (f *fixture) register(t *testing.T, reg Registration) string {
	t.Helper()
	id, err := f.reg.Register(context.Background(), reg)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return id
}

func assertCode(t *testing.T, err error, want apperrors.ErrorCode) {
	t.Helper()
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		t.Fatalf("error = %v, want AppError %s", err, want)
	}
	if appErr.Code != want {
		t.Fatalf("code = %s, want %s", appErr.Code, want)
	}
}

// assertConsistent checks Ready iff instance iff latency.
func assertConsistent(t *testing.T, r *Registry) {
	t.Helper()
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, e := range r.models {
		e.mu.Lock()
		ready := e.state == StateReady
		if ready != (e.instance != nil) || ready != (e.latency != nil) {
			t.Errorf("model %s: state=%s instance=%v latency=%v", id, e.state, e.instance != nil, e.latency)
		}
		e.mu.Unlock()
	}
}

func TestRegister_StatusRoundTrip(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, localRegistration())

	statuses := f.reg.GetStatus()
	if len(statuses) != 1 {
		t.Fatalf("got %d statuses, want 1", len(statuses))
	}
	s := statuses[0]
	if s.ID != id || s.State != StateRegistered || s.Loaded || s.Latency != nil {
		t.Errorf("status = %+v, want Registered/unloaded/nil latency", s)
	}
	if s.Label != LabelLoading {
		t.Errorf("label = %q, want %q", s.Label, LabelLoading)
	}
	if f.local.Opens() != 0 {
		t.Error("Register must not load")
	}

	row, ok := f.store.Model(id)
	if !ok {
		t.Fatal("model not persisted")
	}
	if row.Status != store.StatusIdle || row.Loaded || row.Logo != "/static/icons/OpenAI.svg" {
		t.Errorf("persisted row = %+v", row)
	}
}

func TestRegister_Validation(t *testing.T) {
	tests := []struct {
		name string
		reg  Registration
		code apperrors.ErrorCode
	}{
		{"unknown framework", Registration{Name: "x", Framework: "onnx"}, apperrors.ErrCodeConfigInvalid},
		{"local without path", Registration{Name: "x", Framework: "fakelocal", Device: "CPU"}, apperrors.ErrCodeConfigInvalid},
		{"local without device", Registration{Name: "x", Framework: "fakelocal", Path: "/m"}, apperrors.ErrCodeConfigInvalid},
		{"cloud without key", Registration{Name: "x", Framework: "fakecloud", Region: "r"}, apperrors.ErrCodeConfigInvalid},
		{"cloud with both endpoint and region", Registration{Name: "x", Framework: "fakecloud", APIKey: "k", Region: "r", Endpoint: "wss://e"}, apperrors.ErrCodeConfigInvalid},
		{"cloud with neither endpoint nor region", Registration{Name: "x", Framework: "fakecloud", APIKey: "k"}, apperrors.ErrCodeConfigInvalid},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.reg.Register(context.Background(), tc.reg)
			assertCode(t, err, tc.code)
			if models, _ := f.store.GetAllModels(context.Background()); len(models) != 0 {
				t.Error("rejected registration must not be persisted")
			}
		})
	}
}

func TestRegister_EncryptsAPIKey(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, cloudRegistration())

	row, _ := f.store.Model(id)
	if row.APIKey == "" || row.APIKey == "secret-key" {
		t.Fatalf("stored key = %q, want ciphertext", row.APIKey)
	}
	plain, err := f.codec.Decrypt(row.APIKey)
	if err != nil || plain != "secret-key" {
		t.Errorf("Decrypt = %q, %v", plain, err)
	}
}

func TestRegister_StoreFailure(t *testing.T) {
	f := newFixture(t)
	f.store.Fail = apperrors.StoreFailure("save_model", errors.New("disk full"))

	_, err := f.reg.Register(context.Background(), localRegistration())
	assertCode(t, err, apperrors.ErrCodeStoreFailure)
	if len(f.reg.GetStatus()) != 0 {
		t.Error("model must not be registered in memory when the save fails")
	}
}

func TestLoad_Success(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, localRegistration())

	status, err := f.reg.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if status.State != StateReady || status.Latency == nil || !status.Loaded || status.Label != LabelIdle {
		t.Errorf("status = %+v, want Ready with latency", status)
	}
	if f.local.Calls() != 1 {
		t.Errorf("probe inferences = %d, want 1", f.local.Calls())
	}
	assertConsistent(t, f.reg)

	row, _ := f.store.Model(id)
	if !row.Loaded || row.Latency == nil || row.Status != store.StatusActive {
		t.Errorf("persisted row = loaded %v latency %v status %q", row.Loaded, row.Latency, row.Status)
	}

	// A second load is a no-op.
	if _, err := f.reg.Load(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	if f.local.Opens() != 1 {
		t.Errorf("opens = %d, want 1", f.local.Opens())
	}
}

func TestLoad_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.reg.Load(context.Background(), "missing")
	assertCode(t, err, apperrors.ErrCodeNotFound)
}

func TestLoad_OpenFailure(t *testing.T) {
	f := newFixture(t)
	f.local.OpenErr = fmt.Errorf("%w: device lost", transcription.ErrBackendUnavailable)
	id := f.register(t, localRegistration())

	status, err := f.reg.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("Load returned error %v, want failure in status", err)
	}
	if status.State != StateLoadFailed || status.Latency != nil || status.Label != LabelError || status.Error == "" {
		t.Errorf("status = %+v, want LoadFailed/error", status)
	}
	assertConsistent(t, f.reg)

	row, _ := f.store.Model(id)
	if row.Loaded || row.Latency != nil {
		t.Errorf("persisted row = loaded %v latency %v, want cleared", row.Loaded, row.Latency)
	}
}

func TestLoad_ProbeFailureReleasesInstance(t *testing.T) {
	f := newFixture(t)
	f.local.InferErr = func(int64) error {
		return fmt.Errorf("%w: bad model", transcription.ErrTransientInference)
	}
	id := f.register(t, localRegistration())

	status, _ := f.reg.Load(context.Background(), id)
	if status.State != StateLoadFailed {
		t.Fatalf("state = %s, want LoadFailed", status.State)
	}
	if f.local.Closes() != 1 {
		t.Errorf("closes = %d, want the probed instance released", f.local.Closes())
	}
	assertConsistent(t, f.reg)
}

func TestLoad_ConcurrentCallsShareOneOpen(t *testing.T) {
	f := newFixture(t)
	f.local.Gate = make(chan struct{})
	id := f.register(t, localRegistration())

	const callers = 8
	var wg sync.WaitGroup
	results := make([]Status, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := f.reg.Load(context.Background(), id)
			if err != nil {
				t.Errorf("Load: %v", err)
			}
			results[i] = s
		}(i)
	}

	deadline := time.Now().Add(2 * time.Second)
	for f.local.Opens() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if s, _ := f.reg.Get(id); s.State != StateLoading {
		t.Errorf("state during open = %s, want Loading", s.State)
	}
	close(f.local.Gate)
	wg.Wait()

	if f.local.Opens() != 1 {
		t.Errorf("opens = %d, want 1", f.local.Opens())
	}
	if f.local.Calls() != 1 {
		t.Errorf("probes = %d, want 1", f.local.Calls())
	}
	for i, s := range results {
		if s.State != StateReady {
			t.Errorf("caller %d saw %s, want Ready", i, s.State)
		}
	}
}

func TestLoad_CallerCancelDoesNotAbortLoad(t *testing.T) {
	f := newFixture(t)
	f.local.Gate = make(chan struct{})
	id := f.register(t, localRegistration())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.reg.Load(ctx, id)
	}()
	for f.local.Opens() == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	close(f.local.Gate)
	<-done

	if s, _ := f.reg.Get(id); s.State != StateReady {
		t.Errorf("state = %s, want Ready", s.State)
	}
}

func TestUnload(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, localRegistration())

	unloaded, err := f.reg.Unload(context.Background(), id)
	if err != nil || unloaded {
		t.Fatalf("Unload before load = %v, %v, want skipped", unloaded, err)
	}
	if s, _ := f.reg.Get(id); s.State != StateRegistered {
		t.Errorf("state = %s, want Registered unchanged", s.State)
	}

	if _, err := f.reg.Load(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	unloaded, err = f.reg.Unload(context.Background(), id)
	if err != nil || !unloaded {
		t.Fatalf("Unload = %v, %v, want true", unloaded, err)
	}
	s, _ := f.reg.Get(id)
	if s.State != StateUnloaded || s.Latency != nil {
		t.Errorf("status = %+v, want Unloaded without latency", s)
	}
	if f.local.Closes() != 1 {
		t.Errorf("closes = %d, want 1", f.local.Closes())
	}
	assertConsistent(t, f.reg)

	row, _ := f.store.Model(id)
	if row.Loaded || row.Status != store.StatusIdle {
		t.Errorf("persisted row = loaded %v status %q", row.Loaded, row.Status)
	}

	if again, _ := f.reg.Unload(context.Background(), id); again {
		t.Error("second unload should be skipped")
	}

	_, err = f.reg.Unload(context.Background(), "missing")
	assertCode(t, err, apperrors.ErrCodeNotFound)
}

func TestUnload_WaitsForInFlightInfer(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, localRegistration())
	if _, err := f.reg.Load(context.Background(), id); err != nil {
		t.Fatal(err)
	}

	f.local.InferGate = make(chan struct{})
	const inflight = 3
	var wg sync.WaitGroup
	for i := 0; i < inflight; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			texts, err := f.reg.Infer(context.Background(), id, make([]float32, 160), "")
			if err != nil || len(texts) == 0 {
				t.Errorf("Infer = %v, %v", texts, err)
			}
		}()
	}
	for f.local.InFlight() < inflight {
		time.Sleep(time.Millisecond)
	}

	unloadDone := make(chan bool)
	go func() {
		ok, _ := f.reg.Unload(context.Background(), id)
		unloadDone <- ok
	}()

	select {
	case <-unloadDone:
		t.Fatal("Unload returned while inferences were in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(f.local.InferGate)
	wg.Wait()
	if ok := <-unloadDone; !ok {
		t.Error("Unload should report true")
	}
	if f.local.Violations() != 0 {
		t.Errorf("instance closed during %d inferences", f.local.Violations())
	}
}

// within fails the test if fn does not return before d.
func within(t *testing.T, d time.Duration, what string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("%s blocked for more than %s", what, d)
	}
}

// startBlockedInfer loads id and leaves one inference parked on the gate.
func startBlockedInfer(t *testing.T, f *fixture, id string) *sync.WaitGroup {
	t.Helper()
	if _, err := f.reg.Load(context.Background(), id); err != nil {
		t.Fatal(err)
	}
	f.local.InferGate = make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := f.reg.Infer(context.Background(), id, make([]float32, 160), ""); err != nil {
			t.Errorf("Infer: %v", err)
		}
	}()
	for f.local.InFlight() < 1 {
		time.Sleep(time.Millisecond)
	}
	return &wg
}

func TestLoad_ReadyDoesNotWaitForInference(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, localRegistration())
	other := f.register(t, localRegistration())
	if _, err := f.reg.Load(context.Background(), other); err != nil {
		t.Fatal(err)
	}
	wg := startBlockedInfer(t, f, id)

	within(t, time.Second, "Load of a Ready model", func() {
		s, err := f.reg.Load(context.Background(), id)
		if err != nil || s.State != StateReady {
			t.Errorf("Load = %+v, %v", s, err)
		}
	})
	within(t, time.Second, "GetStatus", func() {
		if got := len(f.reg.GetStatus()); got != 2 {
			t.Errorf("got %d statuses, want 2", got)
		}
	})
	within(t, time.Second, "Bind", func() {
		if _, err := f.reg.Bind(id); err != nil {
			t.Errorf("Bind: %v", err)
		}
	})
	within(t, time.Second, "Bind of another model", func() {
		if _, err := f.reg.Bind(other); err != nil {
			t.Errorf("Bind other: %v", err)
		}
	})
	if opens := f.local.Opens(); opens != 2 {
		t.Errorf("opens = %d, want 2", opens)
	}

	close(f.local.InferGate)
	wg.Wait()
}

func TestGetStatus_DuringPendingUnload(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, localRegistration())
	wg := startBlockedInfer(t, f, id)

	unloadDone := make(chan bool)
	go func() {
		ok, _ := f.reg.Unload(context.Background(), id)
		unloadDone <- ok
	}()
	select {
	case <-unloadDone:
		t.Fatal("Unload returned while an inference was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	within(t, time.Second, "GetStatus during unload", func() {
		statuses := f.reg.GetStatus()
		if len(statuses) != 1 || statuses[0].State != StateReady {
			t.Errorf("statuses = %+v, want one Ready model", statuses)
		}
	})
	within(t, time.Second, "Get during unload", func() {
		if _, err := f.reg.Get(id); err != nil {
			t.Errorf("Get: %v", err)
		}
	})
	within(t, time.Second, "Load during unload", func() {
		if _, err := f.reg.Load(context.Background(), id); err != nil {
			t.Errorf("Load: %v", err)
		}
	})

	close(f.local.InferGate)
	wg.Wait()
	if ok := <-unloadDone; !ok {
		t.Error("Unload should report true")
	}
	if s, _ := f.reg.Get(id); s.State != StateUnloaded {
		t.Errorf("state = %s, want Unloaded", s.State)
	}
	assertConsistent(t, f.reg)
}

func TestInfer_NotReady(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, localRegistration())

	_, err := f.reg.Infer(context.Background(), id, nil, "")
	assertCode(t, err, apperrors.ErrCodeNotReady)

	_, err = f.reg.Infer(context.Background(), "missing", nil, "")
	assertCode(t, err, apperrors.ErrCodeNotFound)
}

func TestBind(t *testing.T) {
	f := newFixture(t)
	localID := f.register(t, localRegistration())
	cloudID := f.register(t, cloudRegistration())

	_, err := f.reg.Bind(localID)
	assertCode(t, err, apperrors.ErrCodeNotReady)

	f.local.OpenErr = fmt.Errorf("%w: nope", transcription.ErrBackendUnavailable)
	_, _ = f.reg.Load(context.Background(), localID)
	_, err = f.reg.Bind(localID)
	assertCode(t, err, apperrors.ErrCodeNotReady)

	f.local.OpenErr = nil
	if _, err := f.reg.Load(context.Background(), localID); err != nil {
		t.Fatal(err)
	}
	b, err := f.reg.Bind(localID)
	if err != nil {
		t.Fatalf("Bind ready local: %v", err)
	}
	if b.Kind != transcription.KindLocal || b.Name != "whisper" {
		t.Errorf("binding = %+v", b)
	}

	b, err = f.reg.Bind(cloudID)
	if err != nil {
		t.Fatalf("Bind cloud: %v", err)
	}
	if b.Kind != transcription.KindCloud {
		t.Errorf("kind = %s, want cloud", b.Kind)
	}

	_, err = f.reg.Bind("missing")
	assertCode(t, err, apperrors.ErrCodeNotFound)
}

func TestBind_CloudCredentialFailure(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, cloudRegistration())

	f.reg.mu.Lock()
	f.reg.models[id].rec.APIKey = "not-base64!"
	f.reg.mu.Unlock()

	_, err := f.reg.Bind(id)
	assertCode(t, err, apperrors.ErrCodeCredentialDecrypt)
}

func TestStartRecognition_PassesDecryptedCredentials(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, cloudRegistration())

	rec, err := f.reg.StartRecognition(context.Background(), id, "", func(transcription.RecognitionEvent) {})
	if err != nil {
		t.Fatalf("StartRecognition: %v", err)
	}
	defer rec.Stop(context.Background())

	creds := f.cloud.Credentials()
	if len(creds) != 1 || creds[0].APIKey != "secret-key" || creds[0].Region != "koreacentral" {
		t.Errorf("credentials = %+v", creds)
	}

	localID := f.register(t, localRegistration())
	_, err = f.reg.StartRecognition(context.Background(), localID, "", nil)
	assertCode(t, err, apperrors.ErrCodeConfigInvalid)
}

func TestLoad_CloudProbesWithCredentials(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, cloudRegistration())

	status, err := f.reg.Load(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if status.State != StateReady {
		t.Errorf("state = %s (%s), want Ready", status.State, status.Error)
	}
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, localRegistration())
	if _, err := f.reg.Load(context.Background(), id); err != nil {
		t.Fatal(err)
	}

	if err := f.reg.Delete(context.Background(), id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if f.local.Closes() != 1 {
		t.Errorf("closes = %d, want forced unload", f.local.Closes())
	}
	if len(f.reg.GetStatus()) != 0 {
		t.Error("model still listed after delete")
	}
	if _, ok := f.store.Model(id); ok {
		t.Error("row still persisted after delete")
	}

	err := f.reg.Delete(context.Background(), id)
	assertCode(t, err, apperrors.ErrCodeNotFound)
}

func TestStoreFailureKeepsMemoryState(t *testing.T) {
	f := newFixture(t)
	id := f.register(t, localRegistration())
	f.store.Fail = errors.New("store down")

	status, err := f.reg.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if status.State != StateReady {
		t.Errorf("state = %s, want Ready despite store failure", status.State)
	}
	if ok, _ := f.reg.Unload(context.Background(), id); !ok {
		t.Error("Unload should succeed despite store failure")
	}
}

func TestHealthLabel(t *testing.T) {
	latency := 1.5
	tests := []struct {
		state   State
		latency *float64
		want    string
	}{
		{StateRegistered, nil, LabelLoading},
		{StateLoading, nil, LabelLoading},
		{StateUnloaded, nil, LabelLoading},
		{StateLoadFailed, nil, LabelError},
		{StateReady, nil, LabelError},
		{StateReady, &latency, LabelIdle},
	}
	for _, tc := range tests {
		if got := healthLabel(tc.state, tc.latency); got != tc.want {
			t.Errorf("healthLabel(%s, %v) = %q, want %q", tc.state, tc.latency, got, tc.want)
		}
	}
}

func TestStateMarshalText(t *testing.T) {
	b, _ := StateLoadFailed.MarshalText()
	if string(b) != "LoadFailed" {
		t.Errorf("MarshalText = %q", b)
	}
	if State(42).String() != "State(42)" {
		t.Errorf("unknown state = %q", State(42).String())
	}
}
