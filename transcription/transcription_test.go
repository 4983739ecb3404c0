package transcription

import (
	"context"
	"fmt"
	"testing"

	"github.com/kbukum/speechgate/component"
	apperrors "github.com/kbukum/speechgate/errors"
	"github.com/kbukum/speechgate/validation"
)

type stubAdapter struct {
	name string
	kind Kind
	down bool
}

func (s stubAdapter) Name() string                     { return s.name }
func (s stubAdapter) IsAvailable(context.Context) bool { return !s.down }
func (s stubAdapter) Kind() Kind                       { return s.kind }
func (s stubAdapter) Open(context.Context, ModelConfig) (Instance, error) {
	return nil, fmt.Errorf("%w: not implemented", ErrBackendUnavailable)
}

func TestRegistryResolve(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(stubAdapter{name: "openvino", kind: KindLocal}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	a, err := reg.Resolve(" OpenVINO ")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if a.Kind() != KindLocal {
		t.Errorf("Kind = %s, want local", a.Kind())
	}

	_, err = reg.Resolve("onnx")
	appErr, ok := apperrors.AsAppError(err)
	if !ok || appErr.Code != apperrors.ErrCodeConfigInvalid {
		t.Errorf("expected CONFIG_INVALID for unknown framework, got %v", err)
	}
}

func TestRegisterEnablesFrameworkValidation(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register(stubAdapter{name: "stubcloud", kind: KindCloud})

	type payload struct {
		Framework string `json:"framework" validate:"required,framework"`
	}
	if err := validation.Validate(payload{Framework: "stubcloud"}); err != nil {
		t.Errorf("expected registered framework to validate, got %v", err)
	}
}

func TestToAppError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code apperrors.ErrorCode
	}{
		{"config", fmt.Errorf("%w: path missing", ErrConfigInvalid), apperrors.ErrCodeConfigInvalid},
		{"backend", fmt.Errorf("%w: dial", ErrBackendUnavailable), apperrors.ErrCodeBackendUnavailable},
		{"terminated", fmt.Errorf("%w: remote closed", ErrSessionTerminated), apperrors.ErrCodeSessionTerminated},
		{"transient", fmt.Errorf("%w: 500", ErrTransientInference), apperrors.ErrCodeTransientInference},
		{"other", fmt.Errorf("boom"), apperrors.ErrCodeInternal},
		{"app error", apperrors.CredentialDecrypt(fmt.Errorf("bad")), apperrors.ErrCodeCredentialDecrypt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToAppError(FrameworkOpenVINO, tt.err); got.Code != tt.code {
				t.Errorf("code = %s, want %s", got.Code, tt.code)
			}
		})
	}
	if ToAppError(FrameworkAzure, nil) != nil {
		t.Error("nil error should map to nil")
	}
}

func TestIsFatal(t *testing.T) {
	if !IsFatal(fmt.Errorf("x: %w", ErrSessionTerminated)) {
		t.Error("session terminated must be fatal")
	}
	if !IsFatal(ErrBackendUnavailable) {
		t.Error("backend unavailable must be fatal")
	}
	if IsFatal(ErrTransientInference) {
		t.Error("transient inference must not be fatal")
	}
}

func TestKindAndEventStrings(t *testing.T) {
	if KindLocal.String() != "local" || KindCloud.String() != "cloud" || Kind(0).String() != "unknown" {
		t.Error("unexpected Kind strings")
	}
	if EventPartial.String() != "partial" || EventFinal.String() != "final" || EventStopped.String() != "stopped" {
		t.Error("unexpected EventKind strings")
	}
}

func TestRegistryHealth(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register(stubAdapter{name: "openvino", kind: KindLocal})
	if h := reg.Health(context.Background()); h.Status != component.StatusHealthy {
		t.Fatalf("status = %s, want healthy", h.Status)
	}

	_ = reg.Register(stubAdapter{name: "azure", kind: KindCloud, down: true})
	h := reg.Health(context.Background())
	if h.Status != component.StatusDegraded {
		t.Fatalf("status = %s, want degraded", h.Status)
	}
	if h.Message != "unreachable: azure" {
		t.Errorf("message = %q", h.Message)
	}
	if h.Details["openvino"] != true || h.Details["azure"] != false {
		t.Errorf("details = %v", h.Details)
	}
}
