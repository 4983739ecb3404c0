package validation

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/kbukum/speechgate/errors"
)

func TestValidatorRequired(t *testing.T) {
	if New().Required("name", "whisper").HasErrors() {
		t.Error("expected no errors for valid input")
	}
	if !New().Required("name", "").HasErrors() {
		t.Error("expected error for empty required field")
	}
	if !New().Required("name", "   ").HasErrors() {
		t.Error("expected error for whitespace-only required field")
	}
}

func TestValidatorExactlyOne(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		region   string
		wantErr  bool
	}{
		{"endpoint only", "wss://speech.example", "", false},
		{"region only", "", "koreacentral", false},
		{"both", "wss://speech.example", "koreacentral", true},
		{"neither", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New().ExactlyOne("endpoint", tt.endpoint, "region", tt.region)
			if v.HasErrors() != tt.wantErr {
				t.Errorf("HasErrors() = %v, want %v", v.HasErrors(), tt.wantErr)
			}
		})
	}
}

func TestValidatorOneOf(t *testing.T) {
	if New().OneOf("device", "CPU", []string{"CPU", "GPU"}).HasErrors() {
		t.Error("expected CPU to be accepted")
	}
	if !New().OneOf("device", "TPU", []string{"CPU", "GPU"}).HasErrors() {
		t.Error("expected TPU to be rejected")
	}
	if New().OneOf("device", "", []string{"CPU"}).HasErrors() {
		t.Error("empty value should be skipped")
	}
}

func TestValidatorValidate(t *testing.T) {
	if err := New().Validate(); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	err := New().Required("name", "").Custom(false, "device", "unsupported").Validate()
	appErr, ok := errors.AsAppError(err)
	if !ok {
		t.Fatalf("expected AppError, got %T", err)
	}
	if appErr.Code != errors.ErrCodeInvalidInput {
		t.Errorf("expected INVALID_INPUT, got %s", appErr.Code)
	}
	if !strings.Contains(appErr.Message, "name: is required") || !strings.Contains(appErr.Message, "device: unsupported") {
		t.Errorf("unexpected message %q", appErr.Message)
	}
	fields, _ := appErr.Details["fields"].([]FieldError)
	if len(fields) != 2 {
		t.Errorf("expected 2 field errors, got %v", appErr.Details["fields"])
	}
}

func TestValidateUUID(t *testing.T) {
	id := uuid.New()
	got, err := ValidateUUID("model_id", id.String())
	if err != nil || got != id {
		t.Fatalf("ValidateUUID = %v, %v", got, err)
	}

	_, err = ValidateUUID("model_id", "")
	if appErr, _ := errors.AsAppError(err); appErr == nil || appErr.Code != errors.ErrCodeMissingField {
		t.Errorf("expected MISSING_FIELD, got %v", err)
	}

	if _, err := ValidateUUID("model_id", "nope"); err == nil {
		t.Error("expected error for malformed UUID")
	}
}

type registerPayload struct {
	Name      string `json:"name" validate:"required,max=8"`
	Framework string `json:"framework" validate:"required,framework"`
	Language  string `json:"language"`
}

func TestValidateStruct(t *testing.T) {
	RegisterFramework("local-test")

	if err := Validate(registerPayload{Name: "tiny", Framework: "LOCAL-TEST"}); err != nil {
		t.Fatalf("expected valid payload, got %v", err)
	}

	err := Validate(registerPayload{Name: "far-too-long-name", Framework: "onnx"})
	appErr, ok := errors.AsAppError(err)
	if !ok {
		t.Fatalf("expected AppError, got %v", err)
	}
	if !strings.Contains(appErr.Message, "name: must be at most 8 characters") {
		t.Errorf("missing max message in %q", appErr.Message)
	}
	if !strings.Contains(appErr.Message, "framework: unknown framework onnx") {
		t.Errorf("missing framework message in %q", appErr.Message)
	}
}

func TestToSnakeCase(t *testing.T) {
	tests := map[string]string{
		"ModelID":   "model_i_d",
		"Framework": "framework",
		"apiKey":    "api_key",
	}
	for in, want := range tests {
		if got := toSnakeCase(in); got != want {
			t.Errorf("toSnakeCase(%q) = %q, want %q", in, got, want)
		}
	}
}
