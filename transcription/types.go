package transcription

import "strings"

// Kind separates backends by how they are driven.
type Kind int

const (
	// KindLocal backends run a shared, loaded model.
	KindLocal Kind = iota + 1
	// KindCloud backends stream audio to a remote recognizer per session.
	KindCloud
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "local"
	case KindCloud:
		return "cloud"
	default:
		return "unknown"
	}
}

// Framework is the tag a model is registered with. It selects the adapter.
type Framework string

const (
	FrameworkOpenVINO Framework = "openvino"
	FrameworkAzure    Framework = "azure"
)

// Normalize lowercases and trims the tag.
func (f Framework) Normalize() Framework {
	return Framework(strings.ToLower(strings.TrimSpace(string(f))))
}

// SecretFunc yields a plaintext credential on demand. Callers keep the
// result on the stack and never store it.
type SecretFunc func() (string, error)

// ModelConfig is what an adapter needs to open a model.
type ModelConfig struct {
	ID        string
	Name      string
	Framework Framework
	Device    string
	Language  string
	Path      string
	Endpoint  string
	Region    string
	APIKey    SecretFunc
}

// Credentials are the decrypted cloud credentials for one recognition.
type Credentials struct {
	Endpoint string
	Region   string
	APIKey   string
}

// EventKind tags a recognition callback.
type EventKind int

const (
	EventPartial EventKind = iota + 1
	EventFinal
	// EventStopped is delivered once when the remote session ends, with Err
	// set if it ended abnormally.
	EventStopped
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventPartial:
		return "partial"
	case EventFinal:
		return "final"
	case EventStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// RecognitionEvent is one callback from a streaming recognizer.
type RecognitionEvent struct {
	Kind EventKind
	Text string
	Err  error
}
