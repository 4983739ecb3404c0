package session

import (
	"github.com/kbukum/speechgate/audio"
	apperrors "github.com/kbukum/speechgate/errors"
)

// MessageType names an inbound client message.
type MessageType string

const (
	MsgStartTranscribe MessageType = "start_transcribe"
	MsgAudioChunk      MessageType = "audio_chunk"
	MsgStopTranscribe  MessageType = "stop_transcribe"
)

// Message is one inbound client message.
type Message struct {
	Type     MessageType `json:"type"`
	ModelID  string      `json:"model_id,omitempty"`
	Language string      `json:"language,omitempty"`
	// Samples carries audio sent as a JSON array.
	Samples []float32 `json:"audio,omitempty"`
	// Payload carries audio sent as a binary frame of float32 little-endian
	// samples. It takes precedence over Samples.
	Payload []byte `json:"-"`
}

// samples decodes the frame audio.
func (m Message) samples() ([]float32, error) {
	if m.Payload == nil {
		return m.Samples, nil
	}
	samples, err := audio.DecodeFloat32LE(m.Payload)
	if err != nil {
		return nil, apperrors.InvalidInput("audio", err.Error())
	}
	return samples, nil
}
