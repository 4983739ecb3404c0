package cloudstream

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kbukum/speechgate/audio"
	"github.com/kbukum/speechgate/transcription"
)

const (
	recognitionPath = "/speech/recognition/conversation/cognitiveservices/v1"
	keyHeader       = "Ocp-Apim-Subscription-Key"
	connectionIDHdr = "X-ConnectionId"
)

// Service message paths.
const (
	pathHypothesis = "speech.hypothesis"
	pathPhrase     = "speech.phrase"
	pathTurnEnd    = "turn.end"
)

// recognitionURL builds the websocket URL for a recognition. An explicit
// endpoint wins over a region.
func recognitionURL(creds transcription.Credentials, language string) (string, error) {
	var base string
	switch {
	case creds.Endpoint != "":
		base = strings.TrimRight(creds.Endpoint, "/")
		if strings.HasPrefix(base, "https://") {
			base = "wss://" + strings.TrimPrefix(base, "https://")
		} else if strings.HasPrefix(base, "http://") {
			base = "ws://" + strings.TrimPrefix(base, "http://")
		}
	case creds.Region != "":
		base = "wss://" + creds.Region + ".stt.speech.microsoft.com"
	default:
		return "", fmt.Errorf("%w: endpoint or region is required", transcription.ErrConfigInvalid)
	}

	u, err := url.Parse(base + recognitionPath)
	if err != nil {
		return "", fmt.Errorf("%w: endpoint: %v", transcription.ErrConfigInvalid, err)
	}
	q := u.Query()
	q.Set("language", locale(language))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// locale strips decoder-style tags ("<|ko|>") down to the bare code.
func locale(language string) string {
	l := strings.TrimSpace(language)
	l = strings.TrimPrefix(l, "<|")
	l = strings.TrimSuffix(l, "|>")
	if l == "" {
		return "ko-KR"
	}
	return l
}

func timestamp() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}

// textMessage frames a JSON control message.
func textMessage(path, requestID string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, "Path: %s\r\nX-RequestId: %s\r\nX-Timestamp: %s\r\nContent-Type: application/json\r\n\r\n", path, requestID, timestamp())
	b.Write(payload)
	return b.Bytes(), nil
}

// audioMessage frames audio as a binary message: a 2-byte big-endian header
// length, the headers, then the payload. An empty payload ends the stream.
func audioMessage(requestID string, payload []byte) []byte {
	header := fmt.Sprintf("Path: audio\r\nX-RequestId: %s\r\nX-Timestamp: %s\r\nContent-Type: audio/x-wav\r\n", requestID, timestamp())
	out := make([]byte, 2+len(header)+len(payload))
	binary.BigEndian.PutUint16(out, uint16(len(header)))
	copy(out[2:], header)
	copy(out[2+len(header):], payload)
	return out
}

// wavHeader is the RIFF header sent ahead of the first audio chunk. Sizes
// are left zero for an unbounded stream.
func wavHeader() []byte {
	h := make([]byte, 44)
	copy(h[0:], "RIFF")
	copy(h[8:], "WAVE")
	copy(h[12:], "fmt ")
	binary.LittleEndian.PutUint32(h[16:], 16)
	binary.LittleEndian.PutUint16(h[20:], 1)
	binary.LittleEndian.PutUint16(h[22:], 1)
	binary.LittleEndian.PutUint32(h[24:], audio.DefaultSampleRate)
	binary.LittleEndian.PutUint32(h[28:], audio.DefaultSampleRate*2)
	binary.LittleEndian.PutUint16(h[32:], 2)
	binary.LittleEndian.PutUint16(h[34:], 16)
	copy(h[36:], "data")
	return h
}

// parseTextMessage splits a service text message into its Path header and
// body.
func parseTextMessage(msg []byte) (path string, body []byte) {
	head, body, _ := bytes.Cut(msg, []byte("\r\n\r\n"))
	for _, line := range strings.Split(string(head), "\r\n") {
		k, v, ok := strings.Cut(line, ":")
		if ok && strings.EqualFold(strings.TrimSpace(k), "path") {
			return strings.ToLower(strings.TrimSpace(v)), body
		}
	}
	return "", body
}

type hypothesis struct {
	Text string `json:"Text"`
}

type phrase struct {
	RecognitionStatus string `json:"RecognitionStatus"`
	DisplayText       string `json:"DisplayText"`
}

type speechConfig struct {
	Context struct {
		System struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"system"`
		Audio struct {
			Source struct {
				SampleRate int `json:"samplerate"`
				Channels   int `json:"channels"`
				Bits       int `json:"bitspersample"`
			} `json:"source"`
		} `json:"audio"`
	} `json:"context"`
}

func newSpeechConfig() speechConfig {
	var c speechConfig
	c.Context.System.Name = "speechgate"
	c.Context.System.Version = "1"
	c.Context.Audio.Source.SampleRate = audio.DefaultSampleRate
	c.Context.Audio.Source.Channels = 1
	c.Context.Audio.Source.Bits = 16
	return c
}
