package cloudstream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kbukum/speechgate/audio"
	"github.com/kbukum/speechgate/logger"
	"github.com/kbukum/speechgate/transcription"
)

const writeWait = 5 * time.Second

type recognition struct {
	adapter   *Adapter
	conn      *websocket.Conn
	requestID string
	sink      transcription.EventSink
	log       *logger.Logger

	writeMu    sync.Mutex
	headerSent bool

	stopping    atomic.Bool
	stopOnce    sync.Once
	releaseOnce sync.Once
	done        chan struct{}
}

var _ transcription.Recognition = (*recognition)(nil)

func (r *recognition) Write(samples []float32) error {
	if r.stopping.Load() || r.finished() {
		return fmt.Errorf("%w: recognition already ended", transcription.ErrSessionTerminated)
	}
	if len(samples) == 0 {
		return nil
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	payload := audio.EncodePCM16LE(samples)
	if !r.headerSent {
		payload = append(wavHeader(), payload...)
		r.headerSent = true
	}
	_ = r.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := r.conn.WriteMessage(websocket.BinaryMessage, audioMessage(r.requestID, payload)); err != nil {
		return fmt.Errorf("%w: %v", transcription.ErrSessionTerminated, err)
	}
	return nil
}

func (r *recognition) Stop(ctx context.Context) error {
	r.stopOnce.Do(func() {
		r.stopping.Store(true)
		if r.finished() {
			return
		}
		r.writeMu.Lock()
		_ = r.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := r.conn.WriteMessage(websocket.BinaryMessage, audioMessage(r.requestID, nil)); err != nil {
			r.log.Debug("end-of-stream write failed", logger.ErrorFields("stop", err))
		}
		r.writeMu.Unlock()
	})

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		r.release()
		<-r.done
		return fmt.Errorf("recognition stop not confirmed: %w", ctx.Err())
	}
}

func (r *recognition) finished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *recognition) release() {
	r.releaseOnce.Do(func() {
		_ = r.conn.Close()
		r.adapter.active.Add(-1)
	})
}

func (r *recognition) readLoop() {
	var endErr error
	defer func() {
		r.release()
		r.sink(transcription.RecognitionEvent{Kind: transcription.EventStopped, Err: endErr})
		close(r.done)
	}()

	for {
		mt, msg, err := r.conn.ReadMessage()
		if err != nil {
			if !r.stopping.Load() {
				endErr = fmt.Errorf("%w: %v", transcription.ErrSessionTerminated, err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		path, body := parseTextMessage(msg)
		switch path {
		case pathHypothesis:
			var h hypothesis
			if json.Unmarshal(body, &h) == nil && h.Text != "" {
				r.sink(transcription.RecognitionEvent{Kind: transcription.EventPartial, Text: h.Text})
			}
		case pathPhrase:
			var p phrase
			if json.Unmarshal(body, &p) == nil && p.RecognitionStatus == "Success" && p.DisplayText != "" {
				r.sink(transcription.RecognitionEvent{Kind: transcription.EventFinal, Text: p.DisplayText})
			}
		case pathTurnEnd:
			if !r.stopping.Load() {
				endErr = fmt.Errorf("%w: remote ended the turn", transcription.ErrSessionTerminated)
			}
			return
		}
	}
}
