// Package transcription defines the adapter contract shared by every
// speech-to-text backend the gateway can host.
//
// Two kinds of backend exist. Local engines load a model once and serve
// concurrent Infer calls against the shared Instance. Cloud streaming
// services additionally open one Recognition per client session and push
// partial and final results back through an EventSink.
//
// # Backends
//
//   - transcription/localengine: HTTP inference sidecar (OpenVINO Whisper)
//   - transcription/cloudstream: websocket cloud speech recognizer
//
// # Usage
//
//	reg := transcription.NewRegistry()
//	_ = reg.Register(localengine.New(cfg.LocalEngine))
//	adapter, err := reg.Resolve("openvino")
//	inst, err := adapter.Open(ctx, modelCfg)
//	texts, err := inst.Infer(ctx, samples, "<|ko|>")
package transcription
