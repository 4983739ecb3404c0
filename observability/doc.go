// Package observability wires OpenTelemetry metrics and tracing for the
// gateway.
//
// Telemetry is off by default. When disabled, instruments and spans are
// created against the global no-op providers so call sites never branch.
//
//	shutdown, err := observability.Init(ctx, cfg.Telemetry, info)
//	defer shutdown(ctx)
//
//	m := observability.NewGatewayMetrics()
//	m.RecordLoad(ctx, "ready")
//
//	ctx, span := observability.StartSpan(ctx, observability.SpanRegistryLoad)
//	defer span.End()
package observability
