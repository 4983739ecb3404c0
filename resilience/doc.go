// Package resilience holds the fault-tolerance primitives used around the
// gateway's remote calls: a circuit breaker guarding cloud recognizer dials
// and a retry helper for best-effort store writes.
//
//	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "cloud", MaxFailures: 3})
//	err := cb.Execute(func() error { return dial(ctx) })
//
//	err = resilience.RetryFunc(ctx, resilience.DefaultRetryConfig(), func() error {
//	    return store.UpdateStatus(ctx, id, "idle")
//	})
package resilience
