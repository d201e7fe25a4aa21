// Package shutdown provides graceful shutdown for the snapshot agent.
//
// This package handles process termination signals:
//
//   - Signal handling (SIGINT, SIGTERM)
//   - Cleanup callback registration, run in reverse order
//   - A timeout that bounds the context passed to the callbacks
//   - Shutdown coordination
//
// Usage:
//
//	h := shutdown.NewHandler(10 * time.Second)
//	h.OnShutdown(func(ctx context.Context) error { return srv.Close() })
//	err := h.Wait() // blocks until a signal arrives, then runs the hooks
package shutdown
