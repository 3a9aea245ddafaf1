// A [Middleware] is a function that wraps a remote call handler. Middleware
// are composed into a chain using [Chain] and applied before each remote
// set block or purge runs on the receiving node. They are applied
// right-to-left: the first middleware in the slice is the outermost wrapper.
//
//	// logging → recover → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging]: logs op, target, duration and outcome
//   - [Recover]: catches panics and converts them to errors
//   - [Timeout]: cancels the call context after a fixed duration
//   - [Tracing]: wraps execution in an OpenTelemetry span
//   - [Metrics]: records per-call duration and outcome counters
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting.
package middleware
