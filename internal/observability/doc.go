// Package observability provides structured logging and tracing for the
// operation gateway.
//
// Logging is zap behind the Logger interface. Field constructors are
// re-exported so callers do not import zap directly:
//
//	logger, err := observability.NewLogger(observability.DefaultLogConfig())
//	if err != nil {
//	    return err
//	}
//	defer func() { _ = logger.Sync() }()
//
//	logger.Info("operation invoked",
//	    observability.String("operation", "listUsers"),
//	    observability.String("tenant", "acme"),
//	)
//
// Tracing is OpenTelemetry with an optional OTLP gRPC exporter. A disabled
// Tracer hands out no-op spans, so call sites never check for nil.
package observability
