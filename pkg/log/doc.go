/*
Package log provides structured logging for the delta library using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support filtering
by severity level.

Initializing the Logger:

	import "github.com/cuemby/delta/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Component Loggers:

	txnLog := log.WithComponent("txn")
	txnLog.Info().Int64("version", 12).Msg("commit succeeded")

	tableLog := log.WithTable("/data/events")
	tableLog.Warn().Err(err).Msg("checkpoint write failed")

This package integrates with:

  - pkg/deltalog: logs snapshot loads and log replay
  - pkg/txn: logs commit attempts, conflicts, and retries
  - pkg/checkpoint: logs checkpoint writes and failures
  - pkg/merge: logs merge phases and metrics
  - pkg/stream: logs micro-batch admission decisions
*/
package log
