// Package logging provides structured logging for import orchestration runs.
//
// It wraps Go's log/slog. Loggers carry persistent attributes so every entry
// about a module can be filtered by run, module key, and load mode.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/var/log/dataimport", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	keyLogger := logger.WithRun("3f9a0c1e").WithKey("./widgets/clock.mjs").WithMode("eager")
//	keyLogger.Info("loading module", "uri", uri)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"loading module","run_id":"3f9a0c1e","key":"./widgets/clock.mjs","mode":"eager","uri":"../widgets/clock.mjs"}
//
// The CLI writes human-readable entries with NewWriterLogger(os.Stderr, level, "text").
// Tests use [NopLogger].
package logging
