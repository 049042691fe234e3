/*
Package log provides structured logging via zerolog: a global Logger,
an Init(Config) entry point for JSON vs console output and level, and
With*-style helpers that attach context to a child logger.

# Child loggers

	log.WithComponent("gc")       // component doing the logging
	log.WithResource("mail.acc1") // the resource instance involved
	log.WithType("mail")          // the entity type involved

# Level

SINKDEBUGLEVEL maps to zerolog's global level via LevelFromDebugEnv:
Trace -> Debug, Log -> Info, Warning -> Warn, Error -> Error.

# Trace areas

TraceOn/TraceOff/Tracing back the CLI's "trace on|off [areas...]"
command: a process-wide switch, not a full tracing subsystem. Trace
logs at Debug only when its area (or tracing globally) is on, so a
running process can turn on noisy per-area diagnostics without a
restart.
*/
package log
