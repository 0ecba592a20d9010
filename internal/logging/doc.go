// Package logging provides file-based logging with rotation for the
// engine core. Setup always writes structured JSON lines to a size-capped
// rotating file and, when WriteToStderr is set, mirrors them to stderr.
// DefaultConfig points the file at ~/.semcore-engine/logs/engine.log.
package logging
