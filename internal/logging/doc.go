// Package logging assembles the structured slog loggers used across
// crystalproc.
//
// It owns the console and JSON handlers, mirrors every record into a JSON
// log file in the configured log directory, and exposes context-aware
// helpers so stage code automatically tags lines with the batch ID, crystal
// serial, run number, and stage. A no-op logger is provided for tests and
// wiring code that cannot fail.
package logging
