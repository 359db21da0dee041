// Package services defines shared utilities consumed by the batch stages and
// external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp batch IDs, crystal serials, run numbers, and
//     stage names for logging.
//   - Structured error markers plus the Wrap helper so every failure carries
//     its stage and can be classified (configuration, parse, conversion, ...)
//     when it is reported or journaled.
//
// Use these helpers when wiring new stage logic so error handling and
// observability stay uniform across the pipeline.
package services
