// Package main hosts the crystalproc CLI entrypoint and command graph.
//
// The Cobra command tree wires configuration, logging and the processing
// journal into the internal packages: batch conversion and placement,
// archive-host synchronization, raw-file compaction, temperature logging,
// per-crystal energy calibration and calibration summary plots. Subcommands
// stay thin; behavior lives in internal/.
package main
