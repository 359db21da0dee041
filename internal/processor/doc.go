// Package processor drives the per-crystal pipeline: discover raw runs,
// classify them, convert the ones not yet built, and place each converted
// file under built_dir/<serial>/<dimension>/<folder>/.
//
// Runs are processed strictly one at a time in run-number order. The skip
// check looks at the final destination, never the converter's working
// directory. Any anomaly (unknown serial, malformed raw name, missing
// converter output) halts the batch; every run that reached a decision is
// written to the journal under the batch ID first.
package processor
