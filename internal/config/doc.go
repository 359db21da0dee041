// Package config loads, normalizes, and validates crystalproc configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and accepts the lab's legacy JSON layout
// (raw_path, built_path, pos_vals, HV_vals and one object per crystal serial).
// The Config type centralizes the data roots, test-dimension value tables,
// converter invocation, remote coordinates, and per-crystal run lists so a
// batch can be planned in one pass.
//
// A Config is loaded once at startup and passed explicitly to every
// component; nothing in this package keeps process-wide state.
package config
