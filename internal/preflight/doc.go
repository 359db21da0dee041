// Package preflight provides readiness checks for the filesystem paths and
// external tools a processing batch depends on.
//
// The CLI "check" command prints every result; "process" runs the same
// checks first and refuses to start when any of them fails, so a batch never
// stops halfway for a missing converter or a full disk.
package preflight
