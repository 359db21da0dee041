// Package remotesync pushes the local raw and built trees to the archive
// server and, after verifying every local file name is present remotely and
// obtaining confirmation, deletes the local raw files.
//
// Verification compares base names only (not paths or content), normalized
// to Unicode NFC so names written on macOS compare equal to Linux names.
// Transport is delegated to rsync, ssh, and scp.
package remotesync
