// Package timesync converts strace timestamps to wall-clock time.
//
// strace -tt prints the time of day only. The date is supplied separately
// as an anchor: the --date flag, else the modification time of the input
// file, else today when reading stdin. strace -ttt prints seconds since the
// Unix epoch and needs no anchor.
//
// A -tt trace that crosses midnight is not unwrapped; record with -ttt when
// a capture may span days.
package timesync
