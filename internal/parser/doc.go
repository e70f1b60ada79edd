// Package parser turns single lines of `strace -f -tt -T [-yyy]` output into
// typed events.
//
// Recognized line shapes:
//
//	PID TIME name(args) = ret <duration>             KindCall
//	PID TIME name(partial_args <unfinished ...>      KindUnfinished
//	PID TIME <... name resumed>rest_args) = ret <d>  KindResumed
//	PID TIME --- SIGNAME {...} ---                   KindSignal
//	PID TIME +++ exited with N +++                   KindExit
//	PID TIME +++ killed by SIGNAME +++               KindExit
//
// TIME is either a time of day (-tt) or a unix timestamp (-ttt). Arguments are
// split with a balanced-delimiter scanner so that commas inside strings,
// arrays, structs and -yyy descriptor annotations do not split an argument.
//
// The parser is stateless and safe for concurrent use. Lines that match none
// of the shapes yield an error wrapping ErrParseFailure.
package parser
