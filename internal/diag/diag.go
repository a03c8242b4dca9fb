// Package diag is the compiler's diagnostic sink. spec.md §7 leaves no
// room for error recovery: the first diagnostic is fatal, so Fatalf panics
// rather than recording into a list for the driver to print once parsing
// is done. Package diag also carries the driver's structured logging for
// its own -v trace output.
package diag

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Pos is a source position, carried on every diagnostic.
type Pos struct {
	File string
	Line int
	Col  int
}

func (p Pos) String() string {
	if p.File == "" {
		return fmt.Sprintf("%d:%d", p.Line, p.Col)
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Col)
}

// Fatal is raised for any condition the parser cannot proceed past: a
// malformed token stream or a semantic error (an internal invariant
// violation is a plain panic, not a Fatal). It is always thrown with
// panic; there is no recovery boundary
// anywhere in internal/parser or internal/token, so it unwinds straight
// out of Parser.Parse to whichever caller chooses to catch it (cmd/cc89's
// driver, at the top).
type Fatal struct {
	Pos Pos
	Err error
}

func (f *Fatal) Error() string {
	return fmt.Sprintf("%s: %s", f.Pos, f.Err)
}

// Fatalf panics with a *Fatal built from format/args, wrapped with
// pkg/errors so a later %+v print carries a stack trace.
func Fatalf(pos Pos, format string, args ...interface{}) {
	panic(&Fatal{Pos: pos, Err: errors.Errorf(format, args...)})
}

// NewLogger builds the driver's structured trace logger (-v) over zerolog,
// always writing through zerolog's console writer; verbose lowers the
// level from Info to Debug.
func NewLogger(verbose bool) zerolog.Logger {
	lvl := zerolog.InfoLevel
	if verbose {
		lvl = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.NewConsoleWriter()).Level(lvl).With().Timestamp().Logger()
}
