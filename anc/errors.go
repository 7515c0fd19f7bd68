package anc

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownAxis indicates an axis name outside the configured ordering.
	ErrUnknownAxis = errors.New("anc: unknown axis")

	// ErrInvalidAxes indicates an unusable axis ordering passed to New.
	ErrInvalidAxes = errors.New("anc: invalid axis ordering")

	// ErrParse matches any *ParseError.
	ErrParse = errors.New("anc: unexpected reply")

	// ErrWorkerClosed is returned by Worker.Do once the worker is closed.
	ErrWorkerClosed = errors.New("anc: worker closed")
)

// ParseError reports a reply whose text does not have the expected shape.
type ParseError struct {
	// Command is the command that produced the reply.
	Command string
	// Reply is the reply payload as returned by the transport.
	Reply string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("anc: unexpected reply to %q: %q", e.Command, e.Reply)
}

// Is reports whether target is ErrParse.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}
