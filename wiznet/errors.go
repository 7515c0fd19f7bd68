package wiznet

import (
	"errors"
	"fmt"
)

var (
	// ErrRetriesExhausted is returned when every attempt of an exchange failed
	// at the transport level. The returned error also wraps the last transport error.
	ErrRetriesExhausted = errors.New("wiznet: retries exhausted")

	// ErrFraming matches any *FramingError.
	ErrFraming = errors.New("wiznet: reply framing violation")

	// ErrEmptyReply indicates that the bridge closed the connection or stayed
	// silent without delivering any reply bytes.
	//
	// It is a transport failure and is retried: a bridge that hangs up without
	// answering uses one retry slot per attempt, and only surfaces, wrapped
	// in ErrRetriesExhausted, once every attempt did so. It is never reported
	// as a framing violation, even though an empty reply lacks the prompt.
	ErrEmptyReply = errors.New("wiznet: empty reply")
)

// FramingError reports a reply that does not end with the frame terminator.
type FramingError struct {
	// Command is the command whose reply was rejected, without linebreak.
	Command string
	// Reply is the raw decoded reply as received.
	Reply string
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("wiznet: reply to %q is not terminated by the prompt, last line from device: %q", e.Command, e.Reply)
}

// Is reports whether target is ErrFraming.
func (e *FramingError) Is(target error) bool {
	return target == ErrFraming
}
