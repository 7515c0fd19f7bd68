package wiznet

import "strings"

// Default frame delimiters of the positioner controller.
const (
	DefaultLinebreak = "\r\n"
	DefaultPrompt    = "> "
)

// Frame holds the delimiters that frame requests and replies.
//
// A request is command + Linebreak. A valid reply is payload + Linebreak + Prompt,
// where the payload itself may span several lines.
type Frame struct {
	Linebreak string
	Prompt    string
}

// DefaultFrame returns the "\r\n" / "> " frame.
func DefaultFrame() Frame {
	return Frame{Linebreak: DefaultLinebreak, Prompt: DefaultPrompt}
}

// Terminator returns the sequence every valid reply ends with.
func (f Frame) Terminator() string {
	return f.Linebreak + f.Prompt
}

// Encode returns the bytes transmitted for command.
func (f Frame) Encode(command string) []byte {
	buf := make([]byte, 0, len(command)+len(f.Linebreak))
	buf = append(buf, command...)
	buf = append(buf, f.Linebreak...)

	return buf
}

// Decode validates reply and strips the terminator from its end.
//
// Only the final terminator is removed; linebreaks inside the payload are kept.
// A reply without the terminator yields a *FramingError for command.
func (f Frame) Decode(command string, reply string) (string, error) {
	payload, ok := strings.CutSuffix(reply, f.Terminator())
	if !ok {
		return "", &FramingError{Command: command, Reply: reply}
	}

	return payload, nil
}
