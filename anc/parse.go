package anc

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// plain decimal number, no exponent, hex or inf/nan spellings
var decimalPattern = regexp.MustCompile(`^[+-]?\d+(\.\d+)?$`)

// parseMode extracts the mode from a "getm" reply such as "mode = stp\r\nOK".
// The mode is the text between "= " and the next linebreak.
func parseMode(command string, reply string, linebreak string) (Mode, error) {
	_, rest, found := strings.Cut(reply, "= ")
	if !found {
		return "", &ParseError{Command: command, Reply: reply}
	}

	mode, _, found := strings.Cut(rest, linebreak)
	if !found {
		return "", &ParseError{Command: command, Reply: reply}
	}

	return Mode(mode), nil
}

// parseCapacitance extracts the value in nF from a "getc" reply such as
// "capacitance = 1012.5 nF\r\nOK". ok is false when the reply has another shape.
func parseCapacitance(reply string) (value float64, ok bool) {
	start := strings.Index(reply, "=")
	end := strings.Index(reply, " nF")
	if start < 0 || end <= start {
		return math.NaN(), false
	}

	field := strings.TrimSpace(reply[start+1 : end])
	if !decimalPattern.MatchString(field) {
		return math.NaN(), false
	}

	value, err := strconv.ParseFloat(field, 64)
	if err != nil || math.IsInf(value, 0) {
		return math.NaN(), false
	}

	return value, true
}

// PacingDelay returns how long a caller is held after dispatching steps at
// timePerStep each: the product rounded to whole seconds, halves to even.
func PacingDelay(steps int, timePerStep time.Duration) time.Duration {
	if steps < 0 {
		steps = -steps
	}

	total := time.Duration(steps) * timePerStep
	secs, rem := total/time.Second, total%time.Second

	const half = time.Second / 2
	if rem > half || (rem == half && secs%2 == 1) {
		secs++
	}

	return secs * time.Second
}
