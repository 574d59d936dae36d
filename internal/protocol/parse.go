package protocol

import (
	"fmt"
	"regexp"
	"strconv"
)

var (
	fieldLine = regexp.MustCompile(`^([A-Za-z_-]+): ([^\n]*)\n$`)
	errorLine = regexp.MustCompile(`^ACK \[(\d+)@(\d+)\] \{([A-Za-z_]*)\} ?([^\n]*)\n$`)
)

// AckCode is the numeric error class of an ACK line.
type AckCode int

const (
	AckNotList     AckCode = 1
	AckBadArgument AckCode = 2
	AckBadPassword AckCode = 3
	AckPermission  AckCode = 4
	AckNoExist     AckCode = 50
)

// Known reports whether c is one of the named codes. Any other value is kept
// verbatim as an unknown code.
func (c AckCode) Known() bool {
	switch c {
	case AckNotList, AckBadArgument, AckBadPassword, AckPermission, AckNoExist:
		return true
	}
	return false
}

func (c AckCode) String() string {
	switch c {
	case AckNotList:
		return "not list"
	case AckBadArgument:
		return "bad argument"
	case AckBadPassword:
		return "bad password"
	case AckPermission:
		return "permission denied"
	case AckNoExist:
		return "no such resource"
	default:
		return fmt.Sprintf("unknown error %d", int(c))
	}
}

// AckError is an error reported by the server through an ACK line.
type AckError struct {
	Code AckCode
	// ListIndex is the position of the failing command inside a command list.
	ListIndex int
	Command   string
	Message   string
}

func (e *AckError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("mpd: %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("mpd: %s: %s (command %q, list index %d)", e.Code, e.Message, e.Command, e.ListIndex)
}

// ParseFieldLine splits a "name: value\n" line.
func ParseFieldLine(line string) (name, value string, err error) {
	m := fieldLine.FindStringSubmatch(line)
	if m == nil {
		return "", "", fmt.Errorf("%w: bad field line %q", ErrMalformed, line)
	}
	return m[1], m[2], nil
}

// ParseErrorLine parses "ACK [code@list_no] {command} message\n".
func ParseErrorLine(line string) (*AckError, error) {
	m := errorLine.FindStringSubmatch(line)
	if m == nil {
		return nil, fmt.Errorf("%w: bad error line %q", ErrMalformed, line)
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, fmt.Errorf("%w: error code %q", ErrMalformed, m[1])
	}
	idx, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, fmt.Errorf("%w: command list index %q", ErrMalformed, m[2])
	}
	return &AckError{
		Code:      AckCode(code),
		ListIndex: idx,
		Command:   m[3],
		Message:   m[4],
	}, nil
}
