// Package protocol implements the MPD text protocol: field lines, ACK error
// lines and the binary chunk framing used for cover art transfers.
package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// ErrMalformed reports a line or frame that violates the protocol.
var ErrMalformed = errors.New("protocol: malformed response")

// maxBinary bounds the payload size accepted from a single binary field.
const maxBinary = 64 << 20

// Field is one "name: value" line of a response.
type Field struct {
	Name  string
	Value string
}

// Response holds the fields of one response in the order they were received,
// plus the raw payload when the response carried a binary chunk.
type Response struct {
	Fields []Field
	Binary []byte
}

// Get returns the first value recorded for name.
func (r *Response) Get(name string) (string, bool) {
	f, ok := lo.Find(r.Fields, func(f Field) bool { return f.Name == name })
	return f.Value, ok
}

// Values returns every value recorded for name, in order.
func (r *Response) Values(name string) []string {
	return lo.FilterMap(r.Fields, func(f Field, _ int) (string, bool) {
		return f.Value, f.Name == name
	})
}

// Has reports whether name appears at least once.
func (r *Response) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Map groups values by field name, keeping repeated tags in order.
func (r *Response) Map() map[string][]string {
	m := make(map[string][]string, len(r.Fields))
	for _, f := range r.Fields {
		m[f.Name] = append(m[f.Name], f.Value)
	}
	return m
}

// ReadResponse reads lines from r until the response is complete.
//
// An ACK line is returned as an *AckError. Read failures are returned as-is so
// callers can tell them apart from ErrMalformed.
func ReadResponse(r *bufio.Reader) (*Response, error) {
	resp := &Response{}
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		switch {
		case strings.HasPrefix(line, "OK"):
			return resp, nil
		case strings.HasPrefix(line, "ACK"):
			ack, err := ParseErrorLine(line)
			if err != nil {
				return nil, err
			}
			return nil, ack
		}

		name, value, err := ParseFieldLine(line)
		if err != nil {
			return nil, err
		}
		resp.Fields = append(resp.Fields, Field{Name: name, Value: value})
		if name != "binary" {
			continue
		}

		payload, err := readBinary(r, value)
		if err != nil {
			return nil, err
		}
		resp.Binary = payload
		return resp, nil
	}
}

// readBinary consumes the payload announced by a binary field, the newline
// that follows it and the terminating OK line.
func readBinary(r *bufio.Reader, length string) ([]byte, error) {
	n, err := strconv.Atoi(length)
	if err != nil || n < 0 || n > maxBinary {
		return nil, fmt.Errorf("%w: binary length %q", ErrMalformed, length)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	nl, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if nl != '\n' {
		return nil, fmt.Errorf("%w: missing newline after %d byte chunk", ErrMalformed, n)
	}
	tail, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(tail, "OK") {
		return nil, fmt.Errorf("%w: expected OK after binary chunk, got %q", ErrMalformed, tail)
	}
	return payload, nil
}

// Quote wraps an argument in double quotes, escaping backslashes and quotes.
func Quote(arg string) string {
	var b strings.Builder
	b.Grow(len(arg) + 2)
	b.WriteByte('"')
	for _, c := range []byte(arg) {
		if c == '"' || c == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	b.WriteByte('"')
	return b.String()
}
