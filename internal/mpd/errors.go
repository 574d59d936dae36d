package mpd

import (
	"errors"
	"fmt"
)

// ConnError wraps an I/O failure on the stream to the server.
type ConnError struct {
	Op  string
	Err error
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("mpd connection: %s: %v", e.Op, e.Err)
}

func (e *ConnError) Unwrap() error {
	return e.Err
}

// IsConnError reports whether err was caused by a broken stream.
func IsConnError(err error) bool {
	var ce *ConnError
	return errors.As(err, &ce)
}
