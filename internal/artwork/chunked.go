package artwork

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/tunez/mpdbridge/internal/protocol"
)

// Chunked reads a picture from the server with a command that returns it in
// binary chunks, such as readpicture or albumart. The request is repeated at
// increasing offsets until the declared size has been received.
type Chunked struct {
	Command string
}

func (s Chunked) Name() string { return s.Command }

func (s Chunked) Fetch(ctx context.Context, c Commander, uri string, w io.Writer) (int64, error) {
	var offset int64
	for {
		resp, err := c.Command(ctx, fmt.Sprintf("%s %s %d", s.Command, protocol.Quote(uri), offset))
		var ack *protocol.AckError
		if errors.As(err, &ack) && offset == 0 {
			return 0, ErrNotFound
		}
		if err != nil {
			return offset, err
		}
		if !resp.Has("binary") {
			if offset == 0 {
				return 0, ErrNotFound
			}
			return offset, fmt.Errorf("%s at offset %d: missing binary chunk", s.Command, offset)
		}
		raw, ok := resp.Get("size")
		if !ok {
			return offset, fmt.Errorf("%s: missing size field", s.Command)
		}
		size, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return offset, fmt.Errorf("%s: invalid size %q: %w", s.Command, raw, err)
		}
		if len(resp.Binary) == 0 {
			if offset == 0 {
				return 0, ErrNotFound
			}
			return offset, fmt.Errorf("%s at offset %d: empty chunk before size %d", s.Command, offset, size)
		}
		if _, err := w.Write(resp.Binary); err != nil {
			return offset, fmt.Errorf("write chunk: %w", err)
		}
		offset += int64(len(resp.Binary))
		if offset >= size {
			return offset, nil
		}
	}
}
