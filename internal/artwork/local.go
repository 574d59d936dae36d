package artwork

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
)

// LocalEmbedded reads the embedded picture straight from the audio file when
// the music directory is reachable from this host.
type LocalEmbedded struct {
	Root string
}

func (LocalEmbedded) Name() string { return "local tags" }

func (s LocalEmbedded) Fetch(_ context.Context, _ Commander, uri string, w io.Writer) (int64, error) {
	if s.Root == "" || strings.Contains(uri, "://") {
		return 0, ErrNotFound
	}
	path := filepath.Join(s.Root, filepath.FromSlash(uri))
	if !strings.HasPrefix(path, filepath.Clean(s.Root)+string(filepath.Separator)) {
		return 0, ErrNotFound
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		// Files without a supported tag format simply have no picture.
		return 0, ErrNotFound
	}
	pic := m.Picture()
	if pic == nil || len(pic.Data) == 0 {
		return 0, ErrNotFound
	}
	n, err := w.Write(pic.Data)
	if err != nil {
		return int64(n), fmt.Errorf("write picture: %w", err)
	}
	return int64(n), nil
}
