// Package artwork downloads cover art for the current song into a cache
// directory, one file per song id.
package artwork

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/tunez/mpdbridge/internal/protocol"
)

// ErrNotFound means no strategy produced any image data.
var ErrNotFound = errors.New("artwork not found")

// Commander issues one command and returns its framed response.
type Commander interface {
	Command(ctx context.Context, cmd string) (*protocol.Response, error)
}

// Strategy is one way of obtaining the picture for a song URI.
//
// Fetch writes the image to w and returns the number of bytes written. It
// returns ErrNotFound when the source has no picture; any other error aborts
// the download.
type Strategy interface {
	Name() string
	Fetch(ctx context.Context, c Commander, uri string, w io.Writer) (int64, error)
}

// DefaultStrategies returns the embedded picture and folder cover lookups,
// followed by a local tag read when musicDir is set.
func DefaultStrategies(musicDir string) []Strategy {
	s := []Strategy{
		Chunked{Command: "readpicture"},
		Chunked{Command: "albumart"},
	}
	if musicDir != "" {
		s = append(s, LocalEmbedded{Root: musicDir})
	}
	return s
}

// Options configures a Cache.
type Options struct {
	// Dir is the cache directory. Empty selects a per-user runtime directory.
	Dir        string
	Strategies []Strategy
	Logger     *slog.Logger
}

// Cache owns the art files under one directory.
type Cache struct {
	dir        string
	strategies []Strategy
	log        *slog.Logger
}

// NewCache creates the cache directory if needed.
func NewCache(opts Options) (*Cache, error) {
	if opts.Dir == "" {
		opts.Dir = DefaultDir()
	}
	if opts.Strategies == nil {
		opts.Strategies = DefaultStrategies("")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{dir: opts.Dir, strategies: opts.Strategies, log: opts.Logger}, nil
}

// DefaultDir resolves the runtime directory used for art files, falling
// back to the temp directory.
func DefaultDir() string {
	base := os.TempDir()
	switch runtime.GOOS {
	case "darwin", "windows":
	default:
		if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
			base = dir
		}
	}
	return filepath.Join(base, "mpdbridge", "album_art")
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// Path returns the art file path for a song id.
func (c *Cache) Path(id string) string {
	return filepath.Join(c.dir, id)
}

// Download fetches the picture for uri into the file for id and returns its
// path. Strategies are tried in order until one produces data. Any file left
// from an earlier download of the same id is removed first.
func (c *Cache) Download(ctx context.Context, cmd Commander, uri, id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("download art for %q: empty song id", uri)
	}
	path := c.Path(id)
	if err := Remove(path); err != nil {
		return "", err
	}
	for _, s := range c.strategies {
		n, err := c.fetch(ctx, cmd, s, uri, path)
		if errors.Is(err, ErrNotFound) {
			c.log.Debug("no artwork from source", slog.String("source", s.Name()), slog.String("uri", uri))
			continue
		}
		if err != nil {
			if rerr := Remove(path); rerr != nil {
				c.log.Debug("remove partial art failed", slog.String("path", path), slog.Any("err", rerr))
			}
			return "", fmt.Errorf("download art via %s: %w", s.Name(), err)
		}
		c.log.Debug("artwork downloaded", slog.String("source", s.Name()), slog.String("path", path), slog.Int64("bytes", n))
		return path, nil
	}
	if err := Remove(path); err != nil {
		return "", err
	}
	return "", ErrNotFound
}

func (c *Cache) fetch(ctx context.Context, cmd Commander, s Strategy, uri, path string) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create art file: %w", err)
	}
	n, err := s.Fetch(ctx, cmd, uri, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close art file: %w", cerr)
	}
	return n, err
}

// Remove deletes an art file. A missing file is not an error.
func Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove art file: %w", err)
	}
	return nil
}
