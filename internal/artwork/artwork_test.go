package artwork

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tunez/mpdbridge/internal/protocol"
)

// fakeServer answers art commands from an in-memory picture.
type fakeServer struct {
	pictures map[string][]byte // command name -> image bytes
	chunk    int
	failAt   string
	calls    []string
}

func (f *fakeServer) Command(_ context.Context, cmd string) (*protocol.Response, error) {
	f.calls = append(f.calls, cmd)
	if cmd == f.failAt {
		return nil, errors.New("connection reset")
	}
	var name, uri string
	var offset int
	if _, err := fmt.Sscanf(cmd, "%s %q %d", &name, &uri, &offset); err != nil {
		return nil, err
	}
	data, ok := f.pictures[name]
	if !ok {
		return nil, &protocol.AckError{Code: protocol.AckNoExist, Command: name, Message: "No file exists"}
	}
	if len(data) == 0 {
		return &protocol.Response{}, nil
	}
	end := min(offset+f.chunk, len(data))
	chunk := data[offset:end]
	return &protocol.Response{
		Fields: []protocol.Field{
			{Name: "size", Value: fmt.Sprint(len(data))},
			{Name: "binary", Value: fmt.Sprint(len(chunk))},
		},
		Binary: chunk,
	}, nil
}

func newTestCache(t *testing.T, strategies ...Strategy) *Cache {
	t.Helper()
	if strategies == nil {
		strategies = DefaultStrategies("")
	}
	c, err := NewCache(Options{Dir: t.TempDir(), Strategies: strategies})
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	return c
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func TestDownloadOffsetContinuation(t *testing.T) {
	data := pattern(10000)
	srv := &fakeServer{pictures: map[string][]byte{"readpicture": data}, chunk: 4000}
	cache := newTestCache(t)

	path, err := cache.Download(context.Background(), srv, "a/b.flac", "7")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if path != filepath.Join(cache.Dir(), "7") {
		t.Errorf("path = %q", path)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("file has %d bytes, want the 10000 source bytes in order", len(got))
	}
	want := []string{
		`readpicture "a/b.flac" 0`,
		`readpicture "a/b.flac" 4000`,
		`readpicture "a/b.flac" 8000`,
	}
	if strings.Join(srv.calls, "|") != strings.Join(want, "|") {
		t.Errorf("calls = %q, want %q", srv.calls, want)
	}
}

func TestDownloadFallsBackToFolderCover(t *testing.T) {
	data := pattern(300)
	srv := &fakeServer{pictures: map[string][]byte{"readpicture": nil, "albumart": data}, chunk: 256}
	cache := newTestCache(t)

	path, err := cache.Download(context.Background(), srv, "x.mp3", "3")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	got, _ := os.ReadFile(path)
	if !bytes.Equal(got, data) {
		t.Errorf("got %d bytes, want %d", len(got), len(data))
	}
	if len(srv.calls) != 3 || !strings.HasPrefix(srv.calls[0], "readpicture") {
		t.Errorf("calls = %q", srv.calls)
	}
}

func TestDownloadNoArt(t *testing.T) {
	srv := &fakeServer{pictures: map[string][]byte{}}
	cache := newTestCache(t)

	stale := cache.Path("9")
	if err := os.WriteFile(stale, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := cache.Download(context.Background(), srv, "none.ogg", "9")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := os.Stat(stale); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("stale file still present: %v", err)
	}
}

func TestDownloadConnectionFailure(t *testing.T) {
	srv := &fakeServer{
		pictures: map[string][]byte{"readpicture": pattern(5000)},
		chunk:    2000,
		failAt:   `readpicture "f.flac" 2000`,
	}
	cache := newTestCache(t)

	_, err := cache.Download(context.Background(), srv, "f.flac", "1")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want download error", err)
	}
	if _, err := os.Stat(cache.Path("1")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("partial file left behind")
	}
}

// blockingStrategy fails after turning the art path into a non-empty
// directory, so the cleanup cannot remove it.
type blockingStrategy struct {
	path string
}

func (blockingStrategy) Name() string { return "blocking" }

func (b blockingStrategy) Fetch(_ context.Context, _ Commander, _ string, _ io.Writer) (int64, error) {
	if err := os.Remove(b.path); err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Join(b.path, "keep"), 0o755); err != nil {
		return 0, err
	}
	return 0, errors.New("stream broken")
}

func TestDownloadLogsFailedCleanup(t *testing.T) {
	dir := t.TempDir()
	var logs bytes.Buffer
	cache, err := NewCache(Options{
		Dir:        dir,
		Strategies: []Strategy{blockingStrategy{path: filepath.Join(dir, "7")}},
		Logger:     slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	})
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	_, err = cache.Download(context.Background(), &fakeServer{}, "f.flac", "7")
	if err == nil || !strings.Contains(err.Error(), "stream broken") {
		t.Fatalf("err = %v, want strategy error", err)
	}
	if !strings.Contains(logs.String(), "remove partial art failed") {
		t.Errorf("cleanup failure not logged:\n%s", logs.String())
	}
}

func TestDownloadEmptyID(t *testing.T) {
	cache := newTestCache(t)
	if _, err := cache.Download(context.Background(), &fakeServer{}, "x", ""); err == nil {
		t.Fatal("expected error for empty id")
	}
}

// id3WithPicture builds a minimal ID3v2.3 tag holding one APIC frame.
func id3WithPicture(pic []byte) []byte {
	var frame bytes.Buffer
	frame.WriteByte(0) // ISO-8859-1
	frame.WriteString("image/png\x00")
	frame.WriteByte(3) // front cover
	frame.WriteByte(0) // empty description
	frame.Write(pic)

	var body bytes.Buffer
	body.WriteString("APIC")
	binary.Write(&body, binary.BigEndian, uint32(frame.Len()))
	body.Write([]byte{0, 0})
	body.Write(frame.Bytes())

	size := body.Len()
	var out bytes.Buffer
	out.WriteString("ID3")
	out.Write([]byte{3, 0, 0})
	out.Write([]byte{
		byte(size >> 21 & 0x7f),
		byte(size >> 14 & 0x7f),
		byte(size >> 7 & 0x7f),
		byte(size & 0x7f),
	})
	out.Write(body.Bytes())
	return out.Bytes()
}

func TestLocalEmbedded(t *testing.T) {
	root := t.TempDir()
	pic := pattern(64)
	if err := os.MkdirAll(filepath.Join(root, "album"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "album", "song.mp3"), id3WithPicture(pic), 0o644); err != nil {
		t.Fatal(err)
	}

	srv := &fakeServer{pictures: map[string][]byte{}}
	cache := newTestCache(t, DefaultStrategies(root)...)
	path, err := cache.Download(context.Background(), srv, "album/song.mp3", "12")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	got, _ := os.ReadFile(path)
	if !bytes.Equal(got, pic) {
		t.Errorf("got %d bytes, want %d", len(got), len(pic))
	}
}

func TestLocalEmbeddedRejects(t *testing.T) {
	root := t.TempDir()
	s := LocalEmbedded{Root: root}
	for _, uri := range []string{"http://radio/stream", "../outside.mp3", "missing.mp3"} {
		if _, err := s.Fetch(context.Background(), nil, uri, &bytes.Buffer{}); !errors.Is(err, ErrNotFound) {
			t.Errorf("Fetch(%q) = %v, want ErrNotFound", uri, err)
		}
	}
}

func TestDefaultDir(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	dir := DefaultDir()
	if !strings.HasSuffix(dir, filepath.Join("mpdbridge", "album_art")) {
		t.Errorf("DefaultDir() = %q", dir)
	}
}

func TestRenderFile(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "cover.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	f.Close()

	out, err := RenderFile(path, 4, 2)
	if err != nil {
		t.Fatalf("RenderFile: %v", err)
	}
	lines := strings.Split(out, "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if strings.Count(lines[0], "▀") != 4 {
		t.Errorf("row has %d cells, want 4", strings.Count(lines[0], "▀"))
	}
	if !strings.Contains(out, "38;5;196m") {
		t.Errorf("expected pure red palette index 196 in %q", out)
	}
}

func TestPalette256(t *testing.T) {
	tests := []struct {
		r, g, b uint8
		want    int
	}{
		{0, 0, 0, 16},
		{255, 255, 255, 231},
		{128, 128, 128, 244},
		{255, 0, 0, 196},
		{0, 0, 255, 21},
	}
	for _, tt := range tests {
		if got := palette256(tt.r, tt.g, tt.b); got != tt.want {
			t.Errorf("palette256(%d,%d,%d) = %d, want %d", tt.r, tt.g, tt.b, got, tt.want)
		}
	}
}
