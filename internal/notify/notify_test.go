package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/tunez/mpdbridge/internal/events"
	"github.com/tunez/mpdbridge/internal/player"
)

func TestFormat(t *testing.T) {
	playing := player.Playback{State: player.Playing}
	tests := []struct {
		name     string
		st       *player.Status
		wantSum  string
		wantBody string
		wantIcon string
	}{
		{
			name:     "stopped",
			st:       &player.Status{},
			wantSum:  "Stopped",
			wantBody: "Playback stopped",
			wantIcon: "default.svg",
		},
		{
			name: "artist and title",
			st: &player.Status{
				Playback: playing,
				Metadata: map[string][]string{"Artist": {"A", "B"}, "Title": {"T"}, "file": {"x.flac"}},
				AlbumArt: "/run/art/3",
			},
			wantSum:  "Playing",
			wantBody: "A - T",
			wantIcon: "/run/art/3",
		},
		{
			name: "file fallback",
			st: &player.Status{
				Playback: player.Playback{State: player.Paused},
				Metadata: map[string][]string{"Title": {"T"}, "file": {"x.flac"}},
			},
			wantSum:  "Paused",
			wantBody: "x.flac",
			wantIcon: "default.svg",
		},
		{
			name:     "no file",
			st:       &player.Status{Playback: playing, Metadata: map[string][]string{}},
			wantSum:  "Playing",
			wantBody: "Unknown",
			wantIcon: "default.svg",
		},
		{
			name:     "no metadata",
			st:       &player.Status{Playback: playing},
			wantSum:  "Playing",
			wantBody: "Unknown Song - Unknown Artist",
			wantIcon: "default.svg",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := Format(tt.st, "default.svg")
			if n.Summary != tt.wantSum || n.Body != tt.wantBody || n.Icon != tt.wantIcon {
				t.Errorf("Format() = %+v", n)
			}
		})
	}
}

type fakeSource struct {
	bus *events.Bus
	st  *player.Status
}

func (f *fakeSource) Status() *player.Status            { return f.st }
func (f *fakeSource) Subscribe() <-chan events.Kind     { return f.bus.Subscribe() }
func (f *fakeSource) Unsubscribe(ch <-chan events.Kind) { f.bus.Unsubscribe(ch) }

type recorder struct {
	mu   sync.Mutex
	sent []Notification
	fail int
	got  chan struct{}
}

func (r *recorder) Send(n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	defer func() { r.got <- struct{}{} }()
	if r.fail > 0 {
		r.fail--
		return errors.New("dbus unavailable")
	}
	r.sent = append(r.sent, n)
	return nil
}

func waitSend(t *testing.T, r *recorder) {
	t.Helper()
	select {
	case <-r.got:
	case <-time.After(2 * time.Second):
		t.Fatal("no notification sent")
	}
}

func startRelay(t *testing.T, src *fakeSource, rec *recorder) (cancel func(), done chan error) {
	t.Helper()
	relay := New(src, Options{
		Sender:        rec,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		RetryInterval: time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done = make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()
	for src.bus.Subscribers() == 0 {
		time.Sleep(time.Millisecond)
	}
	return cancel, done
}

func TestRelaySendsOnSongChange(t *testing.T) {
	src := &fakeSource{
		bus: events.NewBus(8),
		st:  &player.Status{Playback: player.Playback{State: player.Playing}, Metadata: map[string][]string{"Artist": {"A"}, "Title": {"T"}}},
	}
	rec := &recorder{got: make(chan struct{}, 8)}
	cancel, done := startRelay(t, src, rec)

	src.bus.Publish(events.Volume)
	src.bus.Publish(events.Song)
	waitSend(t, rec)

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.sent) != 1 {
		t.Fatalf("sent %d notifications, want 1", len(rec.sent))
	}
	if n := rec.sent[0]; n.Body != "A - T" || n.AppName != DefaultAppName || n.Icon != DefaultIcon {
		t.Errorf("notification = %+v", n)
	}
}

func TestRelayRecoversFromSendFailure(t *testing.T) {
	src := &fakeSource{bus: events.NewBus(8), st: &player.Status{}}
	rec := &recorder{fail: 1, got: make(chan struct{}, 8)}
	cancel, done := startRelay(t, src, rec)
	defer func() { cancel(); <-done }()

	src.bus.Publish(events.Playback)
	waitSend(t, rec)
	src.bus.Publish(events.Playback)
	waitSend(t, rec)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.sent) != 1 || rec.sent[0].Body != "Playback stopped" {
		t.Errorf("sent = %+v", rec.sent)
	}
}

func TestRelayStopsWhenFeedCloses(t *testing.T) {
	src := &fakeSource{bus: events.NewBus(8), st: &player.Status{}}
	rec := &recorder{got: make(chan struct{}, 8)}
	_, done := startRelay(t, src, rec)

	src.bus.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}
