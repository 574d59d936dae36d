// Package notify turns playback and song changes into desktop notifications.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gen2brain/beeep"

	"github.com/tunez/mpdbridge/internal/events"
	"github.com/tunez/mpdbridge/internal/player"
)

const (
	DefaultAppName = "Music Player Daemon"
	DefaultIcon    = "/usr/share/icons/hicolor/scalable/apps/mpd.svg"
)

// Notification is one desktop notification.
type Notification struct {
	AppName string
	Summary string
	Body    string
	Icon    string
}

// Sender delivers notifications to the desktop.
type Sender interface {
	Send(n Notification) error
}

// Desktop sends notifications through the platform notification service.
// Each Send shows a new notification; beeep cannot replace an earlier one.
type Desktop struct{}

func (Desktop) Send(n Notification) error {
	beeep.AppName = n.AppName
	if err := beeep.Notify(n.Summary, n.Body, n.Icon); err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	return nil
}

// Source is the state feed a Relay listens to.
type Source interface {
	Status() *player.Status
	Subscribe() <-chan events.Kind
	Unsubscribe(ch <-chan events.Kind)
}

// Options configures a Relay.
type Options struct {
	Sender        Sender
	Logger        *slog.Logger
	AppName       string
	DefaultIcon   string
	RetryInterval time.Duration
}

// Relay sends a notification whenever playback state or the current song
// changes.
type Relay struct {
	src  Source
	ch   <-chan events.Kind
	opts Options
	log  *slog.Logger
}

// New creates a Relay subscribed to src. The subscription is released when
// Run returns.
func New(src Source, opts Options) *Relay {
	if opts.Sender == nil {
		opts.Sender = Desktop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.AppName == "" {
		opts.AppName = DefaultAppName
	}
	if opts.DefaultIcon == "" {
		opts.DefaultIcon = DefaultIcon
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 5 * time.Second
	}
	return &Relay{
		src:  src,
		ch:   src.Subscribe(),
		opts: opts,
		log:  opts.Logger.With(slog.String("component", "notify")),
	}
}

// Run forwards events until ctx is cancelled or the feed is closed. A
// failed send is logged and the relay resumes after RetryInterval.
func (r *Relay) Run(ctx context.Context) error {
	ch := r.ch
	defer r.src.Unsubscribe(ch)

	for {
		var k events.Kind
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case k, ok = <-ch:
			if !ok {
				return nil
			}
		}
		if k != events.Playback && k != events.Song {
			continue
		}
		// A song change usually arrives together with a playback change.
		drainPending(ch)

		n := Format(r.src.Status(), r.opts.DefaultIcon)
		n.AppName = r.opts.AppName
		if err := r.opts.Sender.Send(n); err != nil {
			r.log.Error("notification relay failed, restarting", slog.Any("err", err))
			t := time.NewTimer(r.opts.RetryInterval)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil
			case <-t.C:
			}
			continue
		}
		r.log.Debug("notification sent", slog.String("summary", n.Summary), slog.String("body", n.Body))
	}
}

func drainPending(ch <-chan events.Kind) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// Format builds the notification for a status snapshot.
func Format(st *player.Status, defaultIcon string) Notification {
	n := Notification{
		Summary: st.Playback.State.String(),
		Icon:    defaultIcon,
	}
	if st.AlbumArt != "" {
		n.Icon = st.AlbumArt
	}
	switch {
	case st.Playback.State == player.Stopped:
		n.Body = "Playback stopped"
	case st.Metadata == nil:
		n.Body = "Unknown Song - Unknown Artist"
	case st.Tag("Artist") != "" && st.Tag("Title") != "":
		n.Body = st.Tag("Artist") + " - " + st.Tag("Title")
	case st.Tag("file") != "":
		n.Body = st.Tag("file")
	default:
		n.Body = "Unknown"
	}
	return n
}
