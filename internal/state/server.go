// Package state keeps a cached view of the MPD player and announces changes.
//
// A Server holds two connections. The query connection carries status
// refreshes, keepalive pings and caller commands, one at a time. The idle
// connection blocks in the idle command and wakes the refresh when the
// player, mixer or options change.
package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tunez/mpdbridge/internal/artwork"
	"github.com/tunez/mpdbridge/internal/events"
	"github.com/tunez/mpdbridge/internal/mpd"
	"github.com/tunez/mpdbridge/internal/player"
	"github.com/tunez/mpdbridge/internal/protocol"
)

const DefaultKeepaliveInterval = 55 * time.Second

// Options configures a Server.
type Options struct {
	Addr     string
	Password string
	Logger   *slog.Logger
	// Dial replaces the TCP dialer of both connections.
	Dial              func(ctx context.Context, network, addr string) (net.Conn, error)
	KeepaliveInterval time.Duration
	RetryInterval     time.Duration
	// EventBuffer is the queue length of each subscriber.
	EventBuffer int
	// Art stores cover art for the current song. Nil disables art lookups.
	Art *artwork.Cache
}

// Server is the cached player state plus its change feed.
type Server struct {
	opts  Options
	log   *slog.Logger
	query *mpd.Conn
	idle  *mpd.Conn
	bus   *events.Bus

	// queryMu serializes whole exchanges on the query connection.
	queryMu sync.Mutex
	// artRetry is set when the last art download lost the connection.
	// Guarded by queryMu.
	artRetry bool

	mu     sync.RWMutex
	status *player.Status
}

// New connects both connections and loads the initial status.
func New(ctx context.Context, opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.KeepaliveInterval <= 0 {
		opts.KeepaliveInterval = DefaultKeepaliveInterval
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = mpd.DefaultRetryInterval
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = events.DefaultCapacity
	}

	connOpts := func(role string) mpd.Options {
		return mpd.Options{
			Addr:          opts.Addr,
			Logger:        opts.Logger.With(slog.String("conn", role)),
			RetryInterval: opts.RetryInterval,
			Password:      opts.Password,
			Dial:          opts.Dial,
		}
	}
	query, err := mpd.Dial(ctx, connOpts("query"))
	if err != nil {
		return nil, fmt.Errorf("connect query: %w", err)
	}
	idle, err := mpd.Dial(ctx, connOpts("idle"))
	if err != nil {
		query.Close()
		return nil, fmt.Errorf("connect idle: %w", err)
	}

	s := &Server{
		opts:   opts,
		log:    opts.Logger,
		query:  query,
		idle:   idle,
		bus:    events.NewBus(opts.EventBuffer),
		status: player.Empty(),
	}
	if err := s.Refresh(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("initial status: %w", err)
	}
	return s, nil
}

// Run drives the keepalive and idle loops until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.keepalive(ctx) })
	g.Go(func() error { return s.watch(ctx) })
	return g.Wait()
}

// Status returns the current snapshot. It must not be modified.
func (s *Server) Status() *player.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Subscribe attaches a new change receiver.
func (s *Server) Subscribe() <-chan events.Kind { return s.bus.Subscribe() }

// Unsubscribe detaches and closes a receiver.
func (s *Server) Unsubscribe(ch <-chan events.Kind) { s.bus.Unsubscribe(ch) }

// Ready announces every event kind once so newly attached consumers load
// the full state.
func (s *Server) Ready() {
	for _, k := range events.Kinds {
		s.bus.Publish(k)
	}
}

// Command sends a raw command on the query connection. When the connection
// has failed it is re-established and the command is retried once.
func (s *Server) Command(ctx context.Context, cmd string) (*protocol.Response, error) {
	s.queryMu.Lock()
	defer s.queryMu.Unlock()

	resp, err := s.query.Command(ctx, cmd)
	if !mpd.IsConnError(err) {
		return resp, err
	}
	s.log.Warn("command failed, reconnecting", slog.String("cmd", cmd), slog.Any("err", err))
	if err := s.query.ReconnectUntilSuccess(ctx); err != nil {
		return nil, err
	}
	return s.query.Command(ctx, cmd)
}

// Close shuts down both connections and every subscriber.
func (s *Server) Close() error {
	s.bus.Close()
	return errors.Join(s.query.Close(), s.idle.Close())
}

func (s *Server) keepalive(ctx context.Context) error {
	t := time.NewTicker(s.opts.KeepaliveInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		s.queryMu.Lock()
		_, err := s.query.Command(ctx, "ping")
		if err != nil && ctx.Err() == nil {
			s.log.Warn("keepalive failed", slog.Any("err", err))
			s.query.ReconnectUntilSuccess(ctx)
		}
		s.queryMu.Unlock()
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (s *Server) watch(ctx context.Context) error {
	for {
		resp, err := s.idle.Command(ctx, mpd.IdleCommand)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			s.log.Warn("idle failed", slog.Any("err", err))
			if err := s.idle.ReconnectUntilSuccess(ctx); err != nil {
				return nil
			}
			continue
		}
		s.changed(ctx, resp.Values("changed"))
	}
}

// changed handles one idle wake-up. Several status subsystems changing at
// once cause a single refresh.
func (s *Server) changed(ctx context.Context, names []string) {
	refresh := false
	for _, name := range names {
		switch mpd.ParseSubsystem(name) {
		case mpd.SubsystemPlaylist:
			s.bus.Publish(events.Tracklist)
		case mpd.SubsystemPlayer, mpd.SubsystemMixer, mpd.SubsystemOptions:
			refresh = true
		case mpd.SubsystemStoredPlaylist:
		default:
			s.log.Debug("ignoring unknown subsystem", slog.String("subsystem", name))
		}
	}
	if !refresh {
		return
	}
	if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
		s.log.Error("status refresh failed", slog.Any("err", err))
	}
}

// Refresh reloads the status, swaps the snapshot and emits one event per
// changed field. On error the previous snapshot stays in place. When the
// query connection has failed it is re-established and the refresh is
// retried once.
func (s *Server) Refresh(ctx context.Context) error {
	s.queryMu.Lock()
	defer s.queryMu.Unlock()

	err := s.refresh(ctx)
	if !mpd.IsConnError(err) {
		return err
	}
	s.log.Warn("status refresh failed, reconnecting", slog.Any("err", err))
	if err := s.query.ReconnectUntilSuccess(ctx); err != nil {
		return err
	}
	err = s.refresh(ctx)
	if mpd.IsConnError(err) {
		// Leave a usable connection for the next caller.
		if rerr := s.query.ReconnectUntilSuccess(ctx); rerr != nil {
			return errors.Join(err, rerr)
		}
	}
	return err
}

func (s *Server) refresh(ctx context.Context) error {
	st, err := s.query.Command(ctx, "status")
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	var song *protocol.Response
	if st.Has("song") {
		song, err = s.query.Command(ctx, "currentsong")
		if err != nil {
			return fmt.Errorf("currentsong: %w", err)
		}
	}
	next, err := player.ParseStatus(st, song)
	if err != nil {
		return err
	}

	prev := s.Status()
	changes := diff(prev, next)

	var artErr error
	if next.Song != prev.Song || s.artRetry {
		next.AlbumArt, artErr = s.fetchArt(ctx, next, song)
		s.artRetry = mpd.IsConnError(artErr)
	} else {
		next.AlbumArt = prev.AlbumArt
	}

	s.mu.Lock()
	s.status = next
	s.mu.Unlock()

	if prev.AlbumArt != "" && prev.AlbumArt != next.AlbumArt {
		if err := artwork.Remove(prev.AlbumArt); err != nil {
			s.log.Warn("remove superseded art", slog.Any("err", err))
		}
	}
	for _, k := range changes {
		s.bus.Publish(k)
	}
	if mpd.IsConnError(artErr) {
		return fmt.Errorf("album art: %w", artErr)
	}
	return nil
}

// fetchArt downloads art for the new current song. Failures leave the art
// absent.
func (s *Server) fetchArt(ctx context.Context, st *player.Status, song *protocol.Response) (string, error) {
	if s.opts.Art == nil || !st.Song.Valid || song == nil {
		return "", nil
	}
	uri, ok := song.Get("file")
	if !ok {
		s.log.Debug("current song has no file, skipping art")
		return "", nil
	}
	id, ok := song.Get("Id")
	if !ok {
		id = strconv.FormatUint(st.Song.ID, 10)
	}
	path, err := s.opts.Art.Download(ctx, s.query, uri, id)
	switch {
	case errors.Is(err, artwork.ErrNotFound):
		s.log.Debug("no album art", slog.String("uri", uri))
		return "", nil
	case err != nil:
		s.log.Warn("album art download failed", slog.String("uri", uri), slog.Any("err", err))
		return "", err
	}
	return path, nil
}

// diff lists the events that describe the move from prev to next.
func diff(prev, next *player.Status) []events.Kind {
	var out []events.Kind
	if prev.Playback.State != next.Playback.State {
		out = append(out, events.Playback)
	}
	if prev.Loop != next.Loop {
		out = append(out, events.Loop)
	}
	if prev.Random != next.Random {
		out = append(out, events.Shuffle)
	}
	if prev.Song != next.Song {
		out = append(out, events.Song)
	}
	if prev.NextSong != next.NextSong {
		out = append(out, events.NextSong)
	}
	if prev.Volume != next.Volume {
		out = append(out, events.Volume)
	}
	return out
}
