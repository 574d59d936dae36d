// Package relay exposes the cached player state over HTTP and a websocket
// event stream.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/tunez/mpdbridge/internal/events"
	"github.com/tunez/mpdbridge/internal/player"
	"github.com/tunez/mpdbridge/internal/protocol"
)

// Backend is the state and command surface the relay serves.
type Backend interface {
	Status() *player.Status
	Subscribe() <-chan events.Kind
	Unsubscribe(ch <-chan events.Kind)
	Command(ctx context.Context, cmd string) (*protocol.Response, error)
}

// Options configures a Server.
type Options struct {
	Logger *slog.Logger
	// OriginPatterns lists extra origins allowed to open the websocket.
	OriginPatterns []string
}

// Server routes HTTP requests to a Backend.
type Server struct {
	backend Backend
	opts    Options
	log     *slog.Logger
}

func NewServer(b Backend, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{backend: b, opts: opts, log: opts.Logger.With(slog.String("component", "relay"))}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/status", s.getStatus())
	r.Get("/art", s.getArt())
	r.Get("/events", s.streamEvents())
	r.Post("/command", s.postCommand())
	r.Post("/playback/{action}", s.postPlayback())
	r.Put("/volume", s.putVolume())
	r.Put("/loop", s.putLoop())
	r.Put("/shuffle", s.putShuffle())
	return r
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("relay listening", slog.String("addr", addr))

	select {
	case err := <-errc:
		return fmt.Errorf("relay listen: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("relay shutdown: %w", err)
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("took", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) getStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, NewStatusView(s.backend.Status()))
	}
}

func (s *Server) getArt() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := s.backend.Status().AlbumArt
		if path == "" {
			http.Error(w, "no album art", http.StatusNotFound)
			return
		}
		http.ServeFile(w, r, path)
	}
}

func (s *Server) streamEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: s.opts.OriginPatterns,
		})
		if err != nil {
			s.log.Warn("websocket accept failed", slog.Any("err", err))
			return
		}
		defer conn.CloseNow()

		session := uuid.NewString()
		log := s.log.With(slog.String("session", session))
		log.Info("event stream opened")

		ch := s.backend.Subscribe()
		defer s.backend.Unsubscribe(ch)

		// Clients only listen; CloseRead notices when they hang up.
		ctx := conn.CloseRead(r.Context())
		send := func(event string) error {
			frame := EventFrame{Session: session, Event: event, Status: NewStatusView(s.backend.Status())}
			wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return wsjson.Write(wctx, conn, frame)
		}

		if err := send("Snapshot"); err != nil {
			log.Debug("event stream closed", slog.Any("err", err))
			return
		}
		for {
			select {
			case <-ctx.Done():
				log.Info("event stream closed")
				conn.Close(websocket.StatusNormalClosure, "")
				return
			case k, ok := <-ch:
				if !ok {
					conn.Close(websocket.StatusGoingAway, "shutting down")
					return
				}
				if err := send(k.String()); err != nil {
					log.Debug("event stream closed", slog.Any("err", err))
					return
				}
			}
		}
	}
}

type commandRequest struct {
	Command string `json:"command"`
}

func (s *Server) postCommand() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req commandRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Command == "" {
			writeJSON(w, http.StatusBadRequest, errorView{Error: "body must be {\"command\": \"...\"}"})
			return
		}
		resp, err := s.backend.Command(r.Context(), req.Command)
		if err != nil {
			s.writeCommandError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newCommandResult(resp))
	}
}

func (s *Server) postPlayback() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := s.backend.Status()
		var cmd string
		switch chi.URLParam(r, "action") {
		case "play":
			cmd = "play"
		case "pause":
			cmd = "pause 1"
		case "toggle":
			cmd = player.PauseCommand(st)
		case "stop":
			cmd = "stop"
		case "next":
			cmd = "next"
		case "previous":
			cmd = player.PreviousCommand(st)
		default:
			writeJSON(w, http.StatusNotFound, errorView{Error: "unknown action"})
			return
		}
		s.run(w, r, cmd)
	}
}

func (s *Server) putVolume() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		level, err := strconv.Atoi(r.URL.Query().Get("level"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorView{Error: "level must be an integer"})
			return
		}
		cmd, err := player.VolumeCommand(s.backend.Status(), level)
		if errors.Is(err, player.ErrNoMixer) {
			writeJSON(w, http.StatusConflict, errorView{Error: err.Error()})
			return
		}
		s.run(w, r, cmd)
	}
}

func (s *Server) putLoop() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mode := r.URL.Query().Get("mode")
		var target player.LoopMode
		switch mode {
		case "next":
			target = s.backend.Status().Loop.Next()
		case "None", "Track", "Playlist":
			target = player.ParseLoopMode(mode)
		default:
			writeJSON(w, http.StatusBadRequest, errorView{Error: "mode must be None, Track, Playlist or next"})
			return
		}
		s.run(w, r, target.Commands()...)
	}
}

func (s *Server) putShuffle() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		on, err := strconv.ParseBool(r.URL.Query().Get("on"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorView{Error: "on must be a boolean"})
			return
		}
		s.run(w, r, player.ShuffleCommand(on))
	}
}

// run sends cmds in order, stopping at the first failure.
func (s *Server) run(w http.ResponseWriter, r *http.Request, cmds ...string) {
	for _, cmd := range cmds {
		if _, err := s.backend.Command(r.Context(), cmd); err != nil {
			s.writeCommandError(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeCommandError(w http.ResponseWriter, err error) {
	var ack *protocol.AckError
	if errors.As(err, &ack) {
		writeJSON(w, http.StatusUnprocessableEntity, errorView{
			Error:   ack.Message,
			Code:    int(ack.Code),
			Command: ack.Command,
		})
		return
	}
	s.log.Warn("command failed", slog.Any("err", err))
	writeJSON(w, http.StatusBadGateway, errorView{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
