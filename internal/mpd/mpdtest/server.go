// Package mpdtest provides an in-process MPD server for tests.
package mpdtest

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
)

// Greeting is the banner sent to every new connection.
const Greeting = "OK MPD 0.23.5\n"

// Server is a scripted MPD server listening on a loopback port.
//
// Replies are registered per exact command line. Unregistered commands get
// an "unknown command" ACK, except ping which always succeeds. idle commands
// block until Notify is called or the server is closed.
type Server struct {
	Addr string

	ln   net.Listener
	idle chan []string
	done chan struct{}
	wg   sync.WaitGroup

	mu       sync.Mutex
	replies  map[string][]string
	drops    map[string]int
	commands []string
	accepted int
	conns    map[net.Conn]struct{}
	closed   bool
}

// NewServer starts a server and registers its shutdown with t.Cleanup.
func NewServer(t testing.TB) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &Server{
		Addr:    ln.Addr().String(),
		ln:      ln,
		idle:    make(chan []string),
		done:    make(chan struct{}),
		replies: make(map[string][]string),
		drops:   make(map[string]int),
		conns:   make(map[net.Conn]struct{}),
	}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.Close)
	return s
}

// Handle sets the raw reply for cmd. The reply must include the trailing
// OK or ACK line. Replies queued with Handle are used in order; the last one
// is repeated.
func (s *Server) Handle(cmd string, replies ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[cmd] = replies
}

// Drop makes the server close the connection instead of answering the next
// n occurrences of cmd.
func (s *Server) Drop(cmd string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drops[cmd] = n
}

// Notify wakes one pending idle command with the given subsystems.
func (s *Server) Notify(subsystems ...string) {
	select {
	case s.idle <- subsystems:
	case <-s.done:
	}
}

// Commands returns every command received so far, in order.
func (s *Server) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Count returns how many times cmd was received.
func (s *Server) Count(cmd string) int {
	n := 0
	for _, c := range s.Commands() {
		if c == cmd {
			n++
		}
	}
	return n
}

// Accepted returns the number of connections accepted so far.
func (s *Server) Accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accepted
}

// Close stops the listener and closes every open connection.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.ln.Close()
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.accepted++
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		s.wg.Add(1)
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	if _, err := conn.Write([]byte(Greeting)); err != nil {
		return
	}
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimSuffix(line, "\n")
		reply, ok := s.reply(cmd)
		if !ok {
			return
		}
		if strings.HasPrefix(cmd, "idle") {
			select {
			case subs := <-s.idle:
				var b strings.Builder
				for _, sub := range subs {
					fmt.Fprintf(&b, "changed: %s\n", sub)
				}
				b.WriteString("OK\n")
				reply = b.String()
			case <-s.done:
				return
			}
		}
		if _, err := conn.Write([]byte(reply)); err != nil {
			return
		}
	}
}

// reply records cmd and picks the scripted answer. ok is false when the
// connection should be dropped.
func (s *Server) reply(cmd string) (reply string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, cmd)
	if n := s.drops[cmd]; n > 0 {
		s.drops[cmd] = n - 1
		return "", false
	}
	if queued := s.replies[cmd]; len(queued) > 0 {
		reply = queued[0]
		if len(queued) > 1 {
			s.replies[cmd] = queued[1:]
		}
		return reply, true
	}
	if cmd == "ping" || strings.HasPrefix(cmd, "idle") {
		return "OK\n", true
	}
	name, _, _ := strings.Cut(cmd, " ")
	return fmt.Sprintf("ACK [5@0] {} unknown command \"%s\"\n", name), true
}
