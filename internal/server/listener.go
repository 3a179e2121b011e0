package server

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/eternalApril/moonstone/internal/dberr"
	"github.com/eternalApril/moonstone/internal/resp"
)

// ListenerConfig holds the per-connection limits
type ListenerConfig struct {
	MaxConnections int           // 0 = unlimited
	MaxPacket      int           // bytes, bounds a single command
	RateLimit      float64       // commands per second per connection, 0 = unlimited
	IdleTimeout    time.Duration // 0 = never
}

// acceptBackoff pauses the accept loop after a failed Accept, e.g. when out of file descriptors
const acceptBackoff = 10 * time.Millisecond

var errTooManyClients = resp.MakeError("ERR max number of clients reached")

// Server accepts client connections and runs one read-dispatch-write loop per connection
type Server struct {
	engine *Engine
	cfg    ListenerConfig
	logger *zap.Logger

	active atomic.Int64
	wg     sync.WaitGroup
}

func NewServer(engine *Engine, cfg ListenerConfig, logger *zap.Logger) *Server {
	return &Server{
		engine: engine,
		cfg:    cfg,
		logger: logger,
	}
}

// Serve accepts connections until ctx is cancelled or ln fails. Open connections are
// closed when ctx is cancelled; Wait blocks until their handlers return
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		ln.Close() //nolint:errcheck
	})
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			s.logger.Error("Accept error", zap.Error(err))
			time.Sleep(acceptBackoff)
			continue
		}

		if limit := s.cfg.MaxConnections; limit > 0 && s.active.Load() >= int64(limit) {
			s.reject(conn)
			continue
		}

		s.active.Add(1)
		s.wg.Go(func() {
			defer s.active.Add(-1)
			s.handleConnection(ctx, conn)
		})
	}
}

// Wait blocks until every connection handler has returned or timeout elapses.
// It reports whether all handlers finished
func (s *Server) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Active returns the number of open connections
func (s *Server) Active() int64 {
	return s.active.Load()
}

func (s *Server) reject(conn net.Conn) {
	s.engine.metrics.ConnRejected()
	if s.logger.Core().Enabled(zap.DebugLevel) {
		s.logger.Debug("connection rejected", zap.String("addr", conn.RemoteAddr().String()))
	}

	enc := resp.NewEncoder(conn)
	conn.SetWriteDeadline(time.Now().Add(time.Second)) //nolint:errcheck
	if enc.Write(errTooManyClients) == nil {
		enc.Flush() //nolint:errcheck
	}
	conn.Close() //nolint:errcheck
}

// handleConnection handles a connection for a single user
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	log := s.logger
	if log.Core().Enabled(zap.DebugLevel) {
		log.Debug("client connected", zap.String("addr", conn.RemoteAddr().String()))
	}

	peer := NewPeer(conn, s.cfg.MaxPacket)
	s.engine.ClientConnected()
	stop := context.AfterFunc(ctx, func() {
		peer.Close() //nolint:errcheck
	})
	defer func() {
		stop()
		peer.Close() //nolint:errcheck
		s.engine.ClientDisconnected()
		// log connection close
		if log.Core().Enabled(zap.DebugLevel) {
			log.Debug("client disconnected", zap.String("addr", conn.RemoteAddr().String()))
		}
	}()

	var limiter *rate.Limiter
	if s.cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.RateLimit), max(1, int(s.cfg.RateLimit)))
	}

	for {
		if s.cfg.IdleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout)) //nolint:errcheck
		}

		cmd, err := peer.ReadCommand()
		if err != nil {
			s.readFailed(peer, err)
			return
		}

		if len(cmd) == 0 {
			continue
		}

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
		}

		result := s.engine.Execute(peer.Session(), cmd)

		if err = peer.Send(result); err != nil {
			log.Error("error writing response", zap.Error(err))
			return
		}

		if peer.Session().Closing() {
			peer.Flush() //nolint:errcheck
			return
		}

		if peer.InputBuffered() == 0 {
			if err := peer.Flush(); err != nil {
				return
			}
		}
	}
}

// readFailed answers protocol violations before the connection is dropped
func (s *Server) readFailed(peer *Peer, err error) {
	switch {
	case dberr.KindOf(err) == dberr.Protocol:
		if s.logger.Core().Enabled(zap.DebugLevel) {
			s.logger.Debug("protocol error", zap.Error(err))
		}
		if peer.Send(resp.MakeErr(err)) == nil {
			peer.Flush() //nolint:errcheck
		}
	case errors.Is(err, os.ErrDeadlineExceeded):
		if s.logger.Core().Enabled(zap.DebugLevel) {
			s.logger.Debug("idle timeout", zap.Duration("timeout", s.cfg.IdleTimeout))
		}
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
	default:
		s.logger.Warn("read command failed", zap.Error(err))
	}
}
