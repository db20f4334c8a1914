package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"spoilshield/internal/daemon"
	"spoilshield/internal/logging"
	"spoilshield/internal/store"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Spoilshield", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve accepts RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("ipc server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed", logging.Error(err))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path), logging.Error(err))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.DatabasePath = status.DatabasePath
	resp.LockPath = status.LockPath
	resp.APIBind = status.APIBind
	resp.Phase = status.Phase
	resp.SessionID = status.SessionID
	resp.ShowTitle = status.ShowTitle
	resp.Season = status.Season
	resp.Episode = status.Episode
	resp.SessionCount = status.SessionCount
	return nil
}

func (s *service) SessionList(req SessionListRequest, resp *SessionListResponse) error {
	sessions, err := s.daemon.ListSessions(s.ctx)
	if err != nil {
		return err
	}
	activeID := s.daemon.Status(s.ctx).SessionID
	resp.Sessions = make([]Session, 0, len(sessions))
	for _, session := range sessions {
		if !session.Confirmed && !req.IncludeUnconfirmed {
			continue
		}
		resp.Sessions = append(resp.Sessions, convertSession(s.ctx, s.daemon, session, activeID))
	}
	return nil
}

func (s *service) SessionSwitch(req SessionSwitchRequest, resp *SessionSwitchResponse) error {
	if req.ID == "" {
		return errors.New("session id required")
	}
	session, err := s.daemon.SwitchSession(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Session = convertSession(s.ctx, s.daemon, session, session.ID)
	s.logger.Info("session switched via ipc", logging.String("session", session.ID))
	return nil
}

func (s *service) SessionDelete(req SessionDeleteRequest, resp *SessionDeleteResponse) error {
	if req.ID == "" {
		return errors.New("session id required")
	}
	if err := s.daemon.DeleteSession(s.ctx, req.ID); err != nil {
		return err
	}
	resp.Deleted = true
	s.logger.Info("session deleted via ipc", logging.String("session", req.ID))
	return nil
}

func (s *service) Redetect(_ RedetectRequest, resp *RedetectResponse) error {
	s.daemon.Redetect(s.ctx)
	resp.Requested = true
	return nil
}

func convertSession(ctx context.Context, d *daemon.Daemon, session *store.Session, activeID string) Session {
	count, _ := d.CountMessages(ctx, session.ID)
	return Session{
		ID:            session.ID,
		ShowID:        session.ShowID,
		ShowTitle:     session.ShowTitle,
		Platform:      session.Platform,
		Season:        session.Season,
		Episode:       session.Episode,
		Confirmed:     session.Confirmed,
		MessageCount:  count,
		LastMessageAt: session.LastMessageAt,
		Active:        session.ID == activeID,
	}
}
