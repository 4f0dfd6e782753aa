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
	"time"

	"scenegen/internal/daemon"
	"scenegen/internal/logging"
	"scenegen/internal/logs"
)

// ServiceName prefixes every RPC method.
const ServiceName = "Scenegen"

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

// NewServer configures the IPC server at the given socket path, replacing any
// stale socket file.
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
	if err := rpcServer.RegisterName(ServiceName, &service{daemon: d, logger: logger, ctx: ctx}); err != nil {
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

// Serve accepts RPC connections in the background until Close.
func (s *Server) Serve() {
	s.logger.Debug("ipc server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "CLI commands may fail to reach the daemon"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon"),
				)
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

// Close stops accepting connections and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "a stale socket may confuse the next start"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"),
		)
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Status(_ Empty, resp *StatusResponse) error {
	*resp = s.daemon.Status(s.ctx)
	return nil
}

func (s *service) Start(_ Empty, resp *StartResponse) error {
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.logger.Info("daemon started via IPC", logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ Empty, resp *StopResponse) error {
	s.daemon.Stop()
	resp.Stopped = true
	s.logger.Info("daemon stopped via IPC", logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) SceneStart(req SceneRequest, resp *StartSceneResponse) error {
	out, err := s.daemon.Service().StartScene(s.ctx, req.SceneID)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

func (s *service) SceneStatus(req SceneRequest, resp *SceneStatus) error {
	out, err := s.daemon.Service().SceneStatus(s.ctx, req.SceneID)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

func (s *service) ShotRetry(req ShotRequest, resp *RetryShotResponse) error {
	out, err := s.daemon.Service().RetryShot(s.ctx, req.SceneID, req.ShotID)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

func (s *service) SceneAssemble(req SceneRequest, resp *AssembleResponse) error {
	out, err := s.daemon.Service().AssembleScene(s.ctx, req.SceneID)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

func (s *service) SceneCancel(req SceneRequest, resp *CancelResponse) error {
	if err := s.daemon.Service().CancelScene(req.SceneID); err != nil {
		return err
	}
	resp.SceneID = req.SceneID
	resp.Canceled = true
	return nil
}

func (s *service) SceneImport(req ImportRequest, resp *ImportSceneResponse) error {
	out, err := s.daemon.Service().ImportScene(s.ctx, req.ManifestPath)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

func (s *service) SceneList(req SceneListRequest, resp *SceneListResponse) error {
	out, err := s.daemon.Service().ListScenes(s.ctx, req.Statuses...)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

func (s *service) ShotAttempts(req ShotRequest, resp *AttemptListResponse) error {
	out, err := s.daemon.Service().ShotAttempts(s.ctx, req.SceneID, req.ShotID)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

func (s *service) JobStatus(req JobRequest, resp *Job) error {
	out, err := s.daemon.Service().Job(req.JobID)
	if err != nil {
		return err
	}
	*resp = out
	return nil
}

func (s *service) JobList(_ Empty, resp *JobListResponse) error {
	*resp = s.daemon.Service().Jobs()
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	path := s.daemon.LogPath()
	if path == "" {
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	ctx := s.ctx
	if req.Follow {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, path, logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
		Match:  req.Match,
	})
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func (s *service) TestNotification(_ Empty, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
