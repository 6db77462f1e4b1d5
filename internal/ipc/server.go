package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Overseer/internal/telemetry"
)

// readTimeout — максимальное время ожидания запроса на одном соединении.
const readTimeout = 10 * time.Second

// ServerConfig — конфигурация IPC-сервера.
type ServerConfig struct {
	// SocketPath — путь к unix domain socket.
	SocketPath string
	// Version отдаётся в ответе pong.
	Version string
	// OnPending вызывается при execution_pending.
	OnPending func(id uuid.UUID)
	// OnResumed вызывается при execution_resumed; ошибка
	// транслируется клиенту как ответ kind=error.
	OnResumed func(id uuid.UUID) error
	// OnShutdown вызывается при shutdown, после отправки ok.
	OnShutdown func()
	// Logger — логгер (по умолчанию slog.Default()).
	Logger *slog.Logger
}

// Server — серверная сторона IPC-протокола.
type Server struct {
	cfg    ServerConfig
	logger *slog.Logger

	ln net.Listener
	wg sync.WaitGroup
}

// NewServer создаёт сервер. Слушатель открывается в Start.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		logger: cfg.Logger.With(slog.String("component", "ipc")),
	}
}

// Start открывает сокет и запускает цикл приёма соединений.
// Устаревший файл сокета от предыдущего запуска удаляется.
func (s *Server) Start(ctx context.Context) error {
	if err := os.Remove(s.cfg.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.SocketPath, err)
	}
	s.ln = ln

	s.logger.Info("IPC-сервер запущен", slog.String("socket", s.cfg.SocketPath))

	s.wg.Add(1)
	go s.acceptLoop(ctx)
	return nil
}

// Stop закрывает слушатель и дожидается завершения активных соединений.
func (s *Server) Stop() {
	if s.ln != nil {
		_ = s.ln.Close()
	}
	s.wg.Wait()
	_ = os.Remove(s.cfg.SocketPath)
	s.logger.Info("IPC-сервер остановлен")
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("ошибка приёма соединения", slog.String("error", err.Error()))
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// handleConn обслуживает соединение: по одному запросу на строку,
// до EOF или первой ошибки. Строки длиннее MaxMessageSize отклоняются.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), MaxMessageSize)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		if !scanner.Scan() {
			if err := scanner.Err(); errors.Is(err, bufio.ErrTooLong) {
				s.respond(conn, Response{Kind: RespError, Message: ErrMessageTooLarge.Error()})
			}
			return
		}

		var req Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			s.respond(conn, Response{Kind: RespError, Message: "malformed request"})
			return
		}

		telemetry.IPCRequests.WithLabelValues(string(req.Kind)).Inc()
		if s.handleRequest(conn, req) {
			return
		}
	}
}

// handleRequest обрабатывает один запрос. Возвращает true, если
// соединение нужно закрыть (shutdown).
func (s *Server) handleRequest(conn net.Conn, req Request) (last bool) {
	switch req.Kind {
	case ReqPing:
		s.respond(conn, Response{Kind: RespPong, Version: s.cfg.Version})

	case ReqExecutionPending:
		if req.ID == uuid.Nil {
			s.respond(conn, Response{Kind: RespError, Message: "execution_pending requires id"})
			return false
		}
		if s.cfg.OnPending != nil {
			s.cfg.OnPending(req.ID)
		}
		s.respond(conn, Response{Kind: RespOk})

	case ReqExecutionResumed:
		if req.ID == uuid.Nil {
			s.respond(conn, Response{Kind: RespError, Message: "execution_resumed requires id"})
			return false
		}
		if s.cfg.OnResumed != nil {
			if err := s.cfg.OnResumed(req.ID); err != nil {
				s.respond(conn, Response{Kind: RespError, Message: err.Error()})
				return false
			}
		}
		s.respond(conn, Response{Kind: RespOk})

	case ReqShutdown:
		s.respond(conn, Response{Kind: RespOk})
		if s.cfg.OnShutdown != nil {
			s.cfg.OnShutdown()
		}
		return true

	default:
		s.respond(conn, Response{Kind: RespError, Message: fmt.Sprintf("unknown request kind %q", req.Kind)})
	}
	return false
}

func (s *Server) respond(conn net.Conn, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("не удалось сериализовать ответ", slog.String("error", err.Error()))
		return
	}
	data = append(data, '\n')
	_ = conn.SetWriteDeadline(time.Now().Add(readTimeout))
	if _, err := conn.Write(data); err != nil {
		s.logger.Warn("не удалось отправить ответ", slog.String("error", err.Error()))
	}
}
