package ipc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// defaultTimeout — таймаут вызова по умолчанию.
const defaultTimeout = 3 * time.Second

// DefaultSocketPath возвращает путь к сокету демона: переменная
// окружения OVERSEER_SOCKET, либо overseer.sock во временном каталоге.
func DefaultSocketPath() string {
	if path := os.Getenv("OVERSEER_SOCKET"); path != "" {
		return path
	}
	return filepath.Join(os.TempDir(), "overseer.sock")
}

// Client — клиентская сторона IPC-протокола.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient создаёт клиента. При timeout <= 0 используется
// значение по умолчанию.
func NewClient(socketPath string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{socketPath: socketPath, timeout: timeout}
}

// Call отправляет запрос и ждёт ответа. По ошибке различимы три
// случая: ErrUnreachable (демон недоступен), ErrDaemon (демон вернул
// kind=error) и ErrMalformedResponse (ответ не разобран).
func (c *Client) Call(req Request) (*Response, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	if len(data)+1 > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}

	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnreachable, c.socketPath)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(c.timeout))

	if _, err := conn.Write(append(data, '\n')); err != nil {
		return nil, c.wrapIO(err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), MaxMessageSize)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			if errors.Is(err, bufio.ErrTooLong) {
				return nil, ErrMessageTooLarge
			}
			return nil, c.wrapIO(err)
		}
		return nil, fmt.Errorf("%w: connection closed", ErrMalformedResponse)
	}

	var resp Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if resp.Kind == RespError {
		return &resp, fmt.Errorf("%w: %s", ErrDaemon, resp.Message)
	}
	return &resp, nil
}

// Ping проверяет живость демона и возвращает его версию.
func (c *Client) Ping() (string, error) {
	resp, err := c.Call(Request{Kind: ReqPing})
	if err != nil {
		return "", err
	}
	if resp.Kind != RespPong {
		return "", fmt.Errorf("%w: expected pong, got %q", ErrMalformedResponse, resp.Kind)
	}
	return resp.Version, nil
}

// NotifyPending — fire-and-forget уведомление о новой записи.
// Недоступность демона не считается ошибкой: планировщик подберёт
// запись при очередном опросе.
func (c *Client) NotifyPending(id uuid.UUID) error {
	return c.notify(Request{Kind: ReqExecutionPending, ID: id})
}

// NotifyResumed — fire-and-forget уведомление о возобновлении.
func (c *Client) NotifyResumed(id uuid.UUID) error {
	return c.notify(Request{Kind: ReqExecutionResumed, ID: id})
}

// Shutdown просит демона мягко остановиться.
func (c *Client) Shutdown() error {
	_, err := c.Call(Request{Kind: ReqShutdown})
	return err
}

func (c *Client) notify(req Request) error {
	_, err := c.Call(req)
	if errors.Is(err, ErrUnreachable) {
		return nil
	}
	return err
}

func (c *Client) wrapIO(err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
