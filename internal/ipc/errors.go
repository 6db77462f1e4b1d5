package ipc

import "errors"

var (
	// ErrUnreachable — демон недоступен (сокет не существует
	// или соединение отклонено).
	ErrUnreachable = errors.New("ipc: daemon unreachable")

	// ErrTimeout — операция не уложилась в таймаут.
	ErrTimeout = errors.New("ipc: timeout")

	// ErrMessageTooLarge — сообщение превышает MaxMessageSize.
	ErrMessageTooLarge = errors.New("ipc: message too large")

	// ErrMalformedResponse — ответ демона не удалось разобрать.
	ErrMalformedResponse = errors.New("ipc: malformed response")

	// ErrDaemon — демон вернул ответ kind=error.
	ErrDaemon = errors.New("ipc: daemon error")
)
