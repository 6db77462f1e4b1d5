package ipc

import "github.com/google/uuid"

// MaxMessageSize — жёсткий максимум размера одного сообщения
// (запроса или ответа), включая завершающий перевод строки.
const MaxMessageSize = 64 * 1024

// RequestKind — тип запроса к демону.
type RequestKind string

const (
	// ReqExecutionPending — новая запись готова к планированию.
	ReqExecutionPending RequestKind = "execution_pending"
	// ReqExecutionResumed — приостановленную запись нужно возобновить.
	ReqExecutionResumed RequestKind = "execution_resumed"
	// ReqPing — проверка живости демона.
	ReqPing RequestKind = "ping"
	// ReqShutdown — запрос на мягкую остановку демона.
	ReqShutdown RequestKind = "shutdown"
)

// Request — запрос клиента, одна строка JSON.
type Request struct {
	Kind RequestKind `json:"kind"`
	// ID — идентификатор записи для execution_pending и
	// execution_resumed; для остальных видов не используется.
	ID uuid.UUID `json:"id,omitempty"`
}

// ResponseKind — тип ответа демона.
type ResponseKind string

const (
	RespOk    ResponseKind = "ok"
	RespPong  ResponseKind = "pong"
	RespError ResponseKind = "error"
)

// Response — ответ демона, одна строка JSON.
type Response struct {
	Kind ResponseKind `json:"kind"`
	// Version заполняется в ответе pong.
	Version string `json:"version,omitempty"`
	// Message заполняется в ответе error.
	Message string `json:"message,omitempty"`
}
