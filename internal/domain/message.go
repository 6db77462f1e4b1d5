package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageKind — тип координационного сообщения между executions.
type MessageKind string

const (
	// KindAlert — широковещательное оповещение (без адресата).
	KindAlert MessageKind = "ALERT"

	// KindQuery — точечный запрос от одного execution к другому.
	KindQuery MessageKind = "QUERY"

	// KindShare — точечная передача данных.
	KindShare MessageKind = "SHARE"
)

// Message — координационное сообщение, durably записываемое Coordinator'ом.
//
// Сообщение считается доставленным только после записи в журнал.
// ResolvedAt устанавливается не более одного раза и никогда не очищается.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID uuid.UUID `json:"id"`

	// Kind — тип сообщения.
	Kind MessageKind `json:"kind"`

	// From — execution-отправитель.
	From uuid.UUID `json:"from"`

	// To — адресат. Nil означает broadcast (только для ALERT).
	To *uuid.UUID `json:"to,omitempty"`

	// Payload — непрозрачный документ. Coordinator его не интерпретирует.
	Payload map[string]any `json:"payload,omitempty"`

	// CreatedAt — время записи в журнал.
	CreatedAt time.Time `json:"created_at"`

	// ResolvedAt — время разрешения. Nil для неразрешённых.
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// IsResolved возвращает true, если сообщение уже разрешено.
func (m *Message) IsResolved() bool {
	return m.ResolvedAt != nil
}

// IsBroadcast возвращает true для широковещательных сообщений.
func (m *Message) IsBroadcast() bool {
	return m.To == nil
}

// Concerns возвращает true, если execution — отправитель
// или адресованный получатель сообщения.
func (m *Message) Concerns(execID uuid.UUID) bool {
	if m.From == execID {
		return true
	}
	return m.To != nil && *m.To == execID
}
