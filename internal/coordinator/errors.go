package coordinator

import "errors"

// Ошибки координатора.
var (
	// ErrUnknownMessage — сообщение с таким id отсутствует в журнале.
	ErrUnknownMessage = errors.New("unknown message")

	// ErrMissingTarget — точечному сообщению (QUERY/SHARE) нужен адресат.
	ErrMissingTarget = errors.New("query and share messages require a target")
)
