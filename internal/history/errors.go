package history

import "errors"

// Общие ошибки репозитория истории запусков.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")
)
