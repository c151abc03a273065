package domain

import "github.com/google/uuid"

// Identity - аутентифицированный вызывающий. Выпуск токенов живет во внешнем
// сервисе, здесь токен только проверяется.
type Identity struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email,omitempty"`
	Username string    `json:"username,omitempty"`
}
