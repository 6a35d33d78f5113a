package auth

import "errors"

// UserRepository хранит учётные записи операторов
type UserRepository interface {
	// GetUserByUsername ищет пользователя без учёта регистра.
	// Если пользователя нет, возвращает ErrUserNotFound.
	GetUserByUsername(username string) (*User, error)

	// CreateUser добавляет пользователя с уже захешированным паролем.
	// При совпадении имени возвращает ErrUserExists.
	CreateUser(username string, passwordHash string, isAdmin bool) (*User, error)

	// ValidateCredentials проверяет имя и пароль и отмечает время входа
	ValidateCredentials(username, password string) (*User, error)
}

// Ошибки репозитория
var (
	ErrUserNotFound       = errors.New("пользователь не найден")
	ErrUserExists         = errors.New("пользователь уже существует")
	ErrInvalidCredentials = errors.New("неверное имя пользователя или пароль")
)
