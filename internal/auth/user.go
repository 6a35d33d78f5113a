// Package auth отвечает за вход операторов в административный API:
// хранение учётных записей, bcrypt-пароли и JWT-токены.
package auth

import "time"

// User - учётная запись оператора
type User struct {
	ID           uint64    // Неизменяемый идентификатор
	Username     string    // Уникальное имя (без учёта регистра)
	PasswordHash string    // bcrypt-хеш пароля
	CreatedAt    time.Time // Время создания
	LastLogin    time.Time // Последний успешный вход
	IsAdmin      bool      // Право на сохранение, загрузку и сброс мира
}
