package auth

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryUserRepo - потокобезопасное хранилище операторов в памяти.
// Идентификаторы выдаются по порядку, начиная с 1.
type MemoryUserRepo struct {
	mu     sync.RWMutex
	users  map[string]*User // ключ - имя в нижнем регистре
	nextID uint64
}

var _ UserRepository = (*MemoryUserRepo)(nil)

// NewMemoryUserRepo создаёт пустое хранилище
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{
		users:  make(map[string]*User),
		nextID: 1,
	}
}

// NewAdminRepo создаёт хранилище с единственным администратором.
// Если hash пуст, генерируется случайный пароль и возвращается вторым значением,
// чтобы вызывающий код мог показать его оператору.
func NewAdminRepo(username, hash string) (*MemoryUserRepo, string, error) {
	repo := NewMemoryUserRepo()

	var generated string
	if hash == "" {
		password, err := GenerateRandomPassword()
		if err != nil {
			return nil, "", err
		}
		hash, err = HashPassword(password)
		if err != nil {
			return nil, "", err
		}
		generated = password
	}

	if _, err := repo.CreateUser(username, hash, true); err != nil {
		return nil, "", fmt.Errorf("не удалось создать администратора: %w", err)
	}
	return repo, generated, nil
}

// GetUserByUsername возвращает копию пользователя
func (r *MemoryUserRepo) GetUserByUsername(username string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[normalize(username)]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := *user
	return &u, nil
}

// CreateUser добавляет пользователя, если имя свободно
func (r *MemoryUserRepo) CreateUser(username string, passwordHash string, isAdmin bool) (*User, error) {
	key := normalize(username)
	if key == "" {
		return nil, fmt.Errorf("пустое имя пользователя")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.users[key]; exists {
		return nil, ErrUserExists
	}

	user := &User{
		ID:           r.nextID,
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
		IsAdmin:      isAdmin,
	}
	r.nextID++
	r.users[key] = user

	u := *user
	return &u, nil
}

// ValidateCredentials проверяет пароль. Для неизвестного имени и неверного
// пароля возвращается одна и та же ошибка.
func (r *MemoryUserRepo) ValidateCredentials(username, password string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[normalize(username)]
	if !ok || !CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	user.LastLogin = time.Now()

	u := *user
	return &u, nil
}

func normalize(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
