package auth

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"
)

func testUser() *User {
	return &User{
		ID:        42,
		Username:  "operator",
		IsAdmin:   true,
		CreatedAt: time.Now(),
	}
}

// TestGenerateToken проверяет формат и содержимое токена
func TestGenerateToken(t *testing.T) {
	issuer, err := NewTokenIssuer("", time.Minute)
	if err != nil {
		t.Fatalf("Ошибка создания выпускающего: %v", err)
	}

	token, expires, err := issuer.Generate(testUser())
	if err != nil {
		t.Fatalf("Ошибка генерации JWT: %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Errorf("Неверный формат JWT токена: %s", token)
	}
	if time.Until(expires) > time.Minute || time.Until(expires) <= 0 {
		t.Errorf("Неверный срок действия: %v", expires)
	}

	claims, err := issuer.Validate(token)
	if err != nil {
		t.Fatalf("Ошибка валидации JWT: %v", err)
	}
	if claims.UserID != 42 || claims.Username != "operator" || !claims.IsAdmin {
		t.Errorf("Неверные данные в токене: %+v", claims)
	}
	if claims.Issuer != Issuer {
		t.Errorf("Неверный издатель: %s", claims.Issuer)
	}
}

// TestValidateForeignToken - токен другого ключа не принимается
func TestValidateForeignToken(t *testing.T) {
	a, _ := NewTokenIssuer("", time.Minute)
	b, _ := NewTokenIssuer("", time.Minute)

	token, _, err := a.Generate(testUser())
	if err != nil {
		t.Fatalf("Ошибка генерации JWT: %v", err)
	}
	if _, err := b.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Ожидалась ErrInvalidToken, получено %v", err)
	}
}

// TestValidateExpiredToken - просроченный токен отклоняется
func TestValidateExpiredToken(t *testing.T) {
	issuer, _ := NewTokenIssuer("", time.Minute)
	issued := time.Now().Add(-time.Hour)
	issuer.now = func() time.Time { return issued }

	token, _, err := issuer.Generate(testUser())
	if err != nil {
		t.Fatalf("Ошибка генерации JWT: %v", err)
	}

	issuer.now = time.Now
	if _, err := issuer.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Просроченный токен прошёл проверку: %v", err)
	}
}

// TestValidateGarbage проверяет мусорные строки
func TestValidateGarbage(t *testing.T) {
	issuer, _ := NewTokenIssuer("", time.Minute)
	for _, s := range []string{"", "abc", "a.b.c"} {
		if _, err := issuer.Validate(s); err == nil {
			t.Errorf("Строка %q прошла проверку", s)
		}
	}
}

// TestNewTokenIssuerSecret проверяет разбор ключа из конфигурации
func TestNewTokenIssuerSecret(t *testing.T) {
	secret, err := GenerateSecureSecret()
	if err != nil {
		t.Fatalf("Ошибка генерации ключа: %v", err)
	}
	a, err := NewTokenIssuer(secret, 0)
	if err != nil {
		t.Fatalf("Корректный ключ отклонён: %v", err)
	}
	if a.ttl != DefaultTokenTTL {
		t.Errorf("Ожидался срок по умолчанию, получено %v", a.ttl)
	}

	// Два выпускающих с одним ключом принимают токены друг друга
	b, _ := NewTokenIssuer(secret, time.Minute)
	token, _, _ := a.Generate(testUser())
	if _, err := b.Validate(token); err != nil {
		t.Errorf("Токен с общим ключом отклонён: %v", err)
	}

	if _, err := NewTokenIssuer("не base64!", time.Minute); err == nil {
		t.Error("Ключ не в base64 принят")
	}
	short := base64.StdEncoding.EncodeToString([]byte("short"))
	if _, err := NewTokenIssuer(short, time.Minute); err == nil {
		t.Error("Короткий ключ принят")
	}
}

// TestPasswordHashing проверяет bcrypt-хеширование
func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct-horse")
	if err != nil {
		t.Fatalf("Ошибка хеширования: %v", err)
	}
	if !CheckPassword(hash, "correct-horse") {
		t.Error("Верный пароль не прошёл проверку")
	}
	if CheckPassword(hash, "wrong-horse") {
		t.Error("Неверный пароль прошёл проверку")
	}
	if _, err := HashPassword("short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Errorf("Ожидалась ErrPasswordTooShort, получено %v", err)
	}
}

// TestMemoryUserRepo проверяет хранилище операторов
func TestMemoryUserRepo(t *testing.T) {
	repo, generated, err := NewAdminRepo("Admin", "")
	if err != nil {
		t.Fatalf("Ошибка создания хранилища: %v", err)
	}
	if len(generated) < MinPasswordLength {
		t.Fatalf("Сгенерированный пароль слишком короткий: %q", generated)
	}

	user, err := repo.ValidateCredentials(" admin ", generated)
	if err != nil {
		t.Fatalf("Вход администратора не удался: %v", err)
	}
	if !user.IsAdmin || user.ID != 1 || user.LastLogin.IsZero() {
		t.Errorf("Неверные данные администратора: %+v", user)
	}

	if _, err := repo.ValidateCredentials("admin", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Ожидалась ErrInvalidCredentials, получено %v", err)
	}
	if _, err := repo.ValidateCredentials("ghost", generated); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Ожидалась ErrInvalidCredentials для неизвестного имени, получено %v", err)
	}

	if _, err := repo.CreateUser("ADMIN", "x", false); !errors.Is(err, ErrUserExists) {
		t.Errorf("Ожидалась ErrUserExists, получено %v", err)
	}
	if _, err := repo.CreateUser("  ", "x", false); err == nil {
		t.Error("Пустое имя принято")
	}

	viewer, err := repo.CreateUser("viewer", "x", false)
	if err != nil {
		t.Fatalf("Ошибка создания пользователя: %v", err)
	}
	if viewer.ID != 2 {
		t.Errorf("Ожидался ID 2, получен %d", viewer.ID)
	}
	if _, err := repo.GetUserByUsername("nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Ожидалась ErrUserNotFound, получено %v", err)
	}
}

// TestNewAdminRepoWithHash - заданный хеш используется как есть
func TestNewAdminRepoWithHash(t *testing.T) {
	hash, _ := HashPassword("configured-secret")
	repo, generated, err := NewAdminRepo("root", hash)
	if err != nil {
		t.Fatalf("Ошибка создания хранилища: %v", err)
	}
	if generated != "" {
		t.Errorf("Пароль не должен генерироваться: %q", generated)
	}
	if _, err := repo.ValidateCredentials("root", "configured-secret"); err != nil {
		t.Errorf("Вход с заданным паролем не удался: %v", err)
	}
}
