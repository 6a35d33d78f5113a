package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer - значение поля iss в токенах
const Issuer = "voxel-sandbox"

// DefaultTokenTTL - срок жизни токена по умолчанию
const DefaultTokenTTL = time.Hour

// ErrInvalidToken - токен не прошёл проверку
var ErrInvalidToken = errors.New("недействительный токен")

// Claims - содержимое токена оператора
type Claims struct {
	UserID   uint64 `json:"user_id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// TokenIssuer выпускает и проверяет HS256-токены
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer создаёт выпускающего. secret - base64 не короче 32 байт;
// пустая строка означает случайный ключ, токены тогда не переживают перезапуск.
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	var key []byte
	if secret == "" {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("не удалось сгенерировать ключ: %w", err)
		}
	} else {
		decoded, err := base64.StdEncoding.DecodeString(secret)
		if err != nil {
			return nil, fmt.Errorf("ключ JWT должен быть в base64: %w", err)
		}
		if len(decoded) < 32 {
			return nil, errors.New("ключ JWT должен быть не короче 32 байт")
		}
		key = decoded
	}

	return &TokenIssuer{secret: key, ttl: ttl, now: time.Now}, nil
}

// Generate создаёт токен для пользователя
func (ti *TokenIssuer) Generate(user *User) (string, time.Time, error) {
	now := ti.now()
	expires := now.Add(ti.ttl)
	claims := &Claims{
		UserID:   user.ID,
		Username: user.Username,
		IsAdmin:  user.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    Issuer,
			Subject:   user.Username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// Validate проверяет подпись, срок и издателя токена
func (ti *TokenIssuer) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return ti.secret, nil
	}, jwt.WithIssuer(Issuer), jwt.WithTimeFunc(ti.now))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// GenerateSecureSecret генерирует новый ключ в base64 для конфигурации
func GenerateSecureSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
