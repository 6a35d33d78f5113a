package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Addr      string        // Адрес Redis сервера
	Password  string        // Пароль (пустой если не требуется)
	DB        int           // Номер базы данных
	KeyPrefix string        // Префикс для ключей
	TTL       time.Duration // Время жизни записей, 0 - без ограничения
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "voxel:save:",
	}
}

// RedisStore хранит сохранения в Redis
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisStore подключается к Redis и проверяет соединение
func NewRedisStore(ctx context.Context, config *RedisConfig) (*RedisStore, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	// Проверяем подключение
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("не удалось подключиться к Redis: %w", err)
	}

	return &RedisStore{
		client:    client,
		keyPrefix: config.KeyPrefix,
		ttl:       config.TTL,
	}, nil
}

// Save записывает слот
func (s *RedisStore) Save(ctx context.Context, slot string, data []byte) error {
	if err := ValidateSlot(slot); err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.keyPrefix+slot, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("ошибка сохранения слота %s: %w", slot, err)
	}
	return nil
}

// Load читает слот
func (s *RedisStore) Load(ctx context.Context, slot string) ([]byte, error) {
	if err := ValidateSlot(slot); err != nil {
		return nil, err
	}

	data, err := s.client.Get(ctx, s.keyPrefix+slot).Bytes()
	if err == redis.Nil {
		return nil, ErrSaveNotFound
	} else if err != nil {
		return nil, fmt.Errorf("ошибка загрузки слота %s: %w", slot, err)
	}
	return data, nil
}

// Delete удаляет слот
func (s *RedisStore) Delete(ctx context.Context, slot string) error {
	if err := ValidateSlot(slot); err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.keyPrefix+slot).Err(); err != nil {
		return fmt.Errorf("ошибка удаления слота %s: %w", slot, err)
	}
	return nil
}

// List перечисляет слоты через SCAN
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	var names []string
	iter := s.client.Scan(ctx, 0, s.keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		names = append(names, strings.TrimPrefix(iter.Val(), s.keyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("ошибка перечисления слотов: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Close закрывает клиент
func (s *RedisStore) Close() error {
	return s.client.Close()
}
