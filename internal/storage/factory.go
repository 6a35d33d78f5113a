package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/annel0/voxel-sandbox/internal/config"
)

// Backend - тип хранилища сохранений
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendFile   Backend = "file"
	BackendBadger Backend = "badger"
	BackendRedis  Backend = "redis"
	BackendSQLite Backend = "sqlite"
	BackendMySQL  Backend = "mysql"
	BackendMongo  Backend = "mongo"
)

// Backends перечисляет поддерживаемые хранилища
var Backends = []Backend{BackendMemory, BackendFile, BackendBadger, BackendRedis, BackendSQLite, BackendMySQL, BackendMongo}

// Config описывает выбор и параметры хранилища
type Config struct {
	Backend     Backend
	Path        string      // Каталог для file и badger, файл для sqlite
	Compression Compression // Только для file
	DSN         string      // Только для mysql
	Redis       RedisConfig
	Mongo       MongoConfig
}

// ParseBackend разбирает название хранилища
func ParseBackend(s string) (Backend, error) {
	b := Backend(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Backends {
		if b == known {
			return b, nil
		}
	}
	return "", fmt.Errorf("неизвестное хранилище: %s", s)
}

// Open создаёт хранилище по конфигурации
func Open(ctx context.Context, cfg Config) (SaveStore, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemoryStore(), nil
	case BackendFile:
		return NewFileStore(defaultPath(cfg.Path, "saves"), cfg.Compression)
	case BackendBadger:
		return NewBadgerStore(defaultPath(cfg.Path, filepath.Join("data", "saves")))
	case BackendSQLite:
		return NewSQLiteStore(ctx, defaultPath(cfg.Path, "saves.db"))
	case BackendMySQL:
		if cfg.DSN == "" {
			return nil, fmt.Errorf("для mysql требуется DSN")
		}
		return NewMySQLStore(ctx, cfg.DSN)
	case BackendRedis:
		redisCfg := cfg.Redis
		if redisCfg.Addr == "" {
			redisCfg.Addr = DefaultRedisConfig().Addr
		}
		if redisCfg.KeyPrefix == "" {
			redisCfg.KeyPrefix = DefaultRedisConfig().KeyPrefix
		}
		return NewRedisStore(ctx, &redisCfg)
	case BackendMongo:
		return NewMongoStore(ctx, cfg.Mongo)
	default:
		return nil, fmt.Errorf("неизвестное хранилище: %s", cfg.Backend)
	}
}

func defaultPath(path, fallback string) string {
	if path == "" {
		return fallback
	}
	return path
}

// ConfigFrom переводит секцию persistence из YAML в параметры хранилища
func ConfigFrom(p config.PersistenceConfig) (Config, error) {
	backend, err := ParseBackend(p.GetBackend())
	if err != nil {
		return Config{}, err
	}
	compression, err := ParseCompression(p.Compression)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Backend:     backend,
		Path:        p.Path,
		Compression: compression,
		DSN:         p.GetDSN(),
		Redis: RedisConfig{
			Addr:      p.Redis.Addr,
			Password:  p.Redis.Password,
			DB:        p.Redis.DB,
			KeyPrefix: p.Redis.KeyPrefix,
		},
		Mongo: MongoConfig{
			URI:        p.Mongo.URI,
			Database:   p.Mongo.Database,
			Collection: p.Mongo.Collection,
		},
	}, nil
}
