package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// SQL-диалекты отличаются только DDL и upsert
type sqlDialect struct {
	driver      string
	createTable string
	upsert      string
}

var (
	mysqlDialect = sqlDialect{
		driver: "mysql",
		createTable: `
		CREATE TABLE IF NOT EXISTS world_saves (
			slot       VARCHAR(64)  PRIMARY KEY,
			data       LONGBLOB     NOT NULL,
			updated_at BIGINT       NOT NULL
		) ENGINE=InnoDB`,
		upsert: `
		INSERT INTO world_saves (slot, data, updated_at)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE
			data = VALUES(data),
			updated_at = VALUES(updated_at)`,
	}

	sqliteDialect = sqlDialect{
		driver: "sqlite",
		createTable: `
		CREATE TABLE IF NOT EXISTS world_saves (
			slot       TEXT    PRIMARY KEY,
			data       BLOB    NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		upsert: `
		INSERT INTO world_saves (slot, data, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at`,
	}
)

// SQLStore хранит сохранения в таблице world_saves (MySQL/MariaDB или SQLite)
type SQLStore struct {
	db      *sql.DB
	dialect sqlDialect
}

// NewMySQLStore подключается к MariaDB/MySQL.
//
// Параметры:
//
//	dsn - строка подключения к базе данных (user:pass@tcp(host:port)/dbname)
func NewMySQLStore(ctx context.Context, dsn string) (*SQLStore, error) {
	return openSQLStore(ctx, mysqlDialect, dsn)
}

// NewSQLiteStore открывает файл базы SQLite (драйвер modernc.org/sqlite, без cgo)
func NewSQLiteStore(ctx context.Context, path string) (*SQLStore, error) {
	return openSQLStore(ctx, sqliteDialect, path)
}

func openSQLStore(ctx context.Context, dialect sqlDialect, dsn string) (*SQLStore, error) {
	db, err := sql.Open(dialect.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть базу %s: %w", dialect.driver, err)
	}
	if dialect.driver == "sqlite" {
		// SQLite не допускает параллельной записи
		db.SetMaxOpenConns(1)
	}

	// Проверяем соединение
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось проверить соединение с %s: %w", dialect.driver, err)
	}

	// Создаем таблицу, если она не существует
	if _, err := db.ExecContext(ctx, dialect.createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка создания таблицы world_saves: %w", err)
	}

	return &SQLStore{db: db, dialect: dialect}, nil
}

// Save записывает слот
func (s *SQLStore) Save(ctx context.Context, slot string, data []byte) error {
	if err := ValidateSlot(slot); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, s.dialect.upsert, slot, data, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("ошибка сохранения слота %s: %w", slot, err)
	}
	return nil
}

// Load читает слот
func (s *SQLStore) Load(ctx context.Context, slot string) ([]byte, error) {
	if err := ValidateSlot(slot); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM world_saves WHERE slot = ?`, slot).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrSaveNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки слота %s: %w", slot, err)
	}
	return data, nil
}

// Delete удаляет слот
func (s *SQLStore) Delete(ctx context.Context, slot string) error {
	if err := ValidateSlot(slot); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM world_saves WHERE slot = ?`, slot); err != nil {
		return fmt.Errorf("ошибка удаления слота %s: %w", slot, err)
	}
	return nil
}

// List перечисляет слоты
func (s *SQLStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT slot FROM world_saves ORDER BY slot`)
	if err != nil {
		return nil, fmt.Errorf("ошибка перечисления слотов: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("ошибка чтения слота: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Close закрывает соединение с базой
func (s *SQLStore) Close() error {
	return s.db.Close()
}
