package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/annel0/voxel-sandbox/internal/logging"
	"github.com/annel0/voxel-sandbox/internal/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultSlot - имя слота сохранения по умолчанию
const DefaultSlot = "world"

// DefaultTimeout ограничивает длительность одной операции с хранилищем
const DefaultTimeout = 2 * time.Second

// Service связывает кодек с хранилищем сохранений
type Service struct {
	store   storage.SaveStore
	slot    string
	timeout time.Duration
	tracer  trace.Tracer
	logger  *logging.Logger
}

// NewService создаёт сервис для слота slot. Нулевой timeout заменяется DefaultTimeout.
func NewService(store storage.SaveStore, slot string, timeout time.Duration) *Service {
	if slot == "" {
		slot = DefaultSlot
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{
		store:   store,
		slot:    slot,
		timeout: timeout,
		tracer:  otel.Tracer("voxel-sandbox/persistence"),
		logger:  logging.GetStorageLogger(),
	}
}

// Slot возвращает имя слота
func (s *Service) Slot() string {
	return s.slot
}

// Store возвращает хранилище
func (s *Service) Store() storage.SaveStore {
	return s.store
}

// Save записывает уже закодированную запись
func (s *Service) Save(ctx context.Context, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "persistence.Save",
		trace.WithAttributes(attribute.String("slot", s.slot), attribute.Int("bytes", len(data))))
	defer span.End()

	if err := s.store.Save(ctx, s.slot, data); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("ошибка сохранения мира: %w", err)
	}

	s.logger.Debug("Слот %s сохранён (%d байт)", s.slot, len(data))
	return nil
}

// SaveRecord сериализует и записывает запись
func (s *Service) SaveRecord(ctx context.Context, rec SaveRecord) error {
	data, err := Marshal(rec)
	if err != nil {
		return err
	}
	return s.Save(ctx, data)
}

// LoadSnapshot читает и проверяет запись. Отсутствие слота возвращается как
// storage.ErrSaveNotFound, повреждённые данные - как ErrMalformedSaveData.
func (s *Service) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "persistence.Load", trace.WithAttributes(attribute.String("slot", s.slot)))
	defer span.End()

	data, err := s.store.Load(ctx, s.slot)
	if err != nil {
		if !errors.Is(err, storage.ErrSaveNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return nil, fmt.Errorf("ошибка загрузки мира: %w", err)
	}
	span.SetAttributes(attribute.Int("bytes", len(data)))

	snap, err := Decode(data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("blocks", len(snap.Blocks)))
	return snap, nil
}

// Delete удаляет слот
func (s *Service) Delete(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "persistence.Delete", trace.WithAttributes(attribute.String("slot", s.slot)))
	defer span.End()

	if err := s.store.Delete(ctx, s.slot); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("ошибка удаления сохранения: %w", err)
	}
	return nil
}
