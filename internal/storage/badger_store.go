package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dgraph-io/badger/v3"
)

const badgerKeyPrefix = "save:"

// BadgerStore хранит сохранения во встроенной базе BadgerDB
type BadgerStore struct {
	db      *badger.DB
	dbPath  string
	mutex   sync.RWMutex
	isReady bool
}

// NewBadgerStore открывает (или создаёт) базу в каталоге dbPath
func NewBadgerStore(dbPath string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	return &BadgerStore{
		db:      db,
		dbPath:  dbPath,
		isReady: true,
	}, nil
}

// Save записывает слот
func (s *BadgerStore) Save(ctx context.Context, slot string, data []byte) error {
	if err := ValidateSlot(slot); err != nil {
		return err
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if !s.isReady {
		return fmt.Errorf("хранилище не готово")
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(badgerKeyPrefix+slot), data)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения слота %s: %w", slot, err)
	}
	return nil
}

// Load читает слот
func (s *BadgerStore) Load(ctx context.Context, slot string) ([]byte, error) {
	if err := ValidateSlot(slot); err != nil {
		return nil, err
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if !s.isReady {
		return nil, fmt.Errorf("хранилище не готово")
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerKeyPrefix + slot))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})

	if err == badger.ErrKeyNotFound {
		return nil, ErrSaveNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки слота %s: %w", slot, err)
	}
	return data, nil
}

// Delete удаляет слот
func (s *BadgerStore) Delete(ctx context.Context, slot string) error {
	if err := ValidateSlot(slot); err != nil {
		return err
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if !s.isReady {
		return fmt.Errorf("хранилище не готово")
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(badgerKeyPrefix + slot))
	})
	if err != nil {
		return fmt.Errorf("ошибка удаления слота %s: %w", slot, err)
	}
	return nil
}

// List перечисляет слоты по префиксу ключа
func (s *BadgerStore) List(ctx context.Context) ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var names []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(badgerKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			names = append(names, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка перечисления слотов: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Close закрывает базу
func (s *BadgerStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isReady {
		return nil
	}

	s.isReady = false
	return s.db.Close()
}
