package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// ErrSaveNotFound возвращается при загрузке отсутствующего слота
var ErrSaveNotFound = errors.New("сохранение не найдено")

// ErrInvalidSlot возвращается для недопустимого имени слота
var ErrInvalidSlot = errors.New("недопустимое имя слота")

// SaveStore определяет интерфейс долговременного хранилища сохранений.
// Хранилище оперирует непрозрачными байтами: формат записи ему не известен.
type SaveStore interface {
	// Save записывает данные в слот, заменяя предыдущие
	Save(ctx context.Context, slot string, data []byte) error

	// Load читает данные слота. Для отсутствующего слота возвращает ErrSaveNotFound.
	Load(ctx context.Context, slot string) ([]byte, error)

	// Delete удаляет слот. Удаление отсутствующего слота не является ошибкой.
	Delete(ctx context.Context, slot string) error

	// Close освобождает ресурсы хранилища
	Close() error
}

// Lister - необязательное расширение SaveStore для перечисления слотов
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

var slotPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// ValidateSlot проверяет имя слота. Имя используется как имя файла и ключ БД,
// поэтому разрешены только буквы, цифры и символы _ . -
func ValidateSlot(slot string) error {
	if !slotPattern.MatchString(slot) {
		return fmt.Errorf("%w: %q", ErrInvalidSlot, slot)
	}
	return nil
}
