package world

import (
	"github.com/annel0/voxel-sandbox/internal/vec"
	"github.com/annel0/voxel-sandbox/internal/world/block"
)

// Reader предоставляет доступ к миру только на чтение
type Reader interface {
	// Get возвращает тип блока; воздух для отсутствующих координат
	Get(pos vec.Vec3) block.Type

	// IsSolid возвращает true, если в координате есть блок
	IsSolid(pos vec.Vec3) bool
}

// BlockStore - единственный источник истины о содержимом мира.
// Все изменения проходят через Set/Clear.
type BlockStore interface {
	Reader

	// Set устанавливает блок. Воздух удаляет запись. Повторная установка того же
	// типа ничего не меняет и не порождает уведомлений.
	Set(pos vec.Vec3, t block.Type)

	// Clear удаляет все блоки
	Clear()

	// Count возвращает количество непустых вокселей
	Count() int

	// ForEach обходит все непустые воксели в произвольном порядке.
	// Обход прекращается, если fn вернула false. Изменять хранилище из fn нельзя.
	ForEach(fn func(pos vec.Vec3, t block.Type) bool)
}

// Entry - пара (координата, тип)
type Entry struct {
	Pos  vec.Vec3
	Type block.Type
}

// MapStore реализует BlockStore на основе разреженной карты.
// Не потокобезопасен: принадлежит циклу симуляции.
type MapStore struct {
	blocks   map[vec.Vec3]block.Type
	listener Listener
}

// NewMapStore создаёт пустое хранилище. listener может быть nil.
func NewMapStore(listener Listener) *MapStore {
	return &MapStore{
		blocks:   make(map[vec.Vec3]block.Type),
		listener: listener,
	}
}

// SetListener заменяет получателя уведомлений
func (s *MapStore) SetListener(listener Listener) {
	s.listener = listener
}

// Get возвращает тип блока в координате
func (s *MapStore) Get(pos vec.Vec3) block.Type {
	if t, exists := s.blocks[pos]; exists {
		return t
	}
	return block.Air
}

// IsSolid возвращает true для любого непустого вокселя
func (s *MapStore) IsSolid(pos vec.Vec3) bool {
	_, exists := s.blocks[pos]
	return exists
}

// Set устанавливает или удаляет блок и уведомляет слушателя о фактическом изменении
func (s *MapStore) Set(pos vec.Vec3, t block.Type) {
	old := s.Get(pos)
	if old == t {
		return
	}

	if t == block.Air {
		delete(s.blocks, pos)
	} else {
		s.blocks[pos] = t
	}

	if s.listener != nil {
		s.listener.OnBlockChanged(pos, old, t)
	}
}

// Clear удаляет все блоки
func (s *MapStore) Clear() {
	s.blocks = make(map[vec.Vec3]block.Type)
	if s.listener != nil {
		s.listener.OnWorldCleared()
	}
}

// Count возвращает количество блоков
func (s *MapStore) Count() int {
	return len(s.blocks)
}

// ForEach обходит все блоки
func (s *MapStore) ForEach(fn func(pos vec.Vec3, t block.Type) bool) {
	for pos, t := range s.blocks {
		if !fn(pos, t) {
			return
		}
	}
}

// Snapshot копирует содержимое хранилища в срез
func Snapshot(store BlockStore) []Entry {
	entries := make([]Entry, 0, store.Count())
	store.ForEach(func(pos vec.Vec3, t block.Type) bool {
		entries = append(entries, Entry{Pos: pos, Type: t})
		return true
	})
	return entries
}
