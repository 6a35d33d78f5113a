package persistence

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/annel0/voxel-sandbox/internal/vec"
	"github.com/annel0/voxel-sandbox/internal/world"
	"github.com/annel0/voxel-sandbox/internal/world/block"
)

// CurrentVersion - версия формата записи сохранения
const CurrentVersion = 1

var (
	// ErrMalformedSaveData - запись не удалось разобрать или проверить.
	// Вызывающий код трактует её как отсутствие сохранения.
	ErrMalformedSaveData = errors.New("повреждённые данные сохранения")

	// ErrUnsupportedVersion - неизвестная версия формата; также является ErrMalformedSaveData
	ErrUnsupportedVersion = fmt.Errorf("%w: неподдерживаемая версия формата", ErrMalformedSaveData)
)

// SaveRecord - долговременная форма мира и позиции игрока
type SaveRecord struct {
	Version   int        `json:"version"`
	Player    [3]float64 `json:"player"`
	Blocks    [][4]int   `json:"blocks"` // [x, y, z, type]
	Timestamp int64      `json:"timestamp"` // Unix, миллисекунды
	WorldID   string     `json:"world_id,omitempty"`
}

// rawRecord принимает как текущие ключи, так и устаревшие v/ts
type rawRecord struct {
	Version   *int        `json:"version"`
	V         *int        `json:"v"`
	Player    *[3]float64 `json:"player"`
	Blocks    *[][4]int   `json:"blocks"`
	Timestamp *int64      `json:"timestamp"`
	Ts        *int64      `json:"ts"`
	WorldID   string      `json:"world_id"`
}

// Snapshot - проверенный результат декодирования
type Snapshot struct {
	Version   int
	Blocks    []world.Entry
	Player    vec.Vec3Float
	HasPlayer bool // false, если в записи не было позиции игрока
	Timestamp time.Time
	WorldID   string
}

// Encode перечисляет все непустые воксели хранилища в запись сохранения.
// Блоки упорядочены по (x, y, z), чтобы одинаковый мир давал одинаковые байты.
func Encode(store world.BlockStore, player vec.Vec3Float, worldID string, now time.Time) SaveRecord {
	blocks := make([][4]int, 0, store.Count())
	store.ForEach(func(pos vec.Vec3, t block.Type) bool {
		blocks = append(blocks, [4]int{pos.X, pos.Y, pos.Z, int(t)})
		return true
	})
	sort.Slice(blocks, func(i, j int) bool {
		a, b := blocks[i], blocks[j]
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		if a[1] != b[1] {
			return a[1] < b[1]
		}
		return a[2] < b[2]
	})

	return SaveRecord{
		Version:   CurrentVersion,
		Player:    player.Array(),
		Blocks:    blocks,
		Timestamp: now.UnixMilli(),
		WorldID:   worldID,
	}
}

// Marshal сериализует запись в JSON
func Marshal(rec SaveRecord) ([]byte, error) {
	if rec.Blocks == nil {
		rec.Blocks = [][4]int{}
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации сохранения: %w", err)
	}
	return data, nil
}

// EncodeBytes кодирует хранилище и позицию сразу в JSON
func EncodeBytes(store world.BlockStore, player vec.Vec3Float, worldID string, now time.Time) ([]byte, error) {
	return Marshal(Encode(store, player, worldID, now))
}

// Decode разбирает и полностью проверяет запись. Хранилище не затрагивается:
// мир строится из Snapshot только после успешной проверки.
func Decode(raw []byte) (*Snapshot, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: пустые данные", ErrMalformedSaveData)
	}

	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSaveData, err)
	}

	schema, err := saveSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSaveData, err)
	}

	var rec rawRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSaveData, err)
	}

	version := rec.Version
	if version == nil {
		version = rec.V
	}
	if version == nil || rec.Blocks == nil {
		return nil, fmt.Errorf("%w: отсутствуют обязательные поля", ErrMalformedSaveData)
	}
	if *version != CurrentVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, *version)
	}

	snap := &Snapshot{
		Version: *version,
		Player:  world.DefaultSpawn,
		WorldID: rec.WorldID,
	}

	if rec.Player != nil {
		p := vec.Vec3Float{X: rec.Player[0], Y: rec.Player[1], Z: rec.Player[2]}
		if !p.IsFinite() {
			return nil, fmt.Errorf("%w: недопустимая позиция игрока", ErrMalformedSaveData)
		}
		snap.Player = p
		snap.HasPlayer = true
	}

	ts := rec.Timestamp
	if ts == nil {
		ts = rec.Ts
	}
	if ts != nil {
		snap.Timestamp = time.UnixMilli(*ts)
	}

	// Повторяющиеся координаты: побеждает последняя запись
	index := make(map[vec.Vec3]int, len(*rec.Blocks))
	entries := make([]world.Entry, 0, len(*rec.Blocks))
	for i, b := range *rec.Blocks {
		if b[3] < 0 || b[3] > math.MaxUint8 {
			return nil, fmt.Errorf("%w: блок %d: неизвестный тип %d", ErrMalformedSaveData, i, b[3])
		}
		t := block.Type(b[3])
		if t == block.Air || !block.IsValid(t) {
			return nil, fmt.Errorf("%w: блок %d: неизвестный тип %d", ErrMalformedSaveData, i, b[3])
		}

		pos := vec.Vec3{X: b[0], Y: b[1], Z: b[2]}
		if at, seen := index[pos]; seen {
			entries[at].Type = t
			continue
		}
		index[pos] = len(entries)
		entries = append(entries, world.Entry{Pos: pos, Type: t})
	}
	snap.Blocks = entries

	return snap, nil
}

// Apply очищает хранилище и заполняет его блоками снимка
func (s *Snapshot) Apply(store world.BlockStore) {
	store.Clear()
	for _, e := range s.Blocks {
		store.Set(e.Pos, e.Type)
	}
}

// Store строит новое хранилище из снимка
func (s *Snapshot) Store() *world.MapStore {
	store := world.NewMapStore(nil)
	for _, e := range s.Blocks {
		store.Set(e.Pos, e.Type)
	}
	return store
}
