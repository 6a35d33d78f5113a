package world

import (
	"github.com/annel0/voxel-sandbox/internal/vec"
	"github.com/annel0/voxel-sandbox/internal/world/block"
)

// ChangeKind определяет вид изменения вокселя
type ChangeKind uint8

const (
	ChangeAdded    ChangeKind = iota // Воздух -> блок
	ChangeRemoved                    // Блок -> воздух
	ChangeReplaced                   // Блок -> другой блок
)

// String возвращает строковое представление вида изменения
func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeRemoved:
		return "removed"
	case ChangeReplaced:
		return "replaced"
	default:
		return "unknown"
	}
}

// KindOf классифицирует переход old -> new. Для old == new результат не определён,
// хранилище такие переходы не публикует.
func KindOf(old, new block.Type) ChangeKind {
	switch {
	case old == block.Air:
		return ChangeAdded
	case new == block.Air:
		return ChangeRemoved
	default:
		return ChangeReplaced
	}
}

// BlockChange описывает одно наблюдаемое изменение вокселя
type BlockChange struct {
	Pos  vec.Vec3
	Old  block.Type
	New  block.Type
	Kind ChangeKind
}

// Listener получает уведомления об изменениях хранилища.
// Рендер строит собственное отображение координата -> визуальный объект только по ним.
type Listener interface {
	// OnBlockChanged вызывается после фактического изменения типа вокселя
	OnBlockChanged(pos vec.Vec3, old, new block.Type)

	// OnWorldCleared вызывается один раз после Clear()
	OnWorldCleared()
}

// Batch описывает мир после массовой замены (сброс, загрузка)
type Batch struct {
	WorldID string
	Player  vec.Vec3Float
	Store   BlockStore // только для чтения и только внутри OnBatchEnd
}

// BatchListener - необязательное расширение Listener. Массовая замена мира
// обрамляется OnBatchStart и OnBatchEnd; между ними приходят очистка и все
// установки нового мира, которые получатель может не обрабатывать по одной.
type BatchListener interface {
	OnBatchStart()
	OnBatchEnd(b Batch)
}

// ListenerFuncs адаптирует пару функций к интерфейсу Listener.
// Пустые поля игнорируются.
type ListenerFuncs struct {
	Changed func(pos vec.Vec3, old, new block.Type)
	Cleared func()
}

// OnBlockChanged реализует Listener
func (f ListenerFuncs) OnBlockChanged(pos vec.Vec3, old, new block.Type) {
	if f.Changed != nil {
		f.Changed(pos, old, new)
	}
}

// OnWorldCleared реализует Listener
func (f ListenerFuncs) OnWorldCleared() {
	if f.Cleared != nil {
		f.Cleared()
	}
}

// Fanout рассылает уведомления нескольким слушателям по порядку
type Fanout []Listener

// OnBlockChanged реализует Listener
func (f Fanout) OnBlockChanged(pos vec.Vec3, old, new block.Type) {
	for _, l := range f {
		if l != nil {
			l.OnBlockChanged(pos, old, new)
		}
	}
}

// OnWorldCleared реализует Listener
func (f Fanout) OnWorldCleared() {
	for _, l := range f {
		if l != nil {
			l.OnWorldCleared()
		}
	}
}

// OnBatchStart передаёт начало замены слушателям, реализующим BatchListener
func (f Fanout) OnBatchStart() {
	for _, l := range f {
		if bl, ok := l.(BatchListener); ok {
			bl.OnBatchStart()
		}
	}
}

// OnBatchEnd передаёт конец замены слушателям, реализующим BatchListener
func (f Fanout) OnBatchEnd(b Batch) {
	for _, l := range f {
		if bl, ok := l.(BatchListener); ok {
			bl.OnBatchEnd(b)
		}
	}
}

// ChangeRecorder накапливает изменения; используется в тестах и инструментах
type ChangeRecorder struct {
	Changes   []BlockChange
	Clears    int
	Batches   int    // число начатых массовых замен
	LastBatch string // WorldID последней завершённой замены
}

// OnBlockChanged реализует Listener
func (r *ChangeRecorder) OnBlockChanged(pos vec.Vec3, old, new block.Type) {
	r.Changes = append(r.Changes, BlockChange{Pos: pos, Old: old, New: new, Kind: KindOf(old, new)})
}

// OnWorldCleared реализует Listener
func (r *ChangeRecorder) OnWorldCleared() {
	r.Clears++
}

// OnBatchStart реализует BatchListener
func (r *ChangeRecorder) OnBatchStart() {
	r.Batches++
}

// OnBatchEnd реализует BatchListener
func (r *ChangeRecorder) OnBatchEnd(b Batch) {
	r.LastBatch = b.WorldID
}

// Reset очищает накопленные изменения
func (r *ChangeRecorder) Reset() {
	r.Changes = nil
	r.Clears = 0
	r.Batches = 0
	r.LastBatch = ""
}
