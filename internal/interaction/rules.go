// Package interaction содержит правила разрушения и установки блоков.
package interaction

import (
	"github.com/annel0/voxel-sandbox/internal/physics"
	"github.com/annel0/voxel-sandbox/internal/vec"
	"github.com/annel0/voxel-sandbox/internal/world"
	"github.com/annel0/voxel-sandbox/internal/world/block"
)

// Outcome - результат попытки взаимодействия. Ни один исход не является ошибкой.
type Outcome uint8

const (
	Applied      Outcome = iota // Хранилище изменено
	NoTarget                    // Под прицелом ничего нет в пределах досягаемости
	Rejected                    // Установка пересекла бы игрока
	InvalidBlock                // Тип нельзя устанавливать (например, воздух)
	Occupied                    // Клетка-кандидат уже занята
)

// String возвращает строковое представление исхода
func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case NoTarget:
		return "no_target"
	case Rejected:
		return "rejected"
	case InvalidBlock:
		return "invalid_block"
	case Occupied:
		return "occupied"
	default:
		return "unknown"
	}
}

// PlacementMode определяет проверку самозамуровывания
type PlacementMode uint8

const (
	// PlacementTwoVoxel отклоняет установку в воксели ног и головы игрока
	PlacementTwoVoxel PlacementMode = iota
	// PlacementAABB отклоняет установку при любом пересечении объёма игрока с кубом
	PlacementAABB
)

// ParsePlacementMode разбирает режим из конфигурации
func ParsePlacementMode(s string) (PlacementMode, bool) {
	switch s {
	case "", "two_voxel":
		return PlacementTwoVoxel, true
	case "aabb":
		return PlacementAABB, true
	default:
		return PlacementTwoVoxel, false
	}
}

// Rules принимает решения о разрушении и установке блоков
type Rules struct {
	Mode PlacementMode
}

// NewRules создаёт правила с указанным режимом проверки установки
func NewRules(mode PlacementMode) *Rules {
	return &Rules{Mode: mode}
}

// ApplyBreak превращает целевой воксель в воздух
func (r *Rules) ApplyBreak(target physics.Target, ok bool, store world.BlockStore) Outcome {
	if !ok {
		return NoTarget
	}
	store.Set(target.Block, block.Air)
	return Applied
}

// ApplyPlace ставит блок placing в соседнюю с целью клетку со стороны пересечённой грани
func (r *Rules) ApplyPlace(target physics.Target, ok bool, placing block.Type, player *physics.Body, store world.BlockStore) Outcome {
	if !ok {
		return NoTarget
	}
	if !block.IsPlaceable(placing) {
		return InvalidBlock
	}

	candidate := target.Adjacent()
	if store.IsSolid(candidate) {
		return Occupied
	}
	if player != nil && r.buries(candidate, player) {
		return Rejected
	}

	store.Set(candidate, placing)
	return Applied
}

// buries проверяет, окажется ли игрок внутри нового блока
func (r *Rules) buries(candidate vec.Vec3, player *physics.Body) bool {
	if r.Mode == PlacementAABB {
		return player.OverlapsVoxel(candidate)
	}
	return BuriesTwoVoxel(candidate, player.Position, player.Height)
}

// BuriesTwoVoxel - упрощённая проверка по двум вокселям: колонка игрока (x, z) и
// уровни floor(ноги) и floor(ноги + рост). Полный объём игрока не учитывается.
func BuriesTwoVoxel(candidate vec.Vec3, feet vec.Vec3Float, height float64) bool {
	feetVoxel := feet.Floor()
	if candidate.X != feetVoxel.X || candidate.Z != feetVoxel.Z {
		return false
	}
	headY := vec.Vec3Float{X: feet.X, Y: feet.Y + height, Z: feet.Z}.Floor().Y
	return candidate.Y == feetVoxel.Y || candidate.Y == headY
}
