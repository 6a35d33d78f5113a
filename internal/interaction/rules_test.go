package interaction

import (
	"testing"

	"github.com/annel0/voxel-sandbox/internal/physics"
	"github.com/annel0/voxel-sandbox/internal/vec"
	"github.com/annel0/voxel-sandbox/internal/world"
	"github.com/annel0/voxel-sandbox/internal/world/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func playerAt(x, y, z, height float64) *physics.Body {
	return physics.NewBody(vec.Vec3Float{X: x, Y: y, Z: z}, physics.DefaultPlayerRadius, height)
}

func TestApplyBreak(t *testing.T) {
	rec := &world.ChangeRecorder{}
	store := world.NewMapStore(rec)
	store.Set(vec.Vec3{X: 2, Y: 0, Z: 2}, block.Grass)
	rules := NewRules(PlacementTwoVoxel)

	outcome := rules.ApplyBreak(physics.Target{Block: vec.Vec3{X: 2, Y: 0, Z: 2}, Normal: vec.UnitY}, true, store)
	assert.Equal(t, Applied, outcome)
	assert.Equal(t, block.Air, store.Get(vec.Vec3{X: 2, Y: 0, Z: 2}))
	require.Len(t, rec.Changes, 2)
	assert.Equal(t, world.ChangeRemoved, rec.Changes[1].Kind)

	assert.Equal(t, NoTarget, rules.ApplyBreak(physics.Target{}, false, store), "Без цели разрушение - пустая операция")
}

func TestApplyPlace_SelfBurialRejected(t *testing.T) {
	store := world.NewMapStore(nil)
	store.Set(vec.Vec3{X: 0, Y: -1, Z: 0}, block.Stone)
	store.Set(vec.Vec3{X: 0, Y: 2, Z: 0}, block.Stone)
	rules := NewRules(PlacementTwoVoxel)
	player := playerAt(0, 0, 0, 1)

	// Кандидат (0,0,0) - уровень ног
	feet := physics.Target{Block: vec.Vec3{X: 0, Y: -1, Z: 0}, Normal: vec.UnitY}
	assert.Equal(t, Rejected, rules.ApplyPlace(feet, true, block.Dirt, player, store))

	// Кандидат (0,1,0) - уровень головы
	head := physics.Target{Block: vec.Vec3{X: 0, Y: 2, Z: 0}, Normal: vec.NegUnitY}
	assert.Equal(t, Rejected, rules.ApplyPlace(head, true, block.Dirt, player, store))

	assert.Equal(t, 2, store.Count(), "Отклонённая установка не меняет мир")
}

func TestApplyPlace_Applied(t *testing.T) {
	store := world.NewMapStore(nil)
	store.Set(vec.Vec3{X: 3, Y: 0, Z: 0}, block.Stone)
	rules := NewRules(PlacementTwoVoxel)
	player := playerAt(0.5, 1, 0.5, physics.DefaultPlayerHeight)

	target := physics.Target{Block: vec.Vec3{X: 3, Y: 0, Z: 0}, Normal: vec.UnitY}
	assert.Equal(t, Applied, rules.ApplyPlace(target, true, block.Wood, player, store))
	assert.Equal(t, block.Wood, store.Get(vec.Vec3{X: 3, Y: 1, Z: 0}))
}

func TestApplyPlace_NoOps(t *testing.T) {
	store := world.NewMapStore(nil)
	store.Set(vec.Vec3{X: 3, Y: 0, Z: 0}, block.Stone)
	store.Set(vec.Vec3{X: 3, Y: 1, Z: 0}, block.Grass)
	rules := NewRules(PlacementTwoVoxel)
	player := playerAt(0.5, 1, 0.5, physics.DefaultPlayerHeight)
	target := physics.Target{Block: vec.Vec3{X: 3, Y: 0, Z: 0}, Normal: vec.UnitY}

	assert.Equal(t, NoTarget, rules.ApplyPlace(physics.Target{}, false, block.Dirt, player, store))
	assert.Equal(t, InvalidBlock, rules.ApplyPlace(target, true, block.Air, player, store))
	assert.Equal(t, Occupied, rules.ApplyPlace(target, true, block.Dirt, player, store))
	assert.Equal(t, block.Grass, store.Get(vec.Vec3{X: 3, Y: 1, Z: 0}), "Занятая клетка не перезаписывается")
}

func TestApplyPlace_TwoVoxelVersusAABB(t *testing.T) {
	// Игрок у края колонки: объём заходит в соседнюю колонку x=1
	player := playerAt(0.9, 1, 0.5, physics.DefaultPlayerHeight)
	target := physics.Target{Block: vec.Vec3{X: 1, Y: 0, Z: 0}, Normal: vec.UnitY}

	store := world.NewMapStore(nil)
	store.Set(target.Block, block.Stone)
	assert.Equal(t, Applied, NewRules(PlacementTwoVoxel).ApplyPlace(target, true, block.Dirt, player, store),
		"Двухвоксельная проверка смотрит только на колонку ног")

	store = world.NewMapStore(nil)
	store.Set(target.Block, block.Stone)
	assert.Equal(t, Rejected, NewRules(PlacementAABB).ApplyPlace(target, true, block.Dirt, player, store),
		"AABB-проверка видит пересечение с соседней колонкой")
}

func TestBuriesTwoVoxel(t *testing.T) {
	feet := vec.Vec3Float{X: 4.2, Y: 1.0, Z: -0.5}

	assert.True(t, BuriesTwoVoxel(vec.Vec3{X: 4, Y: 1, Z: -1}, feet, 1.8))
	assert.True(t, BuriesTwoVoxel(vec.Vec3{X: 4, Y: 2, Z: -1}, feet, 1.8))
	assert.False(t, BuriesTwoVoxel(vec.Vec3{X: 4, Y: 3, Z: -1}, feet, 1.8))
	assert.False(t, BuriesTwoVoxel(vec.Vec3{X: 5, Y: 1, Z: -1}, feet, 1.8))
}

func TestParsePlacementMode(t *testing.T) {
	mode, ok := ParsePlacementMode("aabb")
	assert.True(t, ok)
	assert.Equal(t, PlacementAABB, mode)

	mode, ok = ParsePlacementMode("")
	assert.True(t, ok)
	assert.Equal(t, PlacementTwoVoxel, mode)

	_, ok = ParsePlacementMode("capsule")
	assert.False(t, ok)
}
