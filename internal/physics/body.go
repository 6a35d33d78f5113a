package physics

import (
	"math"

	"github.com/annel0/voxel-sandbox/internal/vec"
)

// Размеры игрока по умолчанию
const (
	DefaultPlayerHeight = 1.8
	DefaultPlayerRadius = 0.3
)

// Body - состояние игрока: позиция ног, вертикальная скорость и контакт с землёй
type Body struct {
	Position  vec.Vec3Float // Точка ног
	VelocityY float64
	Grounded  bool
	Radius    float64 // Горизонтальный радиус столкновений
	Height    float64 // Рост от ног до макушки
}

// NewBody создаёт тело игрока в точке spawn
func NewBody(spawn vec.Vec3Float, radius, height float64) *Body {
	return &Body{
		Position: spawn,
		Radius:   radius,
		Height:   height,
	}
}

// FeetVoxel возвращает воксель, в котором находятся ноги
func (b *Body) FeetVoxel() vec.Vec3 {
	return b.Position.Floor()
}

// HeadVoxel возвращает воксель на уровне макушки (ноги + рост)
func (b *Body) HeadVoxel() vec.Vec3 {
	return vec.Vec3Float{X: b.Position.X, Y: b.Position.Y + b.Height, Z: b.Position.Z}.Floor()
}

// Teleport переносит тело в точку и обнуляет вертикальную скорость
func (b *Body) Teleport(pos vec.Vec3Float) {
	b.Position = pos
	b.VelocityY = 0
	b.Grounded = false
}

// OverlapsVoxel проверяет пересечение объёма игрока [x±r]×[y, y+h]×[z±r] с кубом вокселя.
// Касание гранью пересечением не считается.
func (b *Body) OverlapsVoxel(v vec.Vec3) bool {
	minX, maxX := b.Position.X-b.Radius, b.Position.X+b.Radius
	minY, maxY := b.Position.Y, b.Position.Y+b.Height
	minZ, maxZ := b.Position.Z-b.Radius, b.Position.Z+b.Radius

	return overlap(minX, maxX, float64(v.X)) &&
		overlap(minY, maxY, float64(v.Y)) &&
		overlap(minZ, maxZ, float64(v.Z))
}

func overlap(min, max, cell float64) bool {
	return min < cell+1 && max > cell
}

// voxelRange возвращает целые ячейки, которые пересекает отрезок (min, max)
func voxelRange(min, max float64) (int, int) {
	lo := int(math.Floor(min))
	hi := int(math.Ceil(max)) - 1
	return lo, hi
}
