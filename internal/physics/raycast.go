package physics

import (
	"math"

	"github.com/annel0/voxel-sandbox/internal/vec"
	"github.com/annel0/voxel-sandbox/internal/world"
	"github.com/go-gl/mathgl/mgl64"
)

// DefaultReach - дальность взаимодействия с блоками
const DefaultReach = 7.0

// Target описывает воксель под лучом прицела и нормаль грани, через которую луч в него вошёл
type Target struct {
	Block    vec.Vec3
	Normal   vec.Vec3
	Distance float64 // Расстояние от начала луча до точки входа
}

// Adjacent возвращает соседний воксель со стороны пересечённой грани
func (t Target) Adjacent() vec.Vec3 {
	return t.Block.Add(t.Normal)
}

// CastRay проходит луч по сетке вокселей (Amanatides–Woo) и возвращает первый
// твёрдый воксель, в который луч входит на расстоянии 0 <= t < maxDistance.
//
// Воксель, содержащий начало луча, не возвращается: в него луч не входит ни через одну грань.
// При равенстве расстояний до границ оси перебираются в порядке X, Y, Z.
// Направление не обязано быть нормализованным; нулевое направление даёт промах.
func CastRay(origin, direction vec.Vec3Float, maxDistance float64, store world.Reader) (Target, bool) {
	if store == nil || !origin.IsFinite() || !direction.IsFinite() {
		return Target{}, false
	}
	if maxDistance <= 0 || math.IsNaN(maxDistance) || math.IsInf(maxDistance, 0) {
		return Target{}, false
	}

	dir := direction.Mgl()
	length := dir.Len()
	if length == 0 {
		return Target{}, false
	}
	dir = dir.Mul(1 / length)
	o := origin.Mgl()

	start := origin.Floor()
	cell := [3]int{start.X, start.Y, start.Z}

	var step [3]int
	var tMax, tDelta mgl64.Vec3
	for axis := 0; axis < 3; axis++ {
		d := dir[axis]
		switch {
		case d > 0:
			step[axis] = 1
			tMax[axis] = (float64(cell[axis]) + 1 - o[axis]) / d
			tDelta[axis] = 1 / d
		case d < 0:
			step[axis] = -1
			tMax[axis] = (o[axis] - float64(cell[axis])) / -d
			tDelta[axis] = -1 / d
		default:
			// Луч параллелен плоскостям этой оси и никогда их не пересекает
			tMax[axis] = math.Inf(1)
			tDelta[axis] = math.Inf(1)
		}
	}

	// Каждый шаг пересекает ровно одну грань, а до maxDistance граней не больше чем 3*(maxDistance+1)
	maxSteps := 3 * (int(math.Ceil(maxDistance)) + 1)
	for i := 0; i < maxSteps; i++ {
		axis := 0
		if tMax[1] < tMax[axis] {
			axis = 1
		}
		if tMax[2] < tMax[axis] {
			axis = 2
		}

		t := tMax[axis]
		if t >= maxDistance {
			return Target{}, false
		}

		cell[axis] += step[axis]
		tMax[axis] += tDelta[axis]

		pos := vec.Vec3{X: cell[0], Y: cell[1], Z: cell[2]}
		if store.IsSolid(pos) {
			var normal [3]int
			normal[axis] = -step[axis]
			return Target{
				Block:    pos,
				Normal:   vec.Vec3{X: normal[0], Y: normal[1], Z: normal[2]},
				Distance: t,
			}, true
		}
	}

	return Target{}, false
}
