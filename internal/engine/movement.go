package engine

import (
	"math"

	"github.com/annel0/voxel-sandbox/internal/vec"
	"github.com/go-gl/mathgl/mgl64"
)

var worldUp = mgl64.Vec3{0, 1, 0}

// MoveVector вычисляет горизонтальное смещение за шаг.
//
// Вперёд - направление взгляда, спроецированное на плоскость XZ; вправо -
// forward × up. Сумма нажатых направлений нормализуется, поэтому диагональ
// не быстрее прямого движения. Результат: X - мировой X, Y - мировой Z.
func MoveVector(aim vec.Vec3Float, in InputFrame, distance float64) vec.Vec2Float {
	forward := aim.Mgl()
	forward[1] = 0
	if l := forward.Len(); l > 1e-9 && !math.IsNaN(l) && !math.IsInf(l, 0) {
		forward = forward.Mul(1 / l)
	} else {
		// Взгляд строго вертикален
		forward = mgl64.Vec3{}
	}
	right := forward.Cross(worldUp)

	var move mgl64.Vec3
	if in.Forward {
		move = move.Add(forward)
	}
	if in.Back {
		move = move.Sub(forward)
	}
	if in.Left {
		move = move.Sub(right)
	}
	if in.Right {
		move = move.Add(right)
	}

	l := move.Len()
	if l < 1e-9 {
		return vec.Vec2Float{}
	}
	move = move.Mul(distance / l)
	return vec.Vec2Float{X: move[0], Y: move[2]}
}
