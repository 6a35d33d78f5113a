package vec

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Vec3 представляет трехмерный вектор с целочисленными координатами (координата вокселя)
type Vec3 struct {
	X int
	Y int
	Z int
}

// Vec3Float представляет трехмерный вектор с плавающими координатами
type Vec3Float struct {
	X float64
	Y float64
	Z float64
}

// Единичные нормали граней куба
var (
	UnitX    = Vec3{X: 1}
	UnitY    = Vec3{Y: 1}
	UnitZ    = Vec3{Z: 1}
	NegUnitX = Vec3{X: -1}
	NegUnitY = Vec3{Y: -1}
	NegUnitZ = Vec3{Z: -1}
)

// Equals проверяет равенство векторов
func (v Vec3) Equals(other Vec3) bool {
	return v.X == other.X && v.Y == other.Y && v.Z == other.Z
}

// Add складывает два вектора
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{
		X: v.X + other.X,
		Y: v.Y + other.Y,
		Z: v.Z + other.Z,
	}
}

// Neg возвращает противоположный вектор
func (v Vec3) Neg() Vec3 {
	return Vec3{X: -v.X, Y: -v.Y, Z: -v.Z}
}

// ToFloat возвращает минимальный угол ячейки в мировых координатах
func (v Vec3) ToFloat() Vec3Float {
	return Vec3Float{X: float64(v.X), Y: float64(v.Y), Z: float64(v.Z)}
}

// ToVec2 возвращает горизонтальную колонку (X, Z) вокселя
func (v Vec3) ToVec2() Vec2 {
	return Vec2{X: v.X, Y: v.Z}
}

// String возвращает ключ вида "x,y,z"
func (v Vec3) String() string {
	return fmt.Sprintf("%d,%d,%d", v.X, v.Y, v.Z)
}

// Add складывает два вектора
func (v Vec3Float) Add(other Vec3Float) Vec3Float {
	return Vec3Float{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Sub вычитает вектор
func (v Vec3Float) Sub(other Vec3Float) Vec3Float {
	return Vec3Float{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Mul умножает вектор на скаляр
func (v Vec3Float) Mul(scalar float64) Vec3Float {
	return Vec3Float{X: v.X * scalar, Y: v.Y * scalar, Z: v.Z * scalar}
}

// Length возвращает длину вектора
func (v Vec3Float) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Floor возвращает воксель, в котором лежит точка
func (v Vec3Float) Floor() Vec3 {
	return Vec3{
		X: int(math.Floor(v.X)),
		Y: int(math.Floor(v.Y)),
		Z: int(math.Floor(v.Z)),
	}
}

// IsFinite проверяет, что все компоненты конечны
func (v Vec3Float) IsFinite() bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// Mgl преобразует вектор в mgl64.Vec3
func (v Vec3Float) Mgl() mgl64.Vec3 {
	return mgl64.Vec3{v.X, v.Y, v.Z}
}

// FromMgl создает Vec3Float из mgl64.Vec3
func FromMgl(m mgl64.Vec3) Vec3Float {
	return Vec3Float{X: m.X(), Y: m.Y(), Z: m.Z()}
}

// Array возвращает компоненты в виде массива [x, y, z]
func (v Vec3Float) Array() [3]float64 {
	return [3]float64{v.X, v.Y, v.Z}
}
