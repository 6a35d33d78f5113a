package vec

// Vec2 представляет горизонтальную колонку мира: X -> мировой X, Y -> мировой Z
type Vec2 struct {
	X, Y int
}

// At возвращает воксель колонки на высоте y
func (v Vec2) At(y int) Vec3 {
	return Vec3{X: v.X, Y: y, Z: v.Y}
}
