package physics

import (
	"math"

	"github.com/annel0/voxel-sandbox/internal/vec"
	"github.com/annel0/voxel-sandbox/internal/world"
)

// Физические константы по умолчанию
const (
	DefaultGravity       = 28.0
	DefaultJumpSpeed     = 11.0
	DefaultMoveSpeed     = 9.0
	DefaultGroundEpsilon = 0.05
	DefaultWorldFloor    = -30.0
	DefaultMaxStep       = 0.05 // Максимальный шаг симуляции, секунды
)

// wallSkin - зазор по вертикали, чтобы стены не цеплялись за пол и потолок
const wallSkin = 1e-3

// Params задаёт параметры разрешения столкновений
type Params struct {
	Gravity       float64
	JumpSpeed     float64
	GroundEpsilon float64
	WorldFloor    float64

	// HeadBump останавливает подъём при упоре головой в блок
	HeadBump bool

	// WallCollision включает горизонтальные столкновения со стенами.
	// По умолчанию выключено: горизонтальное смещение применяется без проверок.
	WallCollision bool
}

// DefaultParams возвращает параметры по умолчанию
func DefaultParams() Params {
	return Params{
		Gravity:       DefaultGravity,
		JumpSpeed:     DefaultJumpSpeed,
		GroundEpsilon: DefaultGroundEpsilon,
		WorldFloor:    DefaultWorldFloor,
	}
}

// StepReport описывает, что произошло за шаг
type StepReport struct {
	Jumped     bool
	Landed     bool // Переход из полёта на землю
	HeadBumped bool
	WallHit    bool
	Respawned  bool
}

// CollisionResolver перемещает игрока и разрешает столкновения с миром
type CollisionResolver struct {
	params Params
	spawn  vec.Vec3Float
}

// NewCollisionResolver создаёт резолвер с точкой возрождения spawn
func NewCollisionResolver(params Params, spawn vec.Vec3Float) *CollisionResolver {
	return &CollisionResolver{params: params, spawn: spawn}
}

// Params возвращает текущие параметры
func (r *CollisionResolver) Params() Params {
	return r.params
}

// Spawn возвращает точку возрождения
func (r *CollisionResolver) Spawn() vec.Vec3Float {
	return r.spawn
}

// SetSpawn задаёт точку возрождения
func (r *CollisionResolver) SetSpawn(spawn vec.Vec3Float) {
	r.spawn = spawn
}

// Step выполняет один шаг симуляции игрока.
//
// Порядок: горизонтальное смещение, гравитация, прыжок (только если тело стояло
// на земле в начале шага), интегрирование по Y, опора под ногами, потолок,
// возврат на спавн при падении ниже пола мира.
func (r *CollisionResolver) Step(body *Body, horizontal vec.Vec2Float, jump bool, dt float64, store world.Reader) StepReport {
	var report StepReport
	wasGrounded := body.Grounded

	// 1. Горизонталь
	if r.params.WallCollision {
		report.WallHit = r.moveWithWalls(body, horizontal, store)
	} else {
		body.Position.X += horizontal.X
		body.Position.Z += horizontal.Y
	}

	// 2. Гравитация
	body.VelocityY -= r.params.Gravity * dt

	// 3. Прыжок
	if jump && wasGrounded {
		body.VelocityY = r.params.JumpSpeed
		body.Grounded = false
		report.Jumped = true
	}

	// 4. Интегрирование
	body.Position.Y += body.VelocityY * dt

	// 5. Земля
	r.resolveGround(body, store)
	report.Landed = body.Grounded && !wasGrounded

	// Потолок
	if r.params.HeadBump && r.resolveHead(body, store) {
		report.HeadBumped = true
		// Проём ниже роста игрока: ноги не уходят под верх опоры
		r.resolveGround(body, store)
	}

	// 6. Падение за пределы мира
	if body.Position.Y < r.params.WorldFloor {
		body.Teleport(r.spawn)
		report.Respawned = true
	}

	return report
}

// resolveGround ставит ноги на верх блока под ними
func (r *CollisionResolver) resolveGround(body *Body, store world.Reader) {
	below := vec.Vec3Float{
		X: body.Position.X,
		Y: body.Position.Y - r.params.GroundEpsilon,
		Z: body.Position.Z,
	}.Floor()

	if !store.IsSolid(below) {
		body.Grounded = false
		return
	}

	top := float64(below.Y + 1)
	// Поднимающееся тело над верхом блока не притягивается обратно
	if body.VelocityY > 0 && body.Position.Y >= top {
		body.Grounded = false
		return
	}

	body.Position.Y = top
	body.VelocityY = math.Max(body.VelocityY, 0)
	body.Grounded = true
}

// resolveHead опускает тело под блок над головой
func (r *CollisionResolver) resolveHead(body *Body, store world.Reader) bool {
	if body.VelocityY <= 0 {
		return false
	}
	head := body.HeadVoxel()
	if !store.IsSolid(head) {
		return false
	}

	body.Position.Y = float64(head.Y) - body.Height
	body.VelocityY = 0
	return true
}

// moveWithWalls применяет смещение по осям X и Z раздельно и откатывает ось,
// на которой объём игрока пересёк твёрдый воксель
func (r *CollisionResolver) moveWithWalls(body *Body, horizontal vec.Vec2Float, store world.Reader) bool {
	hit := false

	if horizontal.X != 0 {
		body.Position.X += horizontal.X
		if r.intersectsSolid(body, store) {
			body.Position.X -= horizontal.X
			hit = true
		}
	}
	if horizontal.Y != 0 {
		body.Position.Z += horizontal.Y
		if r.intersectsSolid(body, store) {
			body.Position.Z -= horizontal.Y
			hit = true
		}
	}

	return hit
}

func (r *CollisionResolver) intersectsSolid(body *Body, store world.Reader) bool {
	x0, x1 := voxelRange(body.Position.X-body.Radius, body.Position.X+body.Radius)
	y0, y1 := voxelRange(body.Position.Y+wallSkin, body.Position.Y+body.Height-wallSkin)
	z0, z1 := voxelRange(body.Position.Z-body.Radius, body.Position.Z+body.Radius)

	for x := x0; x <= x1; x++ {
		for y := y0; y <= y1; y++ {
			for z := z0; z <= z1; z++ {
				if store.IsSolid(vec.Vec3{X: x, Y: y, Z: z}) {
					return true
				}
			}
		}
	}
	return false
}
