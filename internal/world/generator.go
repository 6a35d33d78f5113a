package world

import (
	"math/rand"
	"time"

	"github.com/annel0/voxel-sandbox/internal/util"
	"github.com/annel0/voxel-sandbox/internal/vec"
	"github.com/annel0/voxel-sandbox/internal/world/block"
)

// Значения генерации по умолчанию
const (
	DefaultRadius      = 18  // Полуразмер мира по X и Z
	DefaultTrees       = 10  // Количество стволов
	DefaultTreeRange   = 9   // Стволы ставятся в [-TreeRange, TreeRange)
	DefaultTrunkHeight = 4   // Высота ствола, начиная с y=1
	defaultNoiseScale  = 0.15
	defaultRerolls     = 4
)

// DefaultSpawn - точка появления игрока над сгенерированным ландшафтом
var DefaultSpawn = vec.Vec3Float{X: 0, Y: 4, Z: 10}

// Слои ландшафта сверху вниз
var terrainLayers = [...]struct {
	y int
	t block.Type
}{
	{0, block.Grass},
	{-1, block.Dirt},
	{-2, block.Stone},
}

// GeneratorConfig задаёт параметры генерации
type GeneratorConfig struct {
	Radius      int
	Trees       int
	TreeRange   int
	TrunkHeight int
	Seed        int64 // 0 - сид по времени

	// ClusterThreshold - порог шума, ниже которого кандидат на ствол перебрасывается.
	// 0 отключает кластеризацию.
	ClusterThreshold float64
	ClusterScale     float64

	Spawn vec.Vec3Float
}

// DefaultGeneratorConfig возвращает параметры по умолчанию
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Radius:           DefaultRadius,
		Trees:            DefaultTrees,
		TreeRange:        DefaultTreeRange,
		TrunkHeight:      DefaultTrunkHeight,
		ClusterThreshold: 0.45,
		ClusterScale:     defaultNoiseScale,
		Spawn:            DefaultSpawn,
	}
}

// WorldGenerator генерирует стартовое содержимое мира
type WorldGenerator struct {
	cfg   GeneratorConfig
	rng   *rand.Rand
	noise *util.NoiseField
}

// NewWorldGenerator создаёт новый генератор мира
func NewWorldGenerator(cfg GeneratorConfig) *WorldGenerator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if cfg.TrunkHeight <= 0 {
		cfg.TrunkHeight = DefaultTrunkHeight
	}

	return &WorldGenerator{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(seed)),
		noise: util.NewNoiseField(seed, cfg.ClusterScale),
	}
}

// Generate заполняет хранилище ландшафтом и стволами и возвращает точку появления.
// Хранилище предварительно не очищается.
func (wg *WorldGenerator) Generate(store BlockStore) vec.Vec3Float {
	r := wg.cfg.Radius
	for x := -r; x <= r; x++ {
		for z := -r; z <= r; z++ {
			for _, layer := range terrainLayers {
				store.Set(vec.Vec3{X: x, Y: layer.y, Z: z}, layer.t)
			}
		}
	}

	for i := 0; i < wg.cfg.Trees; i++ {
		col, ok := wg.pickTrunkColumn()
		if !ok {
			continue
		}
		for y := 1; y <= wg.cfg.TrunkHeight; y++ {
			store.Set(col.At(y), block.Wood)
		}
	}

	return wg.cfg.Spawn
}

// pickTrunkColumn выбирает колонку для ствола с учётом шума и колонки спавна
func (wg *WorldGenerator) pickTrunkColumn() (vec.Vec2, bool) {
	span := 2 * wg.cfg.TreeRange
	if span <= 0 {
		return vec.Vec2{}, false
	}
	spawnCol := wg.cfg.Spawn.Floor().ToVec2()

	var col vec.Vec2
	for attempt := 0; attempt <= defaultRerolls; attempt++ {
		col = vec.Vec2{
			X: wg.rng.Intn(span) - wg.cfg.TreeRange,
			Y: wg.rng.Intn(span) - wg.cfg.TreeRange,
		}
		if col == spawnCol {
			continue
		}
		if wg.cfg.ClusterThreshold <= 0 ||
			wg.noise.At(float64(col.X), float64(col.Y)) >= wg.cfg.ClusterThreshold {
			return col, true
		}
	}

	// Исчерпали попытки: принимаем последнего кандидата, если он не на спавне
	return col, col != spawnCol
}
