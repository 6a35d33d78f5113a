package engine

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/annel0/voxel-sandbox/internal/config"
	"github.com/annel0/voxel-sandbox/internal/interaction"
	"github.com/annel0/voxel-sandbox/internal/logging"
	"github.com/annel0/voxel-sandbox/internal/persistence"
	"github.com/annel0/voxel-sandbox/internal/storage"
	"github.com/annel0/voxel-sandbox/internal/vec"
	"github.com/annel0/voxel-sandbox/internal/world"
	"github.com/annel0/voxel-sandbox/internal/world/block"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	opts := logging.DefaultOptions()
	opts.File = false
	opts.ConsoleLevel = logging.WARN
	logging.Configure(opts)
	os.Exit(m.Run())
}

// smallConfig - площадка 7x7 без деревьев, игрок стоит в колонке (0, 0)
func smallConfig() *config.Config {
	cfg := config.Default()
	cfg.World.Radius = 3
	cfg.World.Trees = 0
	cfg.World.Seed = 7
	cfg.World.Spawn = [3]float64{0.5, 1, 0.5}
	return cfg
}

const smallWorldBlocks = 7 * 7 * 3

var lookDown = vec.Vec3Float{Y: -1}

func newEngine(t *testing.T, cfg *config.Config, opts ...Option) *Engine {
	t.Helper()
	e, err := New(cfg, opts...)
	require.NoError(t, err)
	return e
}

func newPersistentEngine(t *testing.T, mem *storage.MemoryStore, opts ...Option) *Engine {
	t.Helper()
	svc := persistence.NewService(mem, "world", time.Second)
	return newEngine(t, smallConfig(), append([]Option{WithPersistence(svc), WithSynchronousAutosave()}, opts...)...)
}

func TestNew_RejectsBadConfig(t *testing.T) {
	cfg := smallConfig()
	cfg.Interaction.DefaultBlock = "air"
	_, err := New(cfg)
	assert.Error(t, err, "Воздух нельзя делать блоком по умолчанию")

	cfg = smallConfig()
	cfg.Interaction.DefaultBlock = "obsidian"
	_, err = New(cfg)
	assert.Error(t, err)

	cfg = smallConfig()
	cfg.Interaction.Placement = "sphere"
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestBoot_GeneratesWithoutPersistence(t *testing.T) {
	e := newEngine(t, config.Default())
	loaded := e.Boot(context.Background())

	assert.False(t, loaded)
	assert.GreaterOrEqual(t, e.BlockCount(), 37*37*3)
	assert.Equal(t, world.DefaultSpawn, e.PlayerPosition())
	assert.Equal(t, block.Grass, e.World().Get(vec.Vec3{X: 18, Y: 0, Z: -18}))
}

func TestBoot_FallsBackOnMalformedSave(t *testing.T) {
	mem := storage.NewMemoryStore()
	require.NoError(t, mem.Save(context.Background(), "world", []byte(`{"v":1,"blocks":"oops"}`)))

	e := newPersistentEngine(t, mem)
	assert.False(t, e.Boot(context.Background()), "Повреждённое сохранение трактуется как отсутствие")
	assert.Equal(t, smallWorldBlocks, e.BlockCount())
}

func TestSaveThenBoot_RestoresWorldAndPlayer(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStore()

	first := newPersistentEngine(t, mem)
	require.False(t, first.Boot(ctx))
	first.Step(InputFrame{AimDirection: lookDown, Break: true}, 0.016)
	require.Equal(t, smallWorldBlocks-1, first.BlockCount())
	require.NoError(t, first.Save(ctx))
	assert.Equal(t, "Saved. Blocks: 146", first.StatusText())

	second := newPersistentEngine(t, mem)
	require.True(t, second.Boot(ctx))
	assert.Equal(t, smallWorldBlocks-1, second.BlockCount())
	assert.Equal(t, block.Air, second.World().Get(vec.Vec3{}))
	assert.Equal(t, first.PlayerPosition(), second.PlayerPosition())
	assert.Equal(t, first.WorldID(), second.WorldID())
	assert.Equal(t, "Loaded save. Blocks: 146", second.StatusText())
}

func TestLoad_MissingSaveKeepsWorld(t *testing.T) {
	ctx := context.Background()
	e := newPersistentEngine(t, storage.NewMemoryStore())
	e.Boot(ctx)

	err := e.Load(ctx)
	assert.ErrorIs(t, err, storage.ErrSaveNotFound)
	assert.Equal(t, smallWorldBlocks, e.BlockCount())
}

func TestSaveLoad_WithoutPersistence(t *testing.T) {
	e := newEngine(t, smallConfig())
	e.Boot(context.Background())

	assert.ErrorIs(t, e.Save(context.Background()), ErrNoPersistence)
	assert.ErrorIs(t, e.Load(context.Background()), ErrNoPersistence)
	assert.NoError(t, e.Reset(context.Background()))
}

func TestStep_PlayerFallsOntoGround(t *testing.T) {
	e := newEngine(t, config.Default())
	e.Boot(context.Background())

	for i := 0; i < 60; i++ {
		e.Step(InputFrame{AimDirection: vec.Vec3Float{Z: -1}}, 0.05)
	}

	pos := e.PlayerPosition()
	assert.Equal(t, 1.0, pos.Y, "Игрок должен стоять на траве")
	assert.Equal(t, 0.0, pos.X)
	assert.Equal(t, 10.0, pos.Z)
	assert.True(t, e.Player().Grounded)
}

func TestStep_ClampsDT(t *testing.T) {
	e := newEngine(t, smallConfig())
	e.Boot(context.Background())

	assert.Equal(t, 0.05, e.Step(InputFrame{}, 1.0).DT)
	assert.Equal(t, 0.01, e.Step(InputFrame{}, 0.01).DT)
	assert.Equal(t, 0.0, e.Step(InputFrame{}, -1).DT)
}

func TestStep_WalkForward(t *testing.T) {
	e := newEngine(t, smallConfig())
	e.Boot(context.Background())
	e.Step(InputFrame{}, 0.01)

	start := e.PlayerPosition()
	e.Step(InputFrame{AimDirection: vec.Vec3Float{Z: -1}, Forward: true}, 0.05)

	pos := e.PlayerPosition()
	assert.InDelta(t, start.Z-physicsMoveDistance(0.05), pos.Z, 1e-9)
	assert.InDelta(t, start.X, pos.X, 1e-9)
}

func physicsMoveDistance(dt float64) float64 {
	return config.Default().Player.MoveSpeed * dt
}

func TestStep_BreakTargetsBlockBelow(t *testing.T) {
	rec := &world.ChangeRecorder{}
	e := newEngine(t, smallConfig(), WithListener(rec))
	e.Boot(context.Background())
	rec.Reset()

	res := e.Step(InputFrame{AimDirection: lookDown}, 0.016)
	require.True(t, res.HasTarget)
	assert.Equal(t, vec.Vec3{}, res.Target.Block)
	assert.Equal(t, vec.UnitY, res.Target.Normal)
	assert.Equal(t, "Target: (0,0,0)  | Blocks: 147", e.StatusText())

	res = e.Step(InputFrame{AimDirection: lookDown, Break: true}, 0.016)
	assert.True(t, res.BreakAttempted)
	assert.Equal(t, interaction.Applied, res.Break)
	assert.Equal(t, block.Air, e.World().Get(vec.Vec3{}))

	// Прицел обновляется в том же шаге
	assert.Equal(t, vec.Vec3{Y: -1}, res.Target.Block)
	require.Len(t, rec.Changes, 1)
	assert.Equal(t, world.ChangeRemoved, rec.Changes[0].Kind)
}

func TestStep_BreakWithoutTarget(t *testing.T) {
	e := newEngine(t, smallConfig())
	e.Boot(context.Background())

	res := e.Step(InputFrame{AimDirection: vec.Vec3Float{Y: 1}, Break: true}, 0.016)
	assert.False(t, res.HasTarget)
	assert.Equal(t, interaction.NoTarget, res.Break)
	assert.Equal(t, smallWorldBlocks, e.BlockCount())
	assert.Equal(t, "Blocks: 147", e.StatusText())
}

func TestStep_Place(t *testing.T) {
	e := newEngine(t, smallConfig())
	e.Boot(context.Background())

	frame := InputFrame{
		AimOrigin:    vec.Vec3Float{X: 2.5, Y: 3.5, Z: 0.5},
		HasAimOrigin: true,
		AimDirection: lookDown,
		Place:        true,
	}
	res := e.Step(frame, 0.016)
	assert.Equal(t, interaction.Applied, res.Place)
	assert.Equal(t, block.Dirt, e.World().Get(vec.Vec3{X: 2, Y: 1}), "По умолчанию ставится земля")

	frame.PlaceType = block.Stone
	res = e.Step(frame, 0.016)
	assert.Equal(t, interaction.Applied, res.Place)
	assert.Equal(t, block.Stone, e.World().Get(vec.Vec3{X: 2, Y: 2}))

	frame.PlaceType = block.Type(200)
	res = e.Step(frame, 0.016)
	assert.Equal(t, interaction.InvalidBlock, res.Place)
}

func TestStep_PlaceIntoPlayerRejected(t *testing.T) {
	e := newEngine(t, smallConfig())
	e.Boot(context.Background())
	e.Step(InputFrame{}, 0.016)

	res := e.Step(InputFrame{
		AimOrigin:    vec.Vec3Float{X: 0.5, Y: 5.5, Z: 0.5},
		HasAimOrigin: true,
		AimDirection: lookDown,
		Place:        true,
	}, 0.016)

	assert.Equal(t, interaction.Rejected, res.Place)
	assert.Equal(t, block.Air, e.World().Get(vec.Vec3{Y: 1}))
}

func TestStep_AutosaveSynchronous(t *testing.T) {
	mem := storage.NewMemoryStore()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	e := newPersistentEngine(t, mem, WithMetrics(m))
	e.Boot(context.Background())

	autosaves := 0
	for i := 0; i < 61; i++ {
		if e.Step(InputFrame{}, 0.05).Autosaved {
			autosaves++
		}
	}

	assert.Equal(t, 1, autosaves)
	data, err := mem.Load(context.Background(), "world")
	require.NoError(t, err)
	snap, err := persistence.Decode(data)
	require.NoError(t, err)
	assert.Len(t, snap.Blocks, smallWorldBlocks)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.saves.WithLabelValues(TriggerAutosave, "ok")))
	assert.Equal(t, 61.0, testutil.ToFloat64(m.steps))
}

func TestStep_AutosaveDisabled(t *testing.T) {
	mem := storage.NewMemoryStore()
	cfg := smallConfig()
	cfg.Simulation.AutosaveIntervalMs = 0
	e := newEngine(t, cfg, WithPersistence(persistence.NewService(mem, "world", time.Second)), WithSynchronousAutosave())
	e.Boot(context.Background())

	for i := 0; i < 100; i++ {
		assert.False(t, e.Step(InputFrame{}, 0.05).Autosaved)
	}
	_, err := mem.Load(context.Background(), "world")
	assert.ErrorIs(t, err, storage.ErrSaveNotFound)
}

func TestStatusText_NoticeExpires(t *testing.T) {
	e := newPersistentEngine(t, storage.NewMemoryStore())
	e.Boot(context.Background())
	require.NoError(t, e.Save(context.Background()))
	assert.Equal(t, "Saved. Blocks: 147", e.StatusText())

	for i := 0; i < 41; i++ {
		e.Step(InputFrame{AimDirection: vec.Vec3Float{Y: 1}}, 0.05)
	}
	assert.Equal(t, "Blocks: 147", e.StatusText())
}

func TestReset_RegeneratesAndSaves(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStore()
	e := newPersistentEngine(t, mem)
	e.Boot(ctx)
	oldID := e.WorldID()

	e.Step(InputFrame{
		AimOrigin:    vec.Vec3Float{X: 2.5, Y: 3.5, Z: 0.5},
		HasAimOrigin: true,
		AimDirection: lookDown,
		Place:        true,
	}, 0.016)
	require.NoError(t, e.Save(ctx))
	require.Equal(t, smallWorldBlocks+1, e.BlockCount())

	require.NoError(t, e.Reset(ctx))
	assert.Equal(t, smallWorldBlocks, e.BlockCount())
	assert.Equal(t, block.Air, e.World().Get(vec.Vec3{X: 2, Y: 1}))
	assert.NotEqual(t, oldID, e.WorldID())
	assert.Equal(t, vec.Vec3Float{X: 0.5, Y: 1, Z: 0.5}, e.PlayerPosition())

	data, err := mem.Load(ctx, "world")
	require.NoError(t, err)
	snap, err := persistence.Decode(data)
	require.NoError(t, err)
	assert.Len(t, snap.Blocks, smallWorldBlocks)
	assert.Equal(t, e.WorldID(), snap.WorldID)
}

func TestMetrics_Interactions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	e := newEngine(t, smallConfig(), WithMetrics(m))
	e.Boot(context.Background())

	e.Step(InputFrame{AimDirection: lookDown, Break: true}, 0.016)
	e.Step(InputFrame{AimDirection: vec.Vec3Float{Y: 1}, Place: true}, 0.016)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.interactions.WithLabelValues("break", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.interactions.WithLabelValues("place", "no_target")))
	assert.Equal(t, float64(smallWorldBlocks-1), testutil.ToFloat64(m.blocks))
}

func TestHUD_Snapshot(t *testing.T) {
	e := newEngine(t, smallConfig())
	e.Boot(context.Background())
	e.Step(InputFrame{AimDirection: lookDown}, 0.016)

	h := e.HUD()
	assert.Equal(t, uint64(1), h.Tick)
	assert.True(t, h.HasTarget)
	assert.Equal(t, [3]int{0, 0, 0}, h.Target)
	assert.Equal(t, [3]int{0, 1, 0}, h.Normal)
	assert.Equal(t, smallWorldBlocks, h.Blocks)
	assert.Equal(t, e.WorldID(), h.WorldID)
	assert.Equal(t, e.StatusText(), h.Status)
}

// slowFirstSave задерживает первую запись в хранилище до закрытия release
type slowFirstSave struct {
	*storage.MemoryStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (s *slowFirstSave) Save(ctx context.Context, slot string, data []byte) error {
	first := false
	s.once.Do(func() { first = true })
	if first {
		close(s.entered)
		<-s.release
	}
	return s.MemoryStore.Save(ctx, slot, data)
}

func TestReset_NotOverwrittenByQueuedAutosave(t *testing.T) {
	store := &slowFirstSave{
		MemoryStore: storage.NewMemoryStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	cfg := smallConfig()
	cfg.Simulation.AutosaveIntervalMs = 50
	e := newEngine(t, cfg, WithPersistence(persistence.NewService(store, "world", 5*time.Second)))
	e.Boot(context.Background())
	require.NotNil(t, e.Writer())

	writerCtx, stopWriter := context.WithCancel(context.Background())
	go e.Writer().Run(writerCtx)

	// Первое автосохранение застревает в хранилище
	require.True(t, e.Step(InputFrame{AimDirection: lookDown}, 0.05).Autosaved)
	<-store.entered

	// Второе, уже без сломанного блока, ждёт в очереди
	res := e.Step(InputFrame{AimDirection: lookDown, Break: true}, 0.05)
	require.Equal(t, interaction.Applied, res.Break)
	require.True(t, res.Autosaved)

	done := make(chan error, 1)
	go func() { done <- e.Reset(context.Background()) }()
	close(store.release)
	require.NoError(t, <-done)

	stopWriter()
	<-e.Writer().Done()

	data, err := store.Load(context.Background(), "world")
	require.NoError(t, err)
	snap, err := persistence.Decode(data)
	require.NoError(t, err)
	assert.Len(t, snap.Blocks, e.BlockCount(), "После сброса в слоте должен лежать новый мир")
	assert.Equal(t, e.WorldID(), snap.WorldID)
}

func TestReplaceWorld_FramedAsBatch(t *testing.T) {
	ctx := context.Background()
	rec := &world.ChangeRecorder{}
	e := newPersistentEngine(t, storage.NewMemoryStore(), WithListener(rec))
	e.Boot(ctx)
	assert.Equal(t, 1, rec.Batches, "Генерация при старте - одна замена мира")
	assert.Equal(t, e.WorldID(), rec.LastBatch)

	rec.Reset()
	require.NoError(t, e.Reset(ctx))
	assert.Equal(t, 1, rec.Batches)
	assert.Equal(t, e.WorldID(), rec.LastBatch, "Итог замены приходит с новым WorldID")

	rec.Reset()
	require.NoError(t, e.Load(ctx))
	assert.Equal(t, 1, rec.Batches)
	assert.Equal(t, 1, rec.Clears)
	assert.Len(t, rec.Changes, smallWorldBlocks)

	// Обычное взаимодействие не обрамляется
	rec.Reset()
	e.Step(InputFrame{AimDirection: lookDown, Break: true}, 0.016)
	assert.Equal(t, 0, rec.Batches)
	assert.Len(t, rec.Changes, 1)
}
