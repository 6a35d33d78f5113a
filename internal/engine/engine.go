// Package engine связывает мир, физику игрока, взаимодействие и сохранения
// в один шаг симуляции.
//
// Engine не потокобезопасен: все методы, кроме AutosaveResult, вызываются
// из одной горутины (см. Loop).
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/annel0/voxel-sandbox/internal/config"
	"github.com/annel0/voxel-sandbox/internal/eventbus"
	"github.com/annel0/voxel-sandbox/internal/interaction"
	"github.com/annel0/voxel-sandbox/internal/logging"
	"github.com/annel0/voxel-sandbox/internal/persistence"
	"github.com/annel0/voxel-sandbox/internal/physics"
	"github.com/annel0/voxel-sandbox/internal/storage"
	"github.com/annel0/voxel-sandbox/internal/vec"
	"github.com/annel0/voxel-sandbox/internal/world"
	"github.com/annel0/voxel-sandbox/internal/world/block"
	"github.com/google/uuid"
)

// ErrNoPersistence - движок создан без хранилища сохранений
var ErrNoPersistence = errors.New("сохранения не настроены")

// noticeDuration - сколько секунд симуляции HUD показывает сообщение о сохранении/загрузке
const noticeDuration = 2.0

// Trigger - источник сохранения
const (
	TriggerManual   = "manual"
	TriggerAutosave = "autosave"
	TriggerReset    = "reset"
)

// StepResult описывает результат одного шага
type StepResult struct {
	DT        float64 // Фактический шаг после ограничения
	Physics   physics.StepReport
	Target    physics.Target
	HasTarget bool

	BreakAttempted bool
	Break          interaction.Outcome
	PlaceAttempted bool
	Place          interaction.Outcome

	Autosaved bool
}

// Option настраивает Engine
type Option func(*Engine)

// WithPersistence подключает сервис сохранений
func WithPersistence(svc *persistence.Service) Option {
	return func(e *Engine) { e.persist = svc }
}

// WithSynchronousAutosave пишет автосохранения прямо в шаге, без фонового писателя
func WithSynchronousAutosave() Option {
	return func(e *Engine) { e.syncAutosave = true }
}

// WithListener добавляет получателя уведомлений об изменениях мира
func WithListener(l world.Listener) Option {
	return func(e *Engine) { e.listeners = append(e.listeners, l) }
}

// WithPublisher публикует изменения мира, сохранения и загрузки в шину событий
func WithPublisher(p *eventbus.WorldPublisher) Option {
	return func(e *Engine) {
		e.publisher = p
		e.listeners = append(e.listeners, p)
	}
}

// WithMetrics подключает Prometheus-метрики
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock подменяет источник времени для меток сохранений
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine - владелец мира и игрока
type Engine struct {
	cfg *config.Config

	store     *world.MapStore
	listeners world.Fanout
	generator *world.WorldGenerator
	spawn     vec.Vec3Float

	body     *physics.Body
	resolver *physics.CollisionResolver
	rules    *interaction.Rules

	reach        float64
	moveSpeed    float64
	maxStep      float64
	eyeHeight    float64
	placeDefault block.Type

	persist      *persistence.Service
	writer       *persistence.Writer
	syncAutosave bool
	autosaveSec  float64
	sinceSave    float64

	publisher *eventbus.WorldPublisher
	metrics   *Metrics
	logger    *logging.Logger
	now       func() time.Time

	worldID string
	tick    uint64

	aimOrigin vec.Vec3Float
	aimDir    vec.Vec3Float
	target    physics.Target
	hasTarget bool

	notice     string
	noticeLeft float64
}

// New создаёт движок по конфигурации. Мир остаётся пустым до Boot.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("некорректная конфигурация: %w", err)
	}

	mode, ok := interaction.ParsePlacementMode(cfg.Interaction.Placement)
	if !ok {
		return nil, fmt.Errorf("неизвестный режим установки %q", cfg.Interaction.Placement)
	}
	placeDefault := block.Dirt
	if cfg.Interaction.DefaultBlock != "" {
		t, err := block.Parse(cfg.Interaction.DefaultBlock)
		if err != nil {
			return nil, fmt.Errorf("interaction.default_block: %w", err)
		}
		if !block.IsPlaceable(t) {
			return nil, fmt.Errorf("interaction.default_block: блок %s нельзя устанавливать", t)
		}
		placeDefault = t
	}

	spawn := vec.Vec3Float{X: cfg.World.Spawn[0], Y: cfg.World.Spawn[1], Z: cfg.World.Spawn[2]}
	params := physics.Params{
		Gravity:       cfg.Physics.Gravity,
		JumpSpeed:     cfg.Physics.JumpSpeed,
		GroundEpsilon: cfg.Physics.GroundEpsilon,
		WorldFloor:    cfg.Physics.WorldFloor,
		HeadBump:      cfg.Physics.HeadBump,
		WallCollision: cfg.Physics.WallCollision,
	}

	e := &Engine{
		cfg: cfg,
		generator: world.NewWorldGenerator(world.GeneratorConfig{
			Radius:           cfg.World.Radius,
			Trees:            cfg.World.Trees,
			TreeRange:        cfg.World.TreeRange,
			TrunkHeight:      cfg.World.TrunkHeight,
			Seed:             cfg.World.Seed,
			ClusterThreshold: cfg.World.ClusterThreshold,
			ClusterScale:     cfg.World.ClusterScale,
			Spawn:            spawn,
		}),
		spawn:        spawn,
		body:         physics.NewBody(spawn, cfg.Player.Radius, cfg.Player.Height),
		resolver:     physics.NewCollisionResolver(params, spawn),
		rules:        interaction.NewRules(mode),
		reach:        cfg.Interaction.Reach,
		moveSpeed:    cfg.Player.MoveSpeed,
		maxStep:      cfg.Simulation.MaxStep().Seconds(),
		eyeHeight:    cfg.Player.EyeHeight,
		placeDefault: placeDefault,
		autosaveSec:  cfg.Simulation.AutosaveInterval().Seconds(),
		logger:       logging.GetEngineLogger(),
		now:          time.Now,
		worldID:      uuid.NewString(),
		aimDir:       vec.Vec3Float{Z: -1},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(nil)
	}

	e.store = world.NewMapStore(e.listeners)
	if e.persist != nil && !e.syncAutosave {
		e.writer = persistence.NewWriter(e.persist, e.AutosaveResult)
	}
	e.aimOrigin = e.eyePoint()
	return e, nil
}

// Writer возвращает фоновый писатель автосохранений или nil
func (e *Engine) Writer() *persistence.Writer {
	return e.writer
}

// Boot загружает сохранение, а если его нет или оно повреждено, генерирует новый мир.
// Возвращает true, если мир загружен из сохранения.
func (e *Engine) Boot(ctx context.Context) bool {
	if e.persist != nil {
		err := e.Load(ctx)
		if err == nil {
			return true
		}
		switch {
		case errors.Is(err, storage.ErrSaveNotFound):
			e.logger.Info("Сохранение не найдено, генерируем новый мир")
		case errors.Is(err, persistence.ErrMalformedSaveData):
			e.logger.Warn("⚠️ Сохранение повреждено, генерируем новый мир: %v", err)
		default:
			e.logger.Error("❌ Не удалось прочитать сохранение, генерируем новый мир: %v", err)
		}
	}

	e.generate()
	e.logger.Info("🌍 Мир сгенерирован: %d блоков", e.store.Count())
	return false
}

// generate очищает мир, строит новый и ставит игрока на спавн
func (e *Engine) generate() {
	e.replaceWorld(func() {
		e.store.Clear()
		e.spawn = e.generator.Generate(e.store)
		e.resolver.SetSpawn(e.spawn)
		e.body.Teleport(e.spawn)
		e.worldID = uuid.NewString()
	})
	e.sinceSave = 0
	e.metrics.blocks.Set(float64(e.store.Count()))
	e.retarget()
}

// replaceWorld обрамляет целиковую замену мира уведомлениями BatchListener.
// Слушатели получают итог уже с новым WorldID и позицией игрока.
func (e *Engine) replaceWorld(fn func()) {
	e.listeners.OnBatchStart()
	fn()
	e.listeners.OnBatchEnd(world.Batch{
		WorldID: e.worldID,
		Player:  e.body.Position,
		Store:   e.store,
	})
}

// Step выполняет один шаг симуляции.
//
// Порядок: ограничение dt, движение, прицел, разрушение, установка,
// повторный прицел после изменения мира, учёт автосохранения.
func (e *Engine) Step(in InputFrame, dt float64) StepResult {
	started := time.Now()
	elapsed := dt
	if math.IsNaN(elapsed) || elapsed < 0 {
		elapsed = 0
	}
	dt = e.clampDT(dt)
	e.tick++

	res := StepResult{DT: dt}

	if in.AimDirection.IsFinite() && in.AimDirection.Length() > 0 {
		e.aimDir = in.AimDirection
	}
	horizontal := MoveVector(e.aimDir, in, e.moveSpeed*dt)
	res.Physics = e.resolver.Step(e.body, horizontal, in.Jump, dt, e.store)
	if res.Physics.Respawned {
		e.metrics.respawns.Inc()
		e.logger.Debug("Игрок упал ниже пола мира, возврат на %v", e.spawn)
	}

	if in.HasAimOrigin && in.AimOrigin.IsFinite() {
		e.aimOrigin = in.AimOrigin
	} else {
		e.aimOrigin = e.eyePoint()
	}
	e.retarget()

	if in.Break {
		res.BreakAttempted = true
		res.Break = e.rules.ApplyBreak(e.target, e.hasTarget, e.store)
		e.metrics.interactions.WithLabelValues("break", res.Break.String()).Inc()
		if res.Break == interaction.Applied {
			e.retarget()
		}
	}
	if in.Place {
		placing := in.PlaceType
		if placing == block.Air {
			placing = e.placeDefault
		}
		res.PlaceAttempted = true
		res.Place = e.rules.ApplyPlace(e.target, e.hasTarget, placing, e.body, e.store)
		e.metrics.interactions.WithLabelValues("place", res.Place.String()).Inc()
		if res.Place == interaction.Applied {
			e.retarget()
		}
	}

	res.Target, res.HasTarget = e.target, e.hasTarget
	res.Autosaved = e.autosaveTick(elapsed)

	if e.noticeLeft > 0 {
		e.noticeLeft -= elapsed
	}

	e.metrics.steps.Inc()
	e.metrics.blocks.Set(float64(e.store.Count()))
	e.metrics.stepDuration.Observe(time.Since(started).Seconds())
	return res
}

func (e *Engine) clampDT(dt float64) float64 {
	if math.IsNaN(dt) || dt < 0 {
		return 0
	}
	if dt > e.maxStep {
		return e.maxStep
	}
	return dt
}

func (e *Engine) eyePoint() vec.Vec3Float {
	return e.body.Position.Add(vec.Vec3Float{Y: e.eyeHeight})
}

func (e *Engine) retarget() {
	e.target, e.hasTarget = physics.CastRay(e.aimOrigin, e.aimDir, e.reach, e.store)
}

// autosaveTick отсчитывает время до автосохранения и отдаёт запись писателю
func (e *Engine) autosaveTick(elapsed float64) bool {
	if e.persist == nil || e.autosaveSec <= 0 {
		return false
	}
	e.sinceSave += elapsed
	if e.sinceSave < e.autosaveSec {
		return false
	}
	e.sinceSave = 0

	data, err := e.encode()
	if err != nil {
		e.logger.Error("❌ Ошибка кодирования автосохранения: %v", err)
		e.metrics.ObserveSave(TriggerAutosave, err)
		return false
	}

	if e.writer != nil {
		e.writer.Submit(data)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.Persistence.Timeout())
	defer cancel()
	err = e.persist.Save(ctx, data)
	e.AutosaveResult(len(data), err)
	return err == nil
}

// AutosaveResult учитывает завершённую запись автосохранения.
// Безопасен для вызова из горутины писателя.
func (e *Engine) AutosaveResult(size int, err error) {
	e.metrics.ObserveSave(TriggerAutosave, err)
	if err != nil {
		return
	}
	if e.publisher != nil {
		e.publisher.PublishSaved(eventbus.WorldSavedPayload{
			Slot:    e.persist.Slot(),
			Bytes:   size,
			Trigger: TriggerAutosave,
		})
	}
}

func (e *Engine) encode() ([]byte, error) {
	return persistence.EncodeBytes(e.store, e.body.Position, e.worldID, e.now())
}

// Save сохраняет мир немедленно
func (e *Engine) Save(ctx context.Context) error {
	return e.save(ctx, TriggerManual)
}

func (e *Engine) save(ctx context.Context, trigger string) error {
	if e.persist == nil {
		return ErrNoPersistence
	}

	data, err := e.encode()
	if err != nil {
		e.metrics.ObserveSave(trigger, err)
		return fmt.Errorf("ошибка кодирования сохранения: %w", err)
	}
	err = e.exclusive(ctx, func(ctx context.Context) error {
		return e.persist.Save(ctx, data)
	})
	e.metrics.ObserveSave(trigger, err)
	if err != nil {
		e.logger.Error("❌ Сохранение не удалось: %v", err)
		return err
	}

	n := e.store.Count()
	e.sinceSave = 0
	e.setNotice(fmt.Sprintf("Saved. Blocks: %d", n))
	e.logger.Info("💾 Мир сохранён (%s): %d блоков, %d байт", trigger, n, len(data))
	if e.publisher != nil {
		e.publisher.PublishSaved(eventbus.WorldSavedPayload{
			Slot:    e.persist.Slot(),
			Blocks:  n,
			Bytes:   len(data),
			Trigger: trigger,
		})
	}
	return nil
}

// Load заменяет мир содержимым сохранения. При ошибке мир не меняется.
func (e *Engine) Load(ctx context.Context) error {
	if e.persist == nil {
		return ErrNoPersistence
	}

	var snap *persistence.Snapshot
	err := e.exclusive(ctx, func(ctx context.Context) error {
		var err error
		snap, err = e.persist.LoadSnapshot(ctx)
		return err
	})
	if err != nil {
		return err
	}

	e.replaceWorld(func() {
		snap.Apply(e.store)
		if snap.HasPlayer {
			e.body.Teleport(snap.Player)
		}
		if snap.WorldID != "" {
			e.worldID = snap.WorldID
		}
	})
	e.sinceSave = 0
	e.retarget()
	e.metrics.blocks.Set(float64(e.store.Count()))

	e.setNotice(fmt.Sprintf("Loaded save. Blocks: %d", len(snap.Blocks)))
	e.logger.Info("📂 Сохранение загружено: %d блоков", len(snap.Blocks))
	if e.publisher != nil {
		e.publisher.PublishLoaded(eventbus.WorldLoadedPayload{Blocks: len(snap.Blocks), Origin: "save"})
	}
	return nil
}

// Reset удаляет сохранение, генерирует мир заново и сразу сохраняет его
func (e *Engine) Reset(ctx context.Context) error {
	if e.persist != nil {
		if err := e.exclusive(ctx, e.persist.Delete); err != nil && !errors.Is(err, storage.ErrSaveNotFound) {
			e.logger.Warn("⚠️ Не удалось удалить сохранение: %v", err)
		}
	}

	e.generate()
	e.logger.Info("🔄 Мир сброшен: %d блоков", e.store.Count())
	if e.publisher != nil {
		e.publisher.PublishLoaded(eventbus.WorldLoadedPayload{Blocks: e.store.Count(), Origin: "generated"})
	}

	if e.persist == nil {
		return nil
	}
	return e.save(ctx, TriggerReset)
}

// exclusive выполняет операцию со слотом так, чтобы устаревшие автосохранения
// не легли поверх её результата
func (e *Engine) exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	if e.writer == nil {
		return fn(ctx)
	}
	return e.writer.Exclusive(ctx, fn)
}

func (e *Engine) setNotice(text string) {
	e.notice = text
	e.noticeLeft = noticeDuration
}

// CurrentTarget возвращает блок под прицелом, вычисленный на последнем шаге
func (e *Engine) CurrentTarget() (physics.Target, bool) {
	return e.target, e.hasTarget
}

// PlayerPosition возвращает позицию ног игрока
func (e *Engine) PlayerPosition() vec.Vec3Float {
	return e.body.Position
}

// Player возвращает тело игрока
func (e *Engine) Player() *physics.Body {
	return e.body
}

// BlockCount возвращает число непустых вокселей
func (e *Engine) BlockCount() int {
	return e.store.Count()
}

// Blocks возвращает копию всех непустых вокселей
func (e *Engine) Blocks() []world.Entry {
	return world.Snapshot(e.store)
}

// World возвращает хранилище только для чтения
func (e *Engine) World() world.Reader {
	return e.store
}

// WorldID возвращает идентификатор текущего мира
func (e *Engine) WorldID() string {
	return e.worldID
}

// StatusText возвращает строку состояния для HUD
func (e *Engine) StatusText() string {
	if e.noticeLeft > 0 {
		return e.notice
	}
	if e.hasTarget {
		b := e.target.Block
		return fmt.Sprintf("Target: (%d,%d,%d)  | Blocks: %d", b.X, b.Y, b.Z, e.store.Count())
	}
	return fmt.Sprintf("Blocks: %d", e.store.Count())
}
