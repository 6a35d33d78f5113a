package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/annel0/voxel-sandbox/internal/logging"
	"github.com/annel0/voxel-sandbox/internal/world"
)

// ErrLoopStopped - цикл симуляции не принимает команды
var ErrLoopStopped = errors.New("цикл симуляции остановлен")

// CommandKind - тип команды для цикла симуляции
type CommandKind uint8

const (
	CmdSave CommandKind = iota
	CmdLoad
	CmdReset
	CmdBlocks
	CmdHUD
	CmdExec
)

// String возвращает имя команды
func (k CommandKind) String() string {
	switch k {
	case CmdSave:
		return "save"
	case CmdLoad:
		return "load"
	case CmdReset:
		return "reset"
	case CmdBlocks:
		return "blocks"
	case CmdHUD:
		return "hud"
	case CmdExec:
		return "exec"
	default:
		return "unknown"
	}
}

// Command выполняется в горутине симуляции; ответ приходит в Reply
type Command struct {
	Kind  CommandKind
	Fn    func(*Engine) // только для CmdExec
	Reply chan CommandResult
}

// CommandResult - ответ на команду
type CommandResult struct {
	Err    error
	Blocks []world.Entry
	HUD    HUD
}

// LoopOption настраивает Loop
type LoopOption func(*Loop)

// WithTickInterval задаёт период кадра
func WithTickInterval(d time.Duration) LoopOption {
	return func(l *Loop) { l.interval = d }
}

// WithHUDInterval задаёт период публикации HUD
func WithHUDInterval(d time.Duration) LoopOption {
	return func(l *Loop) { l.hudEvery = d }
}

// WithHUDListener вызывается из горутины симуляции при каждой публикации HUD
func WithHUDListener(fn func(HUD)) LoopOption {
	return func(l *Loop) { l.onHUD = fn }
}

// WithCommandTimeout ограничивает ручные сохранение и загрузку
func WithCommandTimeout(d time.Duration) LoopOption {
	return func(l *Loop) { l.cmdTimeout = d }
}

// Loop - безголовый цикл кадров: считает dt, опрашивает ввод, выполняет шаг
// и команды. Engine используется только из горутины Run.
type Loop struct {
	engine     *Engine
	input      InputSource
	interval   time.Duration
	hudEvery   time.Duration
	cmdTimeout time.Duration
	commands   chan Command
	hud        atomic.Pointer[HUD]
	onHUD      func(HUD)
	stopped    chan struct{}
	logger     *logging.Logger
}

// NewLoop создаёт цикл для движка e. input может быть nil - тогда игрок стоит на месте.
func NewLoop(e *Engine, input InputSource, opts ...LoopOption) *Loop {
	if input == nil {
		input = StaticInput{}
	}
	l := &Loop{
		engine:     e,
		input:      input,
		interval:   e.cfg.Simulation.TickInterval(),
		hudEvery:   e.cfg.Simulation.HUDInterval(),
		cmdTimeout: e.cfg.Persistence.Timeout(),
		commands:   make(chan Command, 16),
		stopped:    make(chan struct{}),
		logger:     logging.GetEngineLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}

	initial := e.HUD()
	l.hud.Store(&initial)
	return l
}

// Run крутит цикл до отмены ctx. Фоновый писатель автосохранений запускается
// и останавливается вместе с циклом; перед выходом мир автосохраняется.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.stopped)

	var writerDone <-chan struct{}
	writerCtx, stopWriter := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWriter()
	if w := l.engine.Writer(); w != nil {
		go w.Run(writerCtx)
		writerDone = w.Done()
	}

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.logger.Info("▶️ Цикл симуляции запущен (шаг %v)", l.interval)
	last := time.Now()
	lastHUD := last

	for {
		select {
		case <-ctx.Done():
			l.shutdown(stopWriter, writerDone)
			return ctx.Err()

		case cmd := <-l.commands:
			l.execute(ctx, cmd)

		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now

			frame := l.input.Poll()
			l.engine.Step(frame, dt)
			for _, h := range frame.Hotkeys {
				l.hotkey(ctx, h)
			}

			if now.Sub(lastHUD) >= l.hudEvery {
				lastHUD = now
				l.publishHUD()
			}
		}
	}
}

// shutdown отдаёт последнее состояние писателю и ждёт завершения записи
func (l *Loop) shutdown(stopWriter context.CancelFunc, writerDone <-chan struct{}) {
	e := l.engine
	if w := e.Writer(); w != nil {
		if data, err := e.encode(); err == nil {
			w.Submit(data)
		} else {
			l.logger.Error("❌ Ошибка кодирования финального сохранения: %v", err)
		}
	}
	stopWriter()
	if writerDone != nil {
		<-writerDone
	}
	l.logger.Info("⏹️ Цикл симуляции остановлен")
}

func (l *Loop) hotkey(ctx context.Context, h Hotkey) {
	var err error
	switch h {
	case HotkeySave:
		err = l.withTimeout(ctx, l.engine.Save)
	case HotkeyLoad:
		err = l.withTimeout(ctx, l.engine.Load)
	case HotkeyReset:
		err = l.withTimeout(ctx, l.engine.Reset)
	default:
		return
	}
	if err != nil {
		l.logger.Warn("⚠️ Горячая клавиша %s: %v", h, err)
	}
	l.publishHUD()
}

func (l *Loop) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, l.cmdTimeout)
	defer cancel()
	return fn(ctx)
}

func (l *Loop) execute(ctx context.Context, cmd Command) {
	var res CommandResult
	switch cmd.Kind {
	case CmdSave:
		res.Err = l.withTimeout(ctx, l.engine.Save)
	case CmdLoad:
		res.Err = l.withTimeout(ctx, l.engine.Load)
	case CmdReset:
		res.Err = l.withTimeout(ctx, l.engine.Reset)
	case CmdBlocks:
		res.Blocks = l.engine.Blocks()
	case CmdHUD:
	case CmdExec:
		if cmd.Fn != nil {
			cmd.Fn(l.engine)
		}
	default:
		res.Err = fmt.Errorf("неизвестная команда %d", cmd.Kind)
	}

	if cmd.Kind <= CmdReset {
		l.publishHUD()
	}
	res.HUD = l.engine.HUD()

	if cmd.Reply != nil {
		// Reply буферизован отправителем, поэтому цикл здесь не ждёт
		select {
		case cmd.Reply <- res:
		default:
			l.logger.Warn("⚠️ Ответ на команду %s некому принять", cmd.Kind)
		}
	}
}

func (l *Loop) publishHUD() {
	h := l.engine.HUD()
	l.hud.Store(&h)
	if l.onHUD != nil {
		l.onHUD(h)
	}
}

// HUD возвращает последний опубликованный снимок. Безопасен для любой горутины.
func (l *Loop) HUD() HUD {
	return *l.hud.Load()
}

// Submit ставит команду в очередь. Reply должен быть буферизованным.
func (l *Loop) Submit(ctx context.Context, cmd Command) error {
	select {
	case l.commands <- cmd:
		return nil
	case <-l.stopped:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do выполняет команду и ждёт ответа
func (l *Loop) Do(ctx context.Context, kind CommandKind) (CommandResult, error) {
	reply := make(chan CommandResult, 1)
	if err := l.Submit(ctx, Command{Kind: kind, Reply: reply}); err != nil {
		return CommandResult{}, err
	}
	return l.wait(ctx, reply)
}

// Exec выполняет fn в горутине симуляции и ждёт завершения.
// Уведомления об изменениях мира, вызванные после fn, гарантированно идут после неё.
func (l *Loop) Exec(ctx context.Context, fn func(*Engine)) error {
	reply := make(chan CommandResult, 1)
	if err := l.Submit(ctx, Command{Kind: CmdExec, Fn: fn, Reply: reply}); err != nil {
		return err
	}
	_, err := l.wait(ctx, reply)
	return err
}

func (l *Loop) wait(ctx context.Context, reply chan CommandResult) (CommandResult, error) {
	select {
	case res := <-reply:
		return res, res.Err
	case <-l.stopped:
		// Команда могла выполниться перед остановкой
		select {
		case res := <-reply:
			return res, res.Err
		default:
		}
		return CommandResult{}, ErrLoopStopped
	case <-ctx.Done():
		return CommandResult{}, ctx.Err()
	}
}

// Stopped закрывается после выхода из Run
func (l *Loop) Stopped() <-chan struct{} {
	return l.stopped
}
