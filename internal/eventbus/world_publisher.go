package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/voxel-sandbox/internal/logging"
	"github.com/annel0/voxel-sandbox/internal/vec"
	"github.com/annel0/voxel-sandbox/internal/world"
	"github.com/annel0/voxel-sandbox/internal/world/block"
)

// publishTimeout ограничивает ожидание шины для одного события мира
const publishTimeout = 50 * time.Millisecond

// DefaultPublishQueue - размер очереди WorldPublisher по умолчанию
const DefaultPublishQueue = 1024

// WorldPublisher реализует world.Listener и публикует изменения мира в шину.
//
// Уведомления только ставятся в очередь: публикация идёт в отдельной горутине,
// поэтому шаг симуляции не ждёт ни NATS, ни переполненных подписчиков.
// При полной очереди событие отбрасывается. Поблочные события массовой замены
// мира не публикуются, её итог описывает WorldLoaded.
type WorldPublisher struct {
	bus    EventBus
	source string
	queue  chan *Envelope
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once

	batching atomic.Bool
	dropped  atomic.Uint64
	logger   *logging.Logger
}

// NewWorldPublisher создаёт издателя с очередью DefaultPublishQueue и запускает его горутину
func NewWorldPublisher(bus EventBus, source string) *WorldPublisher {
	return NewWorldPublisherWithQueue(bus, source, DefaultPublishQueue)
}

// NewWorldPublisherWithQueue создаёт издателя с очередью заданного размера
func NewWorldPublisherWithQueue(bus EventBus, source string, size int) *WorldPublisher {
	if size <= 0 {
		size = DefaultPublishQueue
	}
	p := &WorldPublisher{
		bus:    bus,
		source: source,
		queue:  make(chan *Envelope, size),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logging.GetComponentLogger("eventbus"),
	}
	go p.run()
	return p
}

var (
	_ world.Listener      = (*WorldPublisher)(nil)
	_ world.BatchListener = (*WorldPublisher)(nil)
)

// OnBlockChanged публикует BlockChanged
func (p *WorldPublisher) OnBlockChanged(pos vec.Vec3, old, new block.Type) {
	if p.batching.Load() {
		return
	}
	p.enqueue(TypeBlockChanged, 7, BlockChangedPayload{
		X: pos.X, Y: pos.Y, Z: pos.Z,
		Old:  uint8(old),
		New:  uint8(new),
		Kind: world.KindOf(old, new).String(),
	})
}

// OnWorldCleared публикует WorldCleared
func (p *WorldPublisher) OnWorldCleared() {
	if p.batching.Load() {
		return
	}
	p.enqueue(TypeWorldCleared, 8, WorldClearedPayload{})
}

// OnBatchStart отключает поблочные события до конца замены мира
func (p *WorldPublisher) OnBatchStart() {
	p.batching.Store(true)
}

// OnBatchEnd реализует world.BatchListener
func (p *WorldPublisher) OnBatchEnd(world.Batch) {
	p.batching.Store(false)
}

// PublishSaved публикует WorldSaved. Безопасен для вызова из горутины писателя.
func (p *WorldPublisher) PublishSaved(payload WorldSavedPayload) {
	p.enqueue(TypeWorldSaved, 3, payload)
}

// PublishLoaded публикует WorldLoaded
func (p *WorldPublisher) PublishLoaded(payload WorldLoadedPayload) {
	p.enqueue(TypeWorldLoaded, 6, payload)
}

// Dropped возвращает число событий, не поместившихся в очередь
func (p *WorldPublisher) Dropped() uint64 {
	return p.dropped.Load()
}

// Close останавливает горутину, дописав уже поставленные события
func (p *WorldPublisher) Close() {
	p.once.Do(func() { close(p.stop) })
	<-p.done
}

func (p *WorldPublisher) enqueue(eventType string, priority int, payload interface{}) {
	ev, err := NewEnvelope(eventType, p.source, priority, payload)
	if err != nil {
		p.logger.Error("%v", err)
		return
	}

	select {
	case p.queue <- ev:
	default:
		if n := p.dropped.Add(1); n == 1 || n%1000 == 0 {
			p.logger.Warn("⚠️ Очередь событий мира переполнена, отброшено %d", n)
		}
	}
}

func (p *WorldPublisher) run() {
	defer close(p.done)
	for {
		select {
		case ev := <-p.queue:
			p.publish(ev)
		case <-p.stop:
			for {
				select {
				case ev := <-p.queue:
					p.publish(ev)
				default:
					return
				}
			}
		}
	}
}

func (p *WorldPublisher) publish(ev *Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.bus.Publish(ctx, ev); err != nil {
		p.logger.Warn("⚠️ Событие %s не опубликовано: %v", ev.EventType, err)
	}
}
