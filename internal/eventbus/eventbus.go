package eventbus

import (
	"context"
	"sync"
	"time"
)

// Envelope описывает универсальный контейнер события.
// Все поля фиксированы для версиирования и трассировки.
type Envelope struct {
	ID            string            `json:"id"`             // Глобально уникальный идентификатор (UUID).
	Timestamp     time.Time         `json:"timestamp"`      // Время создания события (UTC).
	Source        string            `json:"source"`         // Имя сервиса-источника.
	EventType     string            `json:"event_type"`     // Тип события (BlockChanged, WorldSaved…).
	Version       int               `json:"version"`        // Схема полезной нагрузки.
	CorrelationID string            `json:"correlation_id"` // Для связывания цепочек.
	Priority      int               `json:"priority"`       // 0=Low … 9=Critical (для backpressure).
	Payload       []byte            `json:"payload"`        // JSON полезной нагрузки.
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Filter позволяет подписаться только на нужные события.
type Filter struct {
	Types   []string // Если пусто - все типы.
	Sources []string // Если пусто - все источники.
}

// Subscription возвращается при подписке; позволяет отписаться.
type Subscription interface {
	Unsubscribe()
}

// Handler потребляет события.
type Handler func(ctx context.Context, ev *Envelope)

// Stats агрегированные метрики шины.
type Stats struct {
	Published uint64
	Consumed  uint64
	Dropped   uint64
	InFlight  int
}

// EventBus определяет абстракцию шины событий.
type EventBus interface {
	Publish(ctx context.Context, ev *Envelope) error
	Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error)
	Metrics() Stats
	Close() error
}

// HighPriority - события с таким приоритетом и выше не отбрасываются при переполнении
const HighPriority = 5

//================ In-Memory implementation =================//

// MemoryBus доставляет события подписчикам внутри процесса.
// У каждого подписчика своя очередь и своя горутина, поэтому события доходят
// до подписчика в порядке публикации, а медленный подписчик не задерживает остальных.
type MemoryBus struct {
	mu          sync.RWMutex
	subscribers map[int]*subscriber
	nextID      int
	stats       Stats
	capacity    int
	closed      bool
}

type subscriber struct {
	filter  Filter
	handler Handler
	queue   chan *Envelope
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewMemoryBus создаёт in-memory шину; capacity - размер очереди каждого подписчика.
func NewMemoryBus(capacity int) *MemoryBus {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryBus{
		subscribers: make(map[int]*subscriber),
		capacity:    capacity,
	}
}

// Publish ставит событие в очереди подходящих подписчиков.
// При переполнении очереди событие с низким приоритетом отбрасывается,
// а для высокого приоритета Publish ждёт места или отмены ctx.
func (mb *MemoryBus) Publish(ctx context.Context, ev *Envelope) error {
	mb.mu.RLock()
	if mb.closed {
		mb.mu.RUnlock()
		return ErrBusClosed
	}
	subs := make([]*subscriber, 0, len(mb.subscribers))
	for _, sub := range mb.subscribers {
		if matchFilter(ev, sub.filter) {
			subs = append(subs, sub)
		}
	}
	mb.mu.RUnlock()

	mb.mu.Lock()
	mb.stats.Published++
	mb.mu.Unlock()

	for _, sub := range subs {
		if err := mb.enqueue(ctx, sub, ev); err != nil {
			return err
		}
	}
	return nil
}

func (mb *MemoryBus) enqueue(ctx context.Context, sub *subscriber, ev *Envelope) error {
	select {
	case sub.queue <- ev:
		return nil
	case <-sub.ctx.Done():
		return nil
	default:
	}

	// Очередь заполнена - дропаем низкий приоритет
	if ev.Priority < HighPriority {
		mb.mu.Lock()
		mb.stats.Dropped++
		mb.mu.Unlock()
		return nil
	}

	// Для High-priority блокируем до освобождения места или отмены контекста
	select {
	case sub.queue <- ev:
		return nil
	case <-sub.ctx.Done():
		return nil
	case <-ctx.Done():
		mb.mu.Lock()
		mb.stats.Dropped++
		mb.mu.Unlock()
		return ctx.Err()
	}
}

// Subscribe регистрирует обработчик. Подписка снимается при отмене ctx или Unsubscribe.
func (mb *MemoryBus) Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if mb.closed {
		return nil, ErrBusClosed
	}

	id := mb.nextID
	mb.nextID++
	cctx, cancel := context.WithCancel(ctx)
	sub := &subscriber{
		filter:  f,
		handler: h,
		queue:   make(chan *Envelope, mb.capacity),
		ctx:     cctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	mb.subscribers[id] = sub
	go mb.dispatch(sub)

	return &memSub{bus: mb, id: id}, nil
}

// dispatch по порядку передаёт события одному подписчику
func (mb *MemoryBus) dispatch(sub *subscriber) {
	defer close(sub.done)
	for {
		select {
		case <-sub.ctx.Done():
			return
		case ev := <-sub.queue:
			sub.handler(sub.ctx, ev)
			mb.mu.Lock()
			mb.stats.Consumed++
			mb.mu.Unlock()
		}
	}
}

// Metrics возвращает агрегированную статистику
func (mb *MemoryBus) Metrics() Stats {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	s := mb.stats
	for _, sub := range mb.subscribers {
		s.InFlight += len(sub.queue)
	}
	return s
}

// Close снимает все подписки
func (mb *MemoryBus) Close() error {
	mb.mu.Lock()
	if mb.closed {
		mb.mu.Unlock()
		return nil
	}
	mb.closed = true
	subs := mb.subscribers
	mb.subscribers = make(map[int]*subscriber)
	mb.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
		<-sub.done
	}
	return nil
}

func matchFilter(ev *Envelope, f Filter) bool {
	match := func(val string, arr []string) bool {
		if len(arr) == 0 {
			return true
		}
		for _, v := range arr {
			if v == val {
				return true
			}
		}
		return false
	}
	return match(ev.EventType, f.Types) && match(ev.Source, f.Sources)
}

type memSub struct {
	bus *MemoryBus
	id  int
}

func (s *memSub) Unsubscribe() {
	s.bus.mu.Lock()
	sub, ok := s.bus.subscribers[s.id]
	if ok {
		delete(s.bus.subscribers, s.id)
	}
	s.bus.mu.Unlock()

	// Не ждём завершения dispatch: Unsubscribe можно вызывать из обработчика
	if ok {
		sub.cancel()
	}
}
