package persistence

import (
	"context"
	"sync"
)

type job struct {
	data []byte
	gen  uint64
}

// Writer пишет сохранения в фоне. Ожидает записи не более одна запись:
// новая заменяет ещё не записанную, поэтому шаг симуляции никогда не ждёт ввода-вывода.
//
// Ручные операции со слотом идут через Exclusive: они дожидаются начатой
// фоновой записи, а все ранее поставленные данные после них уже не пишутся.
type Writer struct {
	svc      *Service
	pending  chan job
	slot     chan struct{} // занят на время любой операции с хранилищем
	mu       sync.Mutex
	gen      uint64 // последнее выданное поколение
	written  uint64 // поколение последней операции; читается под slot
	done     chan struct{}
	once     sync.Once
	onResult func(size int, err error)
}

// NewWriter создаёт фоновый писатель. onResult вызывается из горутины писателя
// после каждой попытки записи и может быть nil.
func NewWriter(svc *Service, onResult func(size int, err error)) *Writer {
	return &Writer{
		svc:      svc,
		pending:  make(chan job, 1),
		slot:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		onResult: onResult,
	}
}

func (w *Writer) nextGen() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.gen++
	return w.gen
}

// Submit ставит данные в очередь, вытесняя ещё не записанные
func (w *Writer) Submit(data []byte) {
	j := job{data: data, gen: w.nextGen()}
	for {
		select {
		case w.pending <- j:
			return
		default:
		}
		// Очередь занята устаревшими данными: выбрасываем их
		select {
		case <-w.pending:
		default:
		}
	}
}

// Exclusive выполняет fn, когда фоновая запись не идёт. Данные, поставленные
// через Submit до вызова, считаются устаревшими и не записываются.
// Ожидание начатой записи прерывается отменой ctx.
func (w *Writer) Exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	gen := w.nextGen()
	select {
	case <-w.pending:
	default:
	}

	select {
	case w.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-w.slot }()

	if gen > w.written {
		w.written = gen
	}
	return fn(ctx)
}

// Run обрабатывает очередь до отмены ctx. Перед выходом записывает последние данные.
func (w *Writer) Run(ctx context.Context) {
	defer w.once.Do(func() { close(w.done) })

	for {
		select {
		case <-ctx.Done():
			select {
			case j := <-w.pending:
				w.write(ctx, j)
			default:
			}
			return
		case j := <-w.pending:
			w.write(ctx, j)
		}
	}
}

// Done закрывается после завершения Run
func (w *Writer) Done() <-chan struct{} {
	return w.done
}

// write не прерывается отменой ctx: начатая запись доводится до конца с таймаутом сервиса
func (w *Writer) write(ctx context.Context, j job) {
	w.slot <- struct{}{}
	if j.gen <= w.written {
		<-w.slot
		w.svc.logger.Debug("Автосохранение поколения %d устарело, пропускаем", j.gen)
		return
	}
	w.written = j.gen
	err := w.svc.Save(context.WithoutCancel(ctx), j.data)
	<-w.slot

	if err != nil {
		w.svc.logger.Warn("⚠️ Автосохранение не удалось: %v", err)
	}
	if w.onResult != nil {
		w.onResult(len(j.data), err)
	}
}
