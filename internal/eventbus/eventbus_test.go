package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/annel0/voxel-sandbox/internal/vec"
	"github.com/annel0/voxel-sandbox/internal/world"
	"github.com/annel0/voxel-sandbox/internal/world/block"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu     sync.Mutex
	events []*Envelope
}

func (c *collector) handle(ctx context.Context, ev *Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *collector) snapshot() []*Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Envelope(nil), c.events...)
}

func TestMemoryBus_OrderedDelivery(t *testing.T) {
	bus := NewMemoryBus(2048)
	defer bus.Close()

	c := &collector{}
	_, err := bus.Subscribe(context.Background(), Filter{}, c.handle)
	require.NoError(t, err)

	for i := 0; i < 500; i++ {
		ev, err := NewEnvelope(TypeBlockChanged, "test", 7, BlockChangedPayload{X: i})
		require.NoError(t, err)
		require.NoError(t, bus.Publish(context.Background(), ev))
	}

	require.Eventually(t, func() bool { return c.len() == 500 }, 2*time.Second, 5*time.Millisecond)

	for i, ev := range c.snapshot() {
		var p BlockChangedPayload
		require.NoError(t, DecodePayload(ev, &p))
		assert.Equal(t, i, p.X, "События должны приходить в порядке публикации")
	}

	stats := bus.Metrics()
	assert.Equal(t, uint64(500), stats.Published)
	assert.Equal(t, uint64(500), stats.Consumed)
}

func TestMemoryBus_Filter(t *testing.T) {
	bus := NewMemoryBus(16)
	defer bus.Close()

	saved := &collector{}
	_, err := bus.Subscribe(context.Background(), Filter{Types: []string{TypeWorldSaved}}, saved.handle)
	require.NoError(t, err)

	for _, typ := range []string{TypeBlockChanged, TypeWorldSaved, TypeWorldCleared} {
		ev, err := NewEnvelope(typ, "test", 1, struct{}{})
		require.NoError(t, err)
		require.NoError(t, bus.Publish(context.Background(), ev))
	}

	require.Eventually(t, func() bool { return saved.len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, TypeWorldSaved, saved.snapshot()[0].EventType)
}

func TestMemoryBus_DropsLowPriorityWhenFull(t *testing.T) {
	bus := NewMemoryBus(1)
	defer bus.Close()

	release := make(chan struct{})
	_, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		<-release
	})
	require.NoError(t, err)

	// Первое событие занимает обработчик, второе - очередь, дальше переполнение
	for i := 0; i < 5; i++ {
		ev, _ := NewEnvelope(TypeWorldSaved, "test", 1, struct{}{})
		require.NoError(t, bus.Publish(context.Background(), ev))
		time.Sleep(5 * time.Millisecond)
	}
	assert.Greater(t, bus.Metrics().Dropped, uint64(0))

	// Высокий приоритет ждёт до отмены контекста
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ev, _ := NewEnvelope(TypeBlockChanged, "test", 9, struct{}{})
	assert.ErrorIs(t, bus.Publish(ctx, ev), context.DeadlineExceeded)

	close(release)
}

func TestMemoryBus_UnsubscribeAndClose(t *testing.T) {
	bus := NewMemoryBus(8)
	c := &collector{}
	sub, err := bus.Subscribe(context.Background(), Filter{}, c.handle)
	require.NoError(t, err)
	sub.Unsubscribe()

	ev, _ := NewEnvelope(TypeWorldCleared, "test", 8, struct{}{})
	require.NoError(t, bus.Publish(context.Background(), ev))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, c.len())

	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(context.Background(), ev), ErrBusClosed)
	_, err = bus.Subscribe(context.Background(), Filter{}, c.handle)
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestWorldPublisher(t *testing.T) {
	bus := NewMemoryBus(64)
	defer bus.Close()

	c := &collector{}
	_, err := bus.Subscribe(context.Background(), Filter{}, c.handle)
	require.NoError(t, err)

	p := NewWorldPublisher(bus, "engine")
	defer p.Close()
	store := world.NewMapStore(p)
	store.Set(vec.Vec3{X: 1, Y: 2, Z: 3}, block.Wood)
	store.Set(vec.Vec3{X: 1, Y: 2, Z: 3}, block.Air)
	store.Clear()

	require.Eventually(t, func() bool { return c.len() == 3 }, time.Second, 5*time.Millisecond)
	events := c.snapshot()

	var added BlockChangedPayload
	require.NoError(t, DecodePayload(events[0], &added))
	assert.Equal(t, BlockChangedPayload{X: 1, Y: 2, Z: 3, Old: 0, New: 4, Kind: "added"}, added)

	var removed BlockChangedPayload
	require.NoError(t, DecodePayload(events[1], &removed))
	assert.Equal(t, "removed", removed.Kind)

	assert.Equal(t, TypeWorldCleared, events[2].EventType)
	assert.Equal(t, "engine", events[2].Source)
	assert.NotEmpty(t, events[2].ID)
}

func TestMetricsExporter_Collect(t *testing.T) {
	bus := NewMemoryBus(8)
	defer bus.Close()

	reg := prometheus.NewRegistry()
	exporter := NewMetricsExporter(bus, reg)

	ev, _ := NewEnvelope(TypeWorldSaved, "test", 1, struct{}{})
	require.NoError(t, bus.Publish(context.Background(), ev))
	require.NoError(t, bus.Publish(context.Background(), ev))

	exporter.collect()
	assert.Equal(t, 2.0, testutil.ToFloat64(exporter.published))

	require.NoError(t, bus.Publish(context.Background(), ev))
	exporter.collect()
	assert.Equal(t, 3.0, testutil.ToFloat64(exporter.published), "Счётчик растёт на приращение")
}

// stuckBus не возвращается из Publish, пока не закрыт release
type stuckBus struct {
	release   chan struct{}
	mu        sync.Mutex
	published int
}

func (b *stuckBus) Publish(ctx context.Context, ev *Envelope) error {
	<-b.release
	b.mu.Lock()
	b.published++
	b.mu.Unlock()
	return nil
}

func (b *stuckBus) Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error) {
	return nil, ErrBusClosed
}

func (b *stuckBus) Metrics() Stats { return Stats{} }

func (b *stuckBus) Close() error { return nil }

func TestWorldPublisher_DoesNotBlockCaller(t *testing.T) {
	bus := &stuckBus{release: make(chan struct{})}
	p := NewWorldPublisherWithQueue(bus, "engine", 8)

	store := world.NewMapStore(p)
	started := time.Now()
	for i := 0; i < 100; i++ {
		store.Set(vec.Vec3{X: i}, block.Stone)
	}
	assert.Less(t, time.Since(started), 50*time.Millisecond, "Изменения мира не должны ждать шину")
	assert.Greater(t, p.Dropped(), uint64(0), "Лишние события отбрасываются")

	close(bus.release)
	p.Close()
	bus.mu.Lock()
	defer bus.mu.Unlock()
	assert.Equal(t, 100-int(p.Dropped()), bus.published, "Поставленные в очередь события дописываются при закрытии")
}

func TestWorldPublisher_BatchPublishesNoBlockEvents(t *testing.T) {
	bus := NewMemoryBus(64)
	defer bus.Close()

	c := &collector{}
	_, err := bus.Subscribe(context.Background(), Filter{}, c.handle)
	require.NoError(t, err)

	p := NewWorldPublisher(bus, "engine")
	defer p.Close()

	p.OnBatchStart()
	p.OnWorldCleared()
	for i := 0; i < 10; i++ {
		p.OnBlockChanged(vec.Vec3{X: i}, block.Air, block.Grass)
	}
	p.OnBatchEnd(world.Batch{WorldID: "w"})
	p.PublishLoaded(WorldLoadedPayload{Blocks: 10, Origin: "generated"})
	p.OnBlockChanged(vec.Vec3{Y: 5}, block.Air, block.Stone)

	require.Eventually(t, func() bool { return c.len() == 2 }, time.Second, 5*time.Millisecond)
	events := c.snapshot()
	assert.Equal(t, TypeWorldLoaded, events[0].EventType)
	assert.Equal(t, TypeBlockChanged, events[1].EventType)
}
