package persistence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/annel0/voxel-sandbox/internal/storage"
	"github.com/annel0/voxel-sandbox/internal/vec"
	"github.com/annel0/voxel-sandbox/internal/world"
	"github.com/annel0/voxel-sandbox/internal/world/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_SaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	svc := NewService(storage.NewMemoryStore(), "", 0)
	assert.Equal(t, DefaultSlot, svc.Slot())

	_, err := svc.LoadSnapshot(ctx)
	assert.ErrorIs(t, err, storage.ErrSaveNotFound)

	store := world.NewMapStore(nil)
	store.Set(vec.Vec3{X: 1}, block.Stone)
	require.NoError(t, svc.SaveRecord(ctx, Encode(store, vec.Vec3Float{Y: 5}, "w", time.Now())))

	snap, err := svc.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []world.Entry{{Pos: vec.Vec3{X: 1}, Type: block.Stone}}, snap.Blocks)
	assert.Equal(t, vec.Vec3Float{Y: 5}, snap.Player)

	require.NoError(t, svc.Delete(ctx))
	_, err = svc.LoadSnapshot(ctx)
	assert.ErrorIs(t, err, storage.ErrSaveNotFound)
}

func TestService_LoadMalformed(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStore()
	require.NoError(t, mem.Save(ctx, "world", []byte(`{"v":7,"blocks":[]}`)))

	svc := NewService(mem, "world", time.Second)
	_, err := svc.LoadSnapshot(ctx)
	assert.ErrorIs(t, err, ErrMalformedSaveData)
	assert.NotErrorIs(t, err, storage.ErrSaveNotFound)
}

func TestWriter_LatestWins(t *testing.T) {
	mem := storage.NewMemoryStore()
	svc := NewService(mem, "world", time.Second)

	var mu sync.Mutex
	var sizes []int
	w := NewWriter(svc, func(size int, err error) {
		mu.Lock()
		defer mu.Unlock()
		assert.NoError(t, err)
		sizes = append(sizes, size)
	})

	// До запуска писателя в очереди остаётся только последняя запись
	w.Submit([]byte("first"))
	w.Submit([]byte("second"))
	w.Submit([]byte("third!"))

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(sizes) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-w.Done()

	data, err := mem.Load(context.Background(), "world")
	require.NoError(t, err)
	assert.Equal(t, "third!", string(data))
}

func TestWriter_FlushesOnShutdown(t *testing.T) {
	mem := storage.NewMemoryStore()
	w := NewWriter(NewService(mem, "world", time.Second), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Submit([]byte("final"))
	w.Run(ctx)

	data, err := mem.Load(context.Background(), "world")
	require.NoError(t, err)
	assert.Equal(t, "final", string(data))
}

// gatedStore задерживает первую запись до закрытия release
type gatedStore struct {
	*storage.MemoryStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		MemoryStore: storage.NewMemoryStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (g *gatedStore) Save(ctx context.Context, slot string, data []byte) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.MemoryStore.Save(ctx, slot, data)
}

func TestWriter_ExclusiveDropsStaleAutosaves(t *testing.T) {
	gated := newGatedStore()
	svc := NewService(gated, "world", 5*time.Second)
	w := NewWriter(svc, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	w.Submit([]byte("autosave-1"))
	<-gated.entered
	w.Submit([]byte("autosave-2"))

	done := make(chan error, 1)
	go func() {
		done <- w.Exclusive(context.Background(), func(ctx context.Context) error {
			return svc.Save(ctx, []byte("manual"))
		})
	}()

	close(gated.release)
	require.NoError(t, <-done)

	cancel()
	<-w.Done()

	data, err := gated.Load(context.Background(), "world")
	require.NoError(t, err)
	assert.Equal(t, "manual", string(data), "Устаревшее автосохранение не должно перезаписать ручное")
}

func TestWriter_ExclusiveHonoursContext(t *testing.T) {
	gated := newGatedStore()
	w := NewWriter(NewService(gated, "world", 5*time.Second), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	w.Submit([]byte("autosave"))
	<-gated.entered

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer waitCancel()
	called := false
	err := w.Exclusive(waitCtx, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, called)

	close(gated.release)
	cancel()
	<-w.Done()
}
