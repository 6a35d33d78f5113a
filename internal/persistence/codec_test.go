package persistence

import (
	"encoding/json"
	"math/rand"
	"testing"
	"time"

	"github.com/annel0/voxel-sandbox/internal/vec"
	"github.com/annel0/voxel-sandbox/internal/world"
	"github.com/annel0/voxel-sandbox/internal/world/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomStore(rng *rand.Rand, n int) *world.MapStore {
	store := world.NewMapStore(nil)
	types := []block.Type{block.Grass, block.Dirt, block.Stone, block.Wood}
	for i := 0; i < n; i++ {
		pos := vec.Vec3{X: rng.Intn(40) - 20, Y: rng.Intn(10) - 3, Z: rng.Intn(40) - 20}
		store.Set(pos, types[rng.Intn(len(types))])
	}
	return store
}

func TestCodec_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		store := randomStore(rng, rng.Intn(300))
		player := vec.Vec3Float{X: rng.Float64()*40 - 20, Y: rng.Float64() * 10, Z: rng.Float64()*40 - 20}

		data, err := EncodeBytes(store, player, "world-1", time.UnixMilli(1700000000000))
		require.NoError(t, err)

		snap, err := Decode(data)
		require.NoError(t, err)

		assert.ElementsMatch(t, world.Snapshot(store), snap.Blocks, "Набор блоков должен совпадать")
		assert.Equal(t, player, snap.Player, "Позиция игрока должна совпадать")
		assert.True(t, snap.HasPlayer)
		assert.Equal(t, "world-1", snap.WorldID)
		assert.Equal(t, int64(1700000000000), snap.Timestamp.UnixMilli())
	}
}

func TestCodec_EmptyWorld(t *testing.T) {
	data, err := EncodeBytes(world.NewMapStore(nil), world.DefaultSpawn, "", time.Now())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"blocks":[]`)

	snap, err := Decode(data)
	require.NoError(t, err)
	assert.Empty(t, snap.Blocks)
}

func TestCodec_Layout(t *testing.T) {
	store := world.NewMapStore(nil)
	store.Set(vec.Vec3{X: 1, Y: 2, Z: 3}, block.Wood)
	store.Set(vec.Vec3{X: -1, Y: 0, Z: 0}, block.Grass)

	rec := Encode(store, vec.Vec3Float{X: 0.5, Y: 4, Z: 10}, "", time.UnixMilli(42))
	data, err := Marshal(rec)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.EqualValues(t, 1, doc["version"])
	assert.EqualValues(t, 42, doc["timestamp"])
	assert.Equal(t, []interface{}{0.5, 4.0, 10.0}, doc["player"])
	assert.Equal(t, [][4]int{{-1, 0, 0, 1}, {1, 2, 3, 4}}, rec.Blocks, "Блоки упорядочены по координатам")
	assert.NotContains(t, doc, "world_id")
}

func TestDecode_Legacy(t *testing.T) {
	raw := []byte(`{"v":1,"player":[1,2,3],"blocks":[[0,0,0,1],[0,-1,0,2]],"ts":1700000000123}`)

	snap, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, vec.Vec3Float{X: 1, Y: 2, Z: 3}, snap.Player)
	assert.Len(t, snap.Blocks, 2)
	assert.Equal(t, int64(1700000000123), snap.Timestamp.UnixMilli())
}

func TestDecode_MissingPlayerUsesSpawn(t *testing.T) {
	snap, err := Decode([]byte(`{"version":1,"blocks":[[0,0,0,3]]}`))
	require.NoError(t, err)
	assert.False(t, snap.HasPlayer)
	assert.Equal(t, world.DefaultSpawn, snap.Player)
}

func TestDecode_DuplicatesLastWins(t *testing.T) {
	snap, err := Decode([]byte(`{"version":1,"blocks":[[0,0,0,1],[5,5,5,2],[0,0,0,4]]}`))
	require.NoError(t, err)

	store := snap.Store()
	assert.Equal(t, 2, store.Count())
	assert.Equal(t, block.Wood, store.Get(vec.Vec3{}))
}

func TestDecode_Malformed(t *testing.T) {
	cases := map[string]string{
		"empty":           ``,
		"not json":        `not json at all`,
		"array root":      `[1,2,3]`,
		"missing blocks":  `{"version":1,"player":[0,0,0]}`,
		"missing version": `{"blocks":[]}`,
		"short tuple":     `{"version":1,"blocks":[[0,0,0]]}`,
		"float coord":     `{"version":1,"blocks":[[0.5,0,0,1]]}`,
		"string type":     `{"version":1,"blocks":[[0,0,0,"grass"]]}`,
		"unknown type":    `{"version":1,"blocks":[[0,0,0,99]]}`,
		"air stored":      `{"version":1,"blocks":[[0,0,0,0]]}`,
		"negative type":   `{"version":1,"blocks":[[0,0,0,-1]]}`,
		"bad player":      `{"version":1,"player":[0,0],"blocks":[]}`,
		"blocks object":   `{"version":1,"blocks":{}}`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			snap, err := Decode([]byte(raw))
			assert.Nil(t, snap)
			assert.ErrorIs(t, err, ErrMalformedSaveData)
		})
	}
}

func TestDecode_UnsupportedVersion(t *testing.T) {
	_, err := Decode([]byte(`{"version":2,"player":[0,0,0],"blocks":[]}`))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
	assert.ErrorIs(t, err, ErrMalformedSaveData, "Неизвестная версия - частный случай повреждённых данных")
}

func TestSnapshot_ApplyReplacesWorld(t *testing.T) {
	rec := &world.ChangeRecorder{}
	store := world.NewMapStore(rec)
	store.Set(vec.Vec3{X: 9, Y: 9, Z: 9}, block.Stone)

	snap, err := Decode([]byte(`{"version":1,"blocks":[[1,1,1,2]]}`))
	require.NoError(t, err)
	rec.Reset()

	snap.Apply(store)

	assert.Equal(t, 1, store.Count())
	assert.Equal(t, block.Dirt, store.Get(vec.Vec3{X: 1, Y: 1, Z: 1}))
	assert.Equal(t, 1, rec.Clears)
	assert.Len(t, rec.Changes, 1)
}

func TestSchemaJSON(t *testing.T) {
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(SchemaJSON(), &doc))
	assert.Equal(t, "object", doc["type"])
}
