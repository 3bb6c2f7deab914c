package distributed

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/morphidx/blobstore"
	"github.com/hupe1980/morphidx/comm"
	"github.com/hupe1980/morphidx/geometry"
	"github.com/hupe1980/morphidx/model"
	"github.com/hupe1980/morphidx/multiindex"
	"github.com/hupe1980/morphidx/resource"
	"github.com/hupe1980/morphidx/rtree"
	"github.com/hupe1980/morphidx/testutil"
)

func TestBulkBuilderNotFinalized(t *testing.T) {
	store, err := blobstore.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	storage := multiindex.NewStorage[model.IndexedSphere](store, model.SphereCodec{})

	b := NewBulkBuilder(storage, model.SphereCodec{})
	b.Insert(model.IndexedSphere{ID: 1})
	assert.Equal(t, 1, b.LocalSize())

	_, err = b.Size()
	assert.ErrorIs(t, err, ErrNotFinalized)
}

func TestBulkBuilderReserve(t *testing.T) {
	store, err := blobstore.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	storage := multiindex.NewStorage[model.IndexedSphere](store, model.SphereCodec{})

	b := NewBulkBuilder(storage, model.SphereCodec{})
	b.Reserve(100)
	b.InsertBulk(testutil.NewRNG(1).Spheres(10, -1, 1))
	assert.Equal(t, 10, b.LocalSize())
}

func TestDistributedBuildAndQuery(t *testing.T) {
	const nRanks = 2
	ctx := context.Background()

	store, err := blobstore.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	storage := multiindex.NewStorage[model.IndexedSphere](store, model.SphereCodec{})

	// Per-rank local inputs with globally unique ids.
	inputs := make([][]model.IndexedSphere, nRanks)
	var all []model.IndexedSphere
	for rank := 0; rank < nRanks; rank++ {
		rng := testutil.NewRNG(int64(30 + rank))
		values := rng.Spheres(600, -50, 50)
		for i := range values {
			values[i].ID = uint64(rank*10000 + i)
		}
		inputs[rank] = values
		all = append(all, values...)
	}

	comms := comm.NewLocalGroup(nRanks)
	builders := make([]*BulkBuilder[model.IndexedSphere], nRanks)

	var wg sync.WaitGroup
	for rank := 0; rank < nRanks; rank++ {
		b := NewBulkBuilder(storage, model.SphereCodec{}, func(o *BuilderOptions) {
			o.MaxElementsPerPart = 100
			o.Resources = resource.NewController(resource.Config{MaxBackgroundWorkers: 2})
		})
		b.Reserve(len(inputs[rank]))
		b.InsertBulk(inputs[rank])
		builders[rank] = b

		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			assert.NoError(t, builders[rank].Finalize(ctx, comms[rank]))
		}(rank)
	}
	wg.Wait()

	t.Run("global size is known after finalize", func(t *testing.T) {
		for _, b := range builders {
			n, err := b.Size()
			require.NoError(t, err)
			assert.Equal(t, uint64(len(all)), n)
		}
	})

	t.Run("meta descriptor identifies the index", func(t *testing.T) {
		meta, err := storage.ReadMeta(ctx)
		require.NoError(t, err)
		assert.Equal(t, multiindex.MetaKindMultiIndex, meta.Kind)
		assert.Equal(t, uint64(len(all)), meta.ElementCount)
		assert.NotZero(t, meta.SubTrees)
	})

	t.Run("queries over the built index match brute force", func(t *testing.T) {
		tree, err := multiindex.Open(ctx, storage)
		require.NoError(t, err)
		defer tree.Close()

		queries := []geometry.Shape{
			geometry.Sphere{Centroid: geometry.Point3D{X: 0, Y: 0, Z: 0}, Radius: 20},
			geometry.Box3D{Min: geometry.Point3D{X: -10, Y: -10, Z: -10}, Max: geometry.Point3D{X: 10, Y: 10, Z: 10}},
		}
		for _, q := range queries {
			got, err := tree.FindIntersecting(ctx, q, rtree.ExactGeometry)
			require.NoError(t, err)

			var want []uint64
			for _, s := range all {
				if geometry.Intersects(q, s.Shape()) {
					want = append(want, s.ID)
				}
			}
			assert.ElementsMatch(t, want, got)
		}
	})

	t.Run("every value landed in exactly one sub-tree", func(t *testing.T) {
		meta, err := storage.ReadMeta(ctx)
		require.NoError(t, err)

		seen := make(map[uint64]int)
		total := 0
		for id := uint64(0); id < meta.SubTrees; id++ {
			sub, err := storage.LoadSub(ctx, id)
			require.NoError(t, err)
			total += sub.Len()
			for _, v := range sub.Values() {
				seen[v.ID]++
			}
		}
		assert.Equal(t, len(all), total)
		for id, n := range seen {
			assert.Equal(t, 1, n, "id %d", id)
		}
	})
}

func TestFinalizeNilCommReturnsImmediately(t *testing.T) {
	store, err := blobstore.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	storage := multiindex.NewStorage[model.IndexedSphere](store, model.SphereCodec{})

	b := NewBulkBuilder(storage, model.SphereCodec{})
	b.Insert(model.IndexedSphere{ID: 1})
	assert.NoError(t, b.Finalize(context.Background(), nil))

	_, err = b.Size()
	assert.ErrorIs(t, err, ErrNotFinalized, "a rank outside the build subset learns nothing")
}
