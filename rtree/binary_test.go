package rtree

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/morphidx/geometry"
	"github.com/hupe1980/morphidx/model"
	"github.com/hupe1980/morphidx/persistence"
	"github.com/hupe1980/morphidx/testutil"
)

func TestSerializeRoundTrip(t *testing.T) {
	compressions := map[string]persistence.CompressionType{
		"none": persistence.CompressionNone,
		"lz4":  persistence.CompressionLZ4,
		"zstd": persistence.CompressionZSTD,
	}

	for name, ct := range compressions {
		t.Run(name, func(t *testing.T) {
			rng := testutil.NewRNG(7)
			spheres := rng.Spheres(800, -40, 40)
			tree := NewBulkLoaded(append([]model.IndexedSphere(nil), spheres...), model.SphereCodec{},
				func(o *Options) { o.Compression = ct })

			var buf bytes.Buffer
			_, err := tree.WriteTo(&buf)
			require.NoError(t, err)

			loaded := New[model.IndexedSphere](model.SphereCodec{})
			_, err = loaded.ReadFrom(bytes.NewReader(buf.Bytes()))
			require.NoError(t, err)

			require.Equal(t, tree.Len(), loaded.Len())
			assert.Equal(t, tree.Bounds(), loaded.Bounds())

			// Query equivalence: the round trip yields the same result set
			// for any predicate.
			queries := []geometry.Shape{
				geometry.Sphere{Centroid: geometry.Point3D{X: 0, Y: 0, Z: 0}, Radius: 15},
				geometry.Box3D{Min: geometry.Point3D{X: -10, Y: -10, Z: -10}, Max: geometry.Point3D{X: 0, Y: 0, Z: 0}},
			}
			for _, q := range queries {
				assert.ElementsMatch(t,
					tree.FindIntersecting(q, ExactGeometry),
					loaded.FindIntersecting(q, ExactGeometry))
			}
		})
	}
}

func TestSaveLoadFile(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "index.bin")

	rng := testutil.NewRNG(8)
	tree := NewBulkLoaded(rng.Spheres(100, -10, 10), model.SphereCodec{})
	require.NoError(t, tree.SaveToFile(filename))

	loaded, err := LoadFromFile(filename, model.SphereCodec{})
	require.NoError(t, err)
	assert.Equal(t, tree.Len(), loaded.Len())
	assert.Equal(t, tree.Bounds(), loaded.Bounds())
}

func TestLoadRejectsVersionMismatch(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "index.bin")

	tree := NewBulkLoaded([]model.IndexedSphere{
		{ID: 1, Center: geometry.Point3D{X: 1, Y: 1, Z: 1}, Radius: 1},
	}, model.SphereCodec{})
	require.NoError(t, tree.SaveToFile(filename))

	// Corrupt the struct version field (bytes 4..8 of the header).
	data, err := os.ReadFile(filename)
	require.NoError(t, err)
	binary.LittleEndian.PutUint32(data[4:], persistence.StructVersion+1)
	require.NoError(t, os.WriteFile(filename, data, 0644))

	_, err = LoadFromFile(filename, model.SphereCodec{})
	assert.ErrorIs(t, err, persistence.ErrVersionMismatch)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.bin"), model.SphereCodec{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}
