package rtree

import (
	"fmt"
	"io"

	"github.com/hupe1980/morphidx/internal/conv"
	"github.com/hupe1980/morphidx/model"
	"github.com/hupe1980/morphidx/persistence"
)

// WriteTo writes the tree to w in binary format: the file header followed by
// one block holding the values in leaf order, compressed with
// Options.Compression (none by default).
//
// The node structure itself is not persisted; ReadFrom rebuilds it with the
// same deterministic bulk load, so a round-trip is query-equivalent. A
// struct-version tag guards against layout changes between builds.
func (t *Tree[V]) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	bw := persistence.NewWriter(cw)

	header := &persistence.FileHeader{
		IndexKind:    persistence.IndexKindInMemory,
		Compression:  uint8(t.opts.Compression),
		ElementCount: uint64(t.count),
		DataOffset:   64,
	}
	if err := bw.WriteHeader(header); err != nil {
		return cw.n, err
	}

	raw := make([]byte, 0, t.count*t.codec.Size())
	t.walkValues(func(v V) {
		raw = t.codec.Append(raw, v)
	})

	block, err := persistence.CompressBlock(raw, t.opts.Compression)
	if err != nil {
		return cw.n, err
	}
	if err := bw.WriteBytes(block); err != nil {
		return cw.n, err
	}

	return cw.n, nil
}

// ReadFrom replaces the tree contents with a tree read from r.
func (t *Tree[V]) ReadFrom(r io.Reader) (int64, error) {
	cr := &countingReader{r: r}
	br := persistence.NewReader(cr)

	header, err := br.ReadHeader()
	if err != nil {
		return cr.n, err
	}
	t.opts.Compression = persistence.CompressionType(header.Compression)

	block, err := br.ReadBytes()
	if err != nil {
		return cr.n, err
	}
	raw, err := persistence.DecompressBlock(block, persistence.CompressionType(header.Compression))
	if err != nil {
		return cr.n, err
	}

	size := t.codec.Size()
	count, err := conv.Uint64ToInt(header.ElementCount)
	if err != nil {
		return cr.n, err
	}
	if len(raw) != count*size {
		return cr.n, fmt.Errorf("rtree: value section is %d bytes, expected %d", len(raw), count*size)
	}

	values := make([]V, 0, count)
	for i := 0; i < count; i++ {
		v, err := t.codec.Decode(raw[i*size:])
		if err != nil {
			return cr.n, err
		}
		values = append(values, v)
	}

	t.bulkLoad(values)
	return cr.n, nil
}

// walkValues visits every stored value in leaf order.
func (t *Tree[V]) walkValues(visit func(v V)) {
	var walk func(n *node[V])
	walk = func(n *node[V]) {
		if n.isLeaf() {
			for _, v := range n.values {
				visit(v)
			}
			return
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	if t.root != nil {
		walk(t.root)
	}
}

// Values returns all stored values in leaf order.
func (t *Tree[V]) Values() []V {
	out := make([]V, 0, t.count)
	t.walkValues(func(v V) { out = append(out, v) })
	return out
}

// SaveToFile writes the tree to a file, atomically replacing any previous
// content.
func (t *Tree[V]) SaveToFile(filename string) error {
	return persistence.SaveToFile(filename, func(w io.Writer) error {
		_, err := t.WriteTo(w)
		return err
	})
}

// LoadFromFile loads a tree from a file written by SaveToFile.
func LoadFromFile[V model.Indexed](filename string, codec model.Codec[V], optFns ...func(o *Options)) (*Tree[V], error) {
	t := New(codec, optFns...)
	err := persistence.LoadFromFile(filename, func(r io.Reader) error {
		_, err := t.ReadFrom(r)
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

type countingReader struct {
	r io.Reader
	n int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)
	return n, err
}
