package outofcore

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/seqsense/pcgol/mat"
	"github.com/seqsense/pcgol/pc"
	"go.uber.org/zap/zaptest"

	"github.com/seqsense/pcdoctree/pcd"
)

func sequence(n int) []mat.Vec3 {
	ret := make([]mat.Vec3, n)
	for i := range ret {
		ret[i] = mat.Vec3{float32(i), float32(2 * i), float32(3 * i)}
	}
	return ret
}

func newContainer(t *testing.T, opts ...Option) *DiskContainer[mat.Vec3] {
	t.Helper()
	c, err := NewTemp(t.TempDir(), pcd.Vec3Codec{}, append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func pushAll(t *testing.T, c *DiskContainer[mat.Vec3], vs []mat.Vec3) {
	t.Helper()
	for _, v := range vs {
		if err := c.Push(v); err != nil {
			t.Fatal(err)
		}
	}
}

func TestPushInsertRange(t *testing.T) {
	points := sequence(250)

	pushed := newContainer(t, WithWriteBuffMax(100))
	pushAll(t, pushed, points)
	if pushed.fileLen != 200 || pushed.Size() != 250 {
		t.Fatalf("Expected 200 records on disk and 250 in total, got: %d, %d", pushed.fileLen, pushed.Size())
	}

	inserted := newContainer(t, WithWriteBuffMax(100))
	if err := inserted.InsertRange(points); err != nil {
		t.Fatal(err)
	}
	if inserted.fileLen != 250 {
		t.Fatalf("Expected 250 records on disk, got: %d", inserted.fileLen)
	}

	for _, c := range []*DiskContainer[mat.Vec3]{pushed, inserted} {
		vs, err := c.ReadRange(0, c.Size())
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(points, vs); diff != "" {
			t.Errorf("Records differ (-expected +got):\n%s", diff)
		}
	}

	if err := pushed.Close(); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(pushed.Path())
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	pp, err := pc.Unmarshal(f)
	if err != nil {
		t.Fatal(err)
	}
	if pp.Points != 250 {
		t.Fatalf("Expected 250 points, got: %d", pp.Points)
	}
	it, err := pp.Vec3Iterator()
	if err != nil {
		t.Fatal(err)
	}
	for i, p := range points {
		if v := it.Vec3At(i); !v.Equal(p) {
			t.Errorf("Point %d: expected %v, got: %v", i, p, v)
		}
	}
}

func TestReadRange(t *testing.T) {
	points := sequence(25)
	c := newContainer(t, WithWriteBuffMax(10))
	pushAll(t, c, points)
	if c.fileLen != 20 {
		t.Fatalf("Expected 20 records on disk, got: %d", c.fileLen)
	}

	testCases := map[string]struct {
		start, count int64
		err          error
	}{
		"Empty":       {start: 0, count: 0},
		"All":         {start: 0, count: 25},
		"File":        {start: 5, count: 10},
		"Across":      {start: 15, count: 10},
		"Buffer":      {start: 20, count: 5},
		"BufferPart":  {start: 22, count: 2},
		"Negative":    {start: -1, count: 1, err: pcd.ErrOutOfRange},
		"TooLong":     {start: 20, count: 6, err: pcd.ErrOutOfRange},
		"AfterTheEnd": {start: 26, count: 0, err: pcd.ErrOutOfRange},
	}
	for name, tt := range testCases {
		tt := tt
		t.Run(name, func(t *testing.T) {
			vs, err := c.ReadRange(tt.start, tt.count)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("Expected error: %v, got: %v", tt.err, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(points[tt.start:tt.start+tt.count], vs); diff != "" {
				t.Errorf("Records differ (-expected +got):\n%s", diff)
			}
		})
	}

	for i, p := range points {
		v, err := c.At(int64(i))
		if err != nil {
			t.Fatal(err)
		}
		if !v.Equal(p) {
			t.Errorf("Record %d: expected %v, got: %v", i, p, v)
		}
	}
	if _, err := c.At(25); !errors.Is(err, pcd.ErrOutOfRange) {
		t.Errorf("Expected error: %v, got: %v", pcd.ErrOutOfRange, err)
	}
}

func TestReopen(t *testing.T) {
	points := sequence(5)
	c := newContainer(t)
	pushAll(t, c, points)
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	path := c.Path()

	t.Run("Valid", func(t *testing.T) {
		c, err := New(path, pcd.Vec3Codec{})
		if err != nil {
			t.Fatal(err)
		}
		vs, err := c.ReadRange(0, c.Size())
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(points, vs); diff != "" {
			t.Errorf("Records differ (-expected +got):\n%s", diff)
		}
	})
	t.Run("SchemaMismatch", func(t *testing.T) {
		if _, err := New(path, IndexedPointCodec{}); !errors.Is(err, pcd.ErrSchemaMismatch) {
			t.Errorf("Expected error: %v, got: %v", pcd.ErrSchemaMismatch, err)
		}
	})
	t.Run("TrailingBytes", func(t *testing.T) {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write([]byte{1, 2, 3, 4, 5}); err != nil {
			t.Fatal(err)
		}
		if err := f.Close(); err != nil {
			t.Fatal(err)
		}

		c, err := New(path, pcd.Vec3Codec{}, WithLogger(zaptest.NewLogger(t)))
		if err != nil {
			t.Fatal(err)
		}
		if c.Size() != 5 {
			t.Fatalf("Expected 5 records, got: %d", c.Size())
		}
		if err := c.InsertRange(sequence(1)); err != nil {
			t.Fatal(err)
		}
		st, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if expected := c.headerLen + 6*12; st.Size() != expected {
			t.Errorf("Expected file size %d, got: %d", expected, st.Size())
		}
	})
	t.Run("Truncated", func(t *testing.T) {
		if err := os.Truncate(path, c.headerLen+10); err != nil {
			t.Fatal(err)
		}
		if _, err := New(path, pcd.Vec3Codec{}); !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("Expected error: %v, got: %v", io.ErrUnexpectedEOF, err)
		}
	})
	t.Run("VariableHeader", func(t *testing.T) {
		pp := &pc.PointCloud{
			PointCloudHeader: pcd.Vec3Codec{}.Schema().Header(5),
			Points:           5,
			Data:             pcd.EncodeAll[mat.Vec3](pcd.Vec3Codec{}, points),
		}
		var buf bytes.Buffer
		if err := pc.Marshal(pp, &buf); err != nil {
			t.Fatal(err)
		}
		path := path + ".marshaled.pcd"
		if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := New(path, pcd.Vec3Codec{}); !errors.Is(err, pcd.ErrInvalidHeader) {
			t.Errorf("Expected error: %v, got: %v", pcd.ErrInvalidHeader, err)
		}
	})
}

func TestInsertCloud(t *testing.T) {
	points := sequence(7)
	marshal := func(t *testing.T, pp *pc.PointCloud) *bytes.Buffer {
		var buf bytes.Buffer
		if err := pc.Marshal(pp, &buf); err != nil {
			t.Fatal(err)
		}
		return &buf
	}

	c := newContainer(t)
	pushAll(t, c, points[:2])
	buf := marshal(t, &pc.PointCloud{
		PointCloudHeader: pcd.Vec3Codec{}.Schema().Header(5),
		Points:           5,
		Data:             pcd.EncodeAll[mat.Vec3](pcd.Vec3Codec{}, points[2:]),
	})
	if err := c.InsertCloud(buf); err != nil {
		t.Fatal(err)
	}
	vs, err := c.ReadRange(0, c.Size())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(points, vs); diff != "" {
		t.Errorf("Records differ (-expected +got):\n%s", diff)
	}

	buf = marshal(t, &pc.PointCloud{
		PointCloudHeader: IndexedPointCodec{}.Schema().Header(1),
		Points:           1,
		Data:             make([]byte, 16),
	})
	if err := c.InsertCloud(buf); !errors.Is(err, pcd.ErrSchemaMismatch) {
		t.Errorf("Expected error: %v, got: %v", pcd.ErrSchemaMismatch, err)
	}
}

func TestExportPCD(t *testing.T) {
	points := sequence(10)
	c := newContainer(t, WithWriteBuffMax(4))
	pushAll(t, c, points)

	for _, format := range []pcd.Format{pcd.Binary, pcd.BinaryCompressed} {
		format := format
		t.Run(format.String(), func(t *testing.T) {
			var buf bytes.Buffer
			if err := c.ExportPCD(&buf, format); err != nil {
				t.Fatal(err)
			}
			pp, err := pc.Unmarshal(&buf)
			if err != nil {
				t.Fatal(err)
			}
			if pp.Points != len(points) {
				t.Fatalf("Expected %d points, got: %d", len(points), pp.Points)
			}
			it, err := pp.Vec3Iterator()
			if err != nil {
				t.Fatal(err)
			}
			for i, p := range points {
				if v := it.Vec3At(i); !v.Equal(p) {
					t.Errorf("Point %d: expected %v, got: %v", i, p, v)
				}
			}
		})
	}

	var buf bytes.Buffer
	if err := c.ExportPCD(&buf, pcd.Ascii); err == nil {
		t.Error("Expected error on ascii export")
	}
}

func TestPageCache(t *testing.T) {
	cache, err := NewPageCache(1 << 20)
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	points := sequence(600)
	c := newContainer(t, WithPageCache(cache), WithWriteBuffMax(300))
	pushAll(t, c, points)

	vs, err := c.ReadRange(0, c.Size())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(points, vs); diff != "" {
		t.Fatalf("Records differ (-expected +got):\n%s", diff)
	}
	cache.Wait()
	for page, cached := range []bool{true, true, false} {
		if _, ok := cache.get(c.Path(), int64(page)); ok != cached {
			t.Errorf("Page %d: expected cached=%v, got: %v", page, cached, ok)
		}
	}

	// Reads across pages must be served from the cache as well.
	for _, i := range []int64{0, 255, 256, 300, 511, 512, 599} {
		v, err := c.At(i)
		if err != nil {
			t.Fatal(err)
		}
		if !v.Equal(points[i]) {
			t.Errorf("Record %d: expected %v, got: %v", i, points[i], v)
		}
	}
	vs, err = c.ReadRange(250, 300)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(points[250:550], vs); diff != "" {
		t.Errorf("Records differ (-expected +got):\n%s", diff)
	}

	if err := c.Remove(); err != nil {
		t.Fatal(err)
	}
	cache.Wait()
	if _, ok := cache.get(c.Path(), 0); ok {
		t.Error("Pages of the removed file must be dropped")
	}
	if _, err := os.Stat(c.Path()); !os.IsNotExist(err) {
		t.Errorf("File must be removed, got: %v", err)
	}
}
