package outofcore

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// recordReader reads committed records, opening the file on the first uncached read.
type recordReader[T any] struct {
	c *DiskContainer[T]
	f *os.File
}

func (c *DiskContainer[T]) reader() *recordReader[T] {
	return &recordReader[T]{c: c}
}

func (r *recordReader[T]) Close() error {
	if r.f == nil {
		return nil
	}
	return r.f.Close()
}

// read returns the encoded records [start, start+count).
func (r *recordReader[T]) read(start, count int64) ([]byte, error) {
	if r.c.cache == nil {
		return r.readFile(start, count)
	}
	ret := make([]byte, 0, count*r.c.stride)
	end := start + count
	for idx := start; idx < end; {
		page := idx / pageRecords
		pageStart := page * pageRecords
		pageEnd := pageStart + pageRecords
		if pageEnd > r.c.fileLen {
			// Partial pages are still growing.
			b, err := r.readFile(idx, end-idx)
			if err != nil {
				return nil, err
			}
			return append(ret, b...), nil
		}
		b, err := r.page(page)
		if err != nil {
			return nil, err
		}
		n := min(pageEnd, end) - idx
		off := (idx - pageStart) * r.c.stride
		ret = append(ret, b[off:off+n*r.c.stride]...)
		idx += n
	}
	return ret, nil
}

func (r *recordReader[T]) page(page int64) ([]byte, error) {
	if b, ok := r.c.cache.get(r.c.path, page); ok && int64(len(b)) == pageRecords*r.c.stride {
		return b, nil
	}
	b, err := r.readFile(page*pageRecords, pageRecords)
	if err != nil {
		return nil, err
	}
	r.c.cache.set(r.c.path, page, b)
	return b, nil
}

func (r *recordReader[T]) readFile(start, count int64) ([]byte, error) {
	b := make([]byte, count*r.c.stride)
	if count == 0 {
		return b, nil
	}
	if r.f == nil {
		f, err := os.Open(r.c.path)
		if err != nil {
			return nil, errors.Wrapf(err, "opening %s", r.c.path)
		}
		r.f = f
	}
	n, err := r.f.ReadAt(b, r.c.headerLen+start*r.c.stride)
	if n < len(b) {
		if err == nil || err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, errors.Wrapf(err, "reading records [%d, %d) of %s", start, start+count, r.c.path)
	}
	return b, nil
}
