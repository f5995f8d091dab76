// Package outofcore implements disk backed record containers used as octree leaves.
package outofcore

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/seqsense/pcgol/pc"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/seqsense/pcdoctree/pcd"
	"github.com/seqsense/pcdoctree/pcd/sac"
)

// DefaultWriteBuffMax is the default number of buffered records triggering a flush.
const DefaultWriteBuffMax = 2000

// ErrInvalidFraction is returned when a sampling fraction is outside of [0, 1].
var ErrInvalidFraction = errors.New("fraction must be in [0, 1]")

type config struct {
	writeBuffMax int
	seed         int64
	seeded       bool
	rng          *rand.Rand
	cache        *PageCache
	logger       *zap.Logger
}

type Option func(*config)

// WithWriteBuffMax sets the number of buffered records triggering a flush.
func WithWriteBuffMax(n int) Option {
	return func(c *config) {
		c.writeBuffMax = n
	}
}

// WithSeed seeds the random source used for sampling.
func WithSeed(seed int64) Option {
	return func(c *config) {
		c.seed = seed
		c.seeded = true
		c.rng = nil
	}
}

// WithRand sets the random source used for sampling.
// The source is not safe for concurrent use and must not be shared between
// containers used from different goroutines.
func WithRand(rng *rand.Rand) Option {
	return func(c *config) {
		c.rng = rng
		c.seeded = false
	}
}

func WithPageCache(cache *PageCache) Option {
	return func(c *config) {
		c.cache = cache
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

func newConfig(opts []Option) *config {
	c := &config{
		writeBuffMax: DefaultWriteBuffMax,
		logger:       zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.writeBuffMax < 1 {
		c.writeBuffMax = 1
	}
	return c
}

func (c *config) rand() *rand.Rand {
	if c.rng != nil {
		return c.rng
	}
	if c.seeded {
		return rand.New(rand.NewSource(c.seed))
	}
	u := uuid.New()
	return rand.New(rand.NewSource(int64(binary.LittleEndian.Uint64(u[:8]))))
}

// DiskContainer is an append only sequence of records stored in a binary PCD file.
// Records are buffered in memory and appended to the file on flush.
// A container must be used from one goroutine at a time.
type DiskContainer[T any] struct {
	path      string
	codec     pcd.Codec[T]
	schema    *pcd.Schema
	stride    int64
	headerLen int64
	fileLen   int64
	buffer    []T

	writeBuffMax int
	rng          *rand.Rand
	cache        *PageCache
	logger       *zap.Logger
}

// New opens the container stored at path, creating the file if it does not exist.
func New[T any](path string, codec pcd.Codec[T], opts ...Option) (*DiskContainer[T], error) {
	cfg := newConfig(opts)
	c := &DiskContainer[T]{
		path:         path,
		codec:        codec,
		schema:       codec.Schema(),
		stride:       int64(codec.Schema().Stride()),
		writeBuffMax: cfg.writeBuffMax,
		rng:          cfg.rand(),
		cache:        cfg.cache,
		logger:       cfg.logger.With(zap.String("path", path)),
	}

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := c.load(f); err != nil {
			return nil, errors.Wrapf(err, "opening %s", path)
		}
		return c, nil
	case os.IsNotExist(err):
		if err := c.create(); err != nil {
			return nil, errors.Wrapf(err, "creating %s", path)
		}
		return c, nil
	default:
		return nil, errors.Wrapf(err, "opening %s", path)
	}
}

// NewTemp creates a container in dir with a random unique file name.
func NewTemp[T any](dir string, codec pcd.Codec[T], opts ...Option) (*DiskContainer[T], error) {
	return New(filepath.Join(dir, uuid.NewString()+".pcd"), codec, opts...)
}

func (c *DiskContainer[T]) create() error {
	f, err := os.OpenFile(c.path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	n, err := pcd.WriteHeader(f, c.schema, 0, pcd.Binary)
	if err != nil {
		return multierr.Append(err, f.Close())
	}
	c.headerLen = int64(n)
	return f.Close()
}

func (c *DiskContainer[T]) load(f *os.File) error {
	h, err := pcd.ReadHeader(bufio.NewReader(f))
	if err != nil {
		return err
	}
	if h.Format != pcd.Binary {
		return errors.Wrapf(pcd.ErrInvalidHeader, "data format must be binary, got %s", h.Format)
	}
	s, err := pcd.SchemaFromHeader(h.PointCloudHeader)
	if err != nil {
		return err
	}
	if !s.Equal(c.schema) {
		return errors.Wrapf(pcd.ErrSchemaMismatch, "file fields %v", h.Fields)
	}
	// The header is rewritten in place on flush.
	n, err := pcd.WriteHeader(io.Discard, c.schema, h.Points, pcd.Binary)
	if err != nil {
		return err
	}
	if n != h.Len {
		return errors.Wrap(pcd.ErrInvalidHeader, "header counters are not fixed width")
	}

	st, err := f.Stat()
	if err != nil {
		return err
	}
	c.headerLen = int64(h.Len)
	c.fileLen = int64(h.Points)
	size := c.headerLen + c.fileLen*c.stride
	switch {
	case st.Size() < size:
		return errors.Wrapf(io.ErrUnexpectedEOF, "%d records expected", c.fileLen)
	case st.Size() > size:
		c.logger.Warn("Ignoring trailing bytes",
			zap.Int64("bytes", st.Size()-size),
		)
	}
	return nil
}

func (c *DiskContainer[T]) Path() string {
	return c.path
}

// Size returns the number of records including buffered ones.
func (c *DiskContainer[T]) Size() int64 {
	return c.fileLen + int64(len(c.buffer))
}

// Push appends v to the write buffer and flushes when the buffer is full.
func (c *DiskContainer[T]) Push(v T) error {
	c.buffer = append(c.buffer, v)
	if len(c.buffer) >= c.writeBuffMax {
		return c.Flush(false)
	}
	return nil
}

// InsertRange appends vs to the file in one write.
func (c *DiskContainer[T]) InsertRange(vs []T) error {
	if err := c.Flush(false); err != nil {
		return err
	}
	if len(vs) == 0 {
		return nil
	}
	return c.appendRecords(pcd.EncodeAll(c.codec, vs), int64(len(vs)))
}

// InsertCloud appends the points of a PCD stream having the container fields.
func (c *DiskContainer[T]) InsertCloud(r io.Reader) error {
	pp, err := pc.Unmarshal(r)
	if err != nil {
		return errors.Wrap(err, "reading point cloud")
	}
	s, err := pcd.SchemaFromHeader(pp.PointCloudHeader)
	if err != nil {
		return err
	}
	if !s.Equal(c.schema) {
		return errors.Wrapf(pcd.ErrSchemaMismatch, "cloud fields %v", pp.Fields)
	}
	n := pp.Points * int(c.stride)
	if len(pp.Data) < n {
		return errors.Wrapf(io.ErrUnexpectedEOF, "%d points expected", pp.Points)
	}
	return c.InsertRange(pcd.DecodeAll(c.codec, make([]T, 0, pp.Points), pp.Data[:n]))
}

// Flush appends the buffered records to the file and updates the header.
// The buffer capacity is released if forceDealloc is true.
func (c *DiskContainer[T]) Flush(forceDealloc bool) error {
	if len(c.buffer) > 0 {
		if err := c.appendRecords(pcd.EncodeAll(c.codec, c.buffer), int64(len(c.buffer))); err != nil {
			return err
		}
		c.logger.Debug("Flushed records",
			zap.Int("records", len(c.buffer)),
			zap.Int64("total", c.fileLen),
		)
	}
	if forceDealloc {
		c.buffer = nil
	} else {
		c.buffer = c.buffer[:0]
	}
	return nil
}

func (c *DiskContainer[T]) appendRecords(b []byte, n int64) (err error) {
	f, err := os.OpenFile(c.path, os.O_RDWR, 0)
	if err != nil {
		return errors.Wrapf(err, "opening %s", c.path)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	end := c.headerLen + c.fileLen*c.stride
	if _, err := f.WriteAt(b, end); err != nil {
		return errors.Wrapf(err, "writing %d records to %s", n, c.path)
	}
	// Drop trailing bytes left by an interrupted flush.
	if err := f.Truncate(end + int64(len(b))); err != nil {
		return errors.Wrapf(err, "truncating %s", c.path)
	}
	var hb bytes.Buffer
	if _, err := pcd.WriteHeader(&hb, c.schema, int(c.fileLen+n), pcd.Binary); err != nil {
		return err
	}
	if int64(hb.Len()) != c.headerLen {
		return errors.Wrapf(pcd.ErrInvalidHeader, "header length changed from %d to %d", c.headerLen, hb.Len())
	}
	if _, err := f.WriteAt(hb.Bytes(), 0); err != nil {
		return errors.Wrapf(err, "writing header of %s", c.path)
	}
	c.fileLen += n
	return nil
}

// Close flushes the buffer and releases its memory.
func (c *DiskContainer[T]) Close() error {
	return c.Flush(true)
}

// Remove deletes the backing file. The container must not be used afterwards.
func (c *DiskContainer[T]) Remove() error {
	if c.cache != nil {
		c.cache.remove(c.path, c.fileLen/pageRecords)
	}
	c.buffer = nil
	c.fileLen = 0
	return errors.Wrapf(os.Remove(c.path), "removing %s", c.path)
}

func (c *DiskContainer[T]) checkRange(start, count int64) error {
	if start < 0 || count < 0 || start+count > c.Size() {
		return errors.Wrapf(pcd.ErrOutOfRange, "range [%d, %d) of %d records", start, start+count, c.Size())
	}
	return nil
}

// At returns the record at idx.
func (c *DiskContainer[T]) At(idx int64) (T, error) {
	var v T
	if idx < 0 || idx >= c.Size() {
		return v, errors.Wrapf(pcd.ErrOutOfRange, "record %d of %d", idx, c.Size())
	}
	if idx >= c.fileLen {
		return c.buffer[idx-c.fileLen], nil
	}
	r := c.reader()
	defer r.Close()
	b, err := r.read(idx, 1)
	if err != nil {
		return v, err
	}
	return c.codec.Decode(b), nil
}

// ReadRange returns count records starting from start.
func (c *DiskContainer[T]) ReadRange(start, count int64) ([]T, error) {
	if err := c.checkRange(start, count); err != nil {
		return nil, err
	}
	ret := make([]T, 0, count)
	end := start + count
	if start < c.fileLen {
		fileEnd := end
		if fileEnd > c.fileLen {
			fileEnd = c.fileLen
		}
		r := c.reader()
		defer r.Close()
		b, err := r.read(start, fileEnd-start)
		if err != nil {
			return nil, err
		}
		ret = pcd.DecodeAll(c.codec, ret, b)
	}
	if end > c.fileLen {
		bufStart := start - c.fileLen
		if bufStart < 0 {
			bufStart = 0
		}
		ret = append(ret, c.buffer[bufStart:end-c.fileLen]...)
	}
	return ret, nil
}

// split returns the file and buffer parts of a record range.
func (c *DiskContainer[T]) split(start, count int64) (fileCount, bufStart, bufCount int64) {
	end := start + count
	if start < c.fileLen {
		fileCount = count
		if end > c.fileLen {
			fileCount = c.fileLen - start
		}
	}
	bufStart = start + fileCount - c.fileLen
	bufCount = count - fileCount
	return
}

// ReadRangeSubSample returns about fraction*count records drawn uniformly with
// replacement from the range. The file and the buffer are sampled in proportion
// to their share of the range. Samples from the file are returned in file order
// followed by samples from the buffer.
// If the sample size rounds down to zero, elements are selected by
// ReadRangeSubSampleBernoulli instead.
func (c *DiskContainer[T]) ReadRangeSubSample(start, count int64, fraction float64) ([]T, error) {
	if err := c.checkRange(start, count); err != nil {
		return nil, err
	}
	if !(fraction >= 0 && fraction <= 1) {
		return nil, errors.Wrapf(ErrInvalidFraction, "got %v", fraction)
	}
	fileCount, bufStart, bufCount := c.split(start, count)
	fileSamp := int64(math.Floor(fraction * float64(fileCount)))
	bufSamp := int64(math.Floor(fraction * float64(bufCount)))
	if fileSamp == 0 && bufSamp == 0 {
		if count == 0 {
			return nil, nil
		}
		return c.ReadRangeSubSampleBernoulli(start, count, fraction)
	}

	ret := make([]T, 0, fileSamp+bufSamp)
	if fileSamp > 0 {
		offsets := make([]int64, fileSamp)
		s := sac.NewRandomSampler(c.rng, int(fileCount))
		for i := range offsets {
			offsets[i] = start + int64(s.Sample())
		}
		sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
		var err error
		if ret, err = c.readOffsets(ret, offsets); err != nil {
			return nil, err
		}
	}
	if bufSamp > 0 {
		s := sac.NewRandomSampler(c.rng, int(bufCount))
		for i := int64(0); i < bufSamp; i++ {
			ret = append(ret, c.buffer[bufStart+int64(s.Sample())])
		}
	}
	return ret, nil
}

// ReadRangeSubSampleBernoulli returns the records of the range each selected with
// the probability fraction, in index order.
func (c *DiskContainer[T]) ReadRangeSubSampleBernoulli(start, count int64, fraction float64) ([]T, error) {
	if err := c.checkRange(start, count); err != nil {
		return nil, err
	}
	if !(fraction >= 0 && fraction <= 1) {
		return nil, errors.Wrapf(ErrInvalidFraction, "got %v", fraction)
	}
	fileCount, bufStart, bufCount := c.split(start, count)

	var offsets []int64
	for i := int64(0); i < fileCount; i++ {
		if c.rng.Float64() < fraction {
			offsets = append(offsets, start+i)
		}
	}
	ret, err := c.readOffsets(nil, offsets)
	if err != nil {
		return nil, err
	}
	for i := int64(0); i < bufCount; i++ {
		if c.rng.Float64() < fraction {
			ret = append(ret, c.buffer[bufStart+i])
		}
	}
	return ret, nil
}

// readOffsets appends the committed records at the sorted offsets to dst.
func (c *DiskContainer[T]) readOffsets(dst []T, offsets []int64) ([]T, error) {
	if len(offsets) == 0 {
		return dst, nil
	}
	r := c.reader()
	defer r.Close()
	for _, off := range offsets {
		b, err := r.read(off, 1)
		if err != nil {
			return nil, err
		}
		dst = append(dst, c.codec.Decode(b))
	}
	return dst, nil
}

// ExportPCD writes every record as a PCD file.
func (c *DiskContainer[T]) ExportPCD(w io.Writer, format pcd.Format) error {
	r := c.reader()
	defer r.Close()
	b, err := r.read(0, c.fileLen)
	if err != nil {
		return err
	}
	b = append(b, pcd.EncodeAll(c.codec, c.buffer)...)

	n := int(c.Size())
	pp := &pc.PointCloud{
		PointCloudHeader: c.schema.Header(n),
		Points:           n,
		Data:             b,
	}
	switch format {
	case pcd.Binary:
		return pc.Marshal(pp, w)
	case pcd.BinaryCompressed:
		return pcd.MarshalCompressed(pp, w)
	}
	return errors.Errorf("unsupported export format %s", format)
}
