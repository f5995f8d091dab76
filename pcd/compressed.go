package pcd

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"github.com/seqsense/pcgol/pc"
	"github.com/zhuyie/golzf"
)

// MarshalCompressed writes pp as a DATA binary_compressed PCD.
// Records are reordered field by field before LZF compression.
func MarshalCompressed(pp *pc.PointCloud, w io.Writer) error {
	h := pp.PointCloudHeader
	n := len(h.Fields)
	if len(h.Size) != n || len(h.Count) != n || len(h.Type) != n {
		return errors.Wrap(ErrInvalidSchema, "FIELDS, SIZE, TYPE and COUNT lengths differ")
	}
	stride := pp.Stride()
	if len(pp.Data) < pp.Points*stride {
		return errors.Wrapf(io.ErrUnexpectedEOF, "data has %d bytes for %d points", len(pp.Data), pp.Points)
	}

	raw := make([]byte, pp.Points*stride)
	var head, off int
	for i := range h.Fields {
		size := h.Size[i] * h.Count[i]
		for p := 0; p < pp.Points; p++ {
			from := p*stride + off
			to := head + p*size
			copy(raw[to:to+size], pp.Data[from:from+size])
		}
		head += size * pp.Points
		off += size
	}

	var compressed []byte
	if len(raw) > 0 {
		buf := make([]byte, len(raw)+len(raw)/16+64)
		nc, err := lzf.Compress(raw, buf)
		if err != nil {
			return errors.Wrap(err, "compressing point data")
		}
		compressed = buf[:nc]
	}

	if _, err := writeHeader(w, h, pp.Points, BinaryCompressed, 0); err != nil {
		return err
	}
	var sizes [8]byte
	binary.LittleEndian.PutUint32(sizes[0:], uint32(len(compressed)))
	binary.LittleEndian.PutUint32(sizes[4:], uint32(len(raw)))
	if _, err := w.Write(sizes[:]); err != nil {
		return err
	}
	_, err := w.Write(compressed)
	return err
}
