package pcd

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/seqsense/pcgol/pc"
)

type Format int

const (
	Ascii Format = iota
	Binary
	BinaryCompressed
)

func (f Format) String() string {
	switch f {
	case Ascii:
		return "ascii"
	case Binary:
		return "binary"
	case BinaryCompressed:
		return "binary_compressed"
	}
	return "unknown"
}

// ParseFormat parses the value of the DATA header line.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "ascii":
		return Ascii, nil
	case "binary":
		return Binary, nil
	case "binary_compressed":
		return BinaryCompressed, nil
	}
	return 0, errors.Errorf("unknown data format %q", s)
}

// CounterWidth is the number of digits of the zero padded WIDTH and POINTS values
// written by WriteHeader. It keeps the header length independent of the point count.
const CounterWidth = 12

// ErrInvalidHeader is returned when a PCD header can not be parsed.
var ErrInvalidHeader = errors.New("invalid pcd header")

// Header is a parsed PCD header.
type Header struct {
	pc.PointCloudHeader
	Points int
	Format Format
	// Len is the number of bytes up to and including the DATA line.
	Len int
}

// WriteHeader writes an unorganized header with fixed width counters and returns
// the number of bytes written.
func WriteHeader(w io.Writer, s *Schema, points int, format Format) (int, error) {
	return writeHeader(w, s.Header(points), points, format, CounterWidth)
}

func writeHeader(w io.Writer, h pc.PointCloudHeader, points int, format Format, counterWidth int) (int, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "VERSION %s\n", strconv.FormatFloat(float64(h.Version), 'f', -1, 32))
	sb.WriteString("FIELDS")
	for _, f := range h.Fields {
		sb.WriteString(" " + f)
	}
	sb.WriteString("\nSIZE")
	for _, s := range h.Size {
		sb.WriteString(" " + strconv.Itoa(s))
	}
	sb.WriteString("\nTYPE")
	for _, t := range h.Type {
		sb.WriteString(" " + t)
	}
	sb.WriteString("\nCOUNT")
	for _, c := range h.Count {
		sb.WriteString(" " + strconv.Itoa(c))
	}
	fmt.Fprintf(&sb, "\nWIDTH %0*d\n", counterWidth, h.Width)
	fmt.Fprintf(&sb, "HEIGHT %d\n", h.Height)
	sb.WriteString("VIEWPOINT")
	vp := h.Viewpoint
	if len(vp) == 0 {
		vp = []float32{0, 0, 0, 1, 0, 0, 0}
	}
	for _, v := range vp {
		sb.WriteString(" " + strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	fmt.Fprintf(&sb, "\nPOINTS %0*d\n", counterWidth, points)
	fmt.Fprintf(&sb, "DATA %s\n", format)
	return io.WriteString(w, sb.String())
}

// ReadHeader reads header lines up to and including DATA.
// The reader is left positioned at the first data byte.
func ReadHeader(r *bufio.Reader) (*Header, error) {
	h := &Header{}
	var err error

L_HEADER:
	for {
		line, rerr := r.ReadString('\n')
		h.Len += len(line)
		if rerr != nil {
			if rerr == io.EOF {
				return nil, errors.Wrap(ErrInvalidHeader, "no DATA line")
			}
			return nil, errors.Wrap(rerr, "reading pcd header")
		}
		args := strings.Fields(line)
		if len(args) == 0 || strings.HasPrefix(args[0], "#") {
			continue
		}
		if len(args) < 2 {
			return nil, errors.Wrapf(ErrInvalidHeader, "header field %s must have value", args[0])
		}
		switch args[0] {
		case "VERSION":
			f, err := strconv.ParseFloat(args[1], 32)
			if err != nil {
				return nil, errors.Wrap(ErrInvalidHeader, err.Error())
			}
			h.Version = float32(f)
		case "FIELDS":
			h.Fields = args[1:]
		case "SIZE":
			if h.Size, err = atoiAll(args[1:]); err != nil {
				return nil, err
			}
		case "TYPE":
			h.Type = args[1:]
		case "COUNT":
			if h.Count, err = atoiAll(args[1:]); err != nil {
				return nil, err
			}
		case "WIDTH":
			if h.Width, err = atoi(args[1]); err != nil {
				return nil, err
			}
		case "HEIGHT":
			if h.Height, err = atoi(args[1]); err != nil {
				return nil, err
			}
		case "VIEWPOINT":
			h.Viewpoint = make([]float32, len(args)-1)
			for i, s := range args[1:] {
				f, err := strconv.ParseFloat(s, 32)
				if err != nil {
					return nil, errors.Wrap(ErrInvalidHeader, err.Error())
				}
				h.Viewpoint[i] = float32(f)
			}
		case "POINTS":
			if h.Points, err = atoi(args[1]); err != nil {
				return nil, err
			}
		case "DATA":
			if h.Format, err = ParseFormat(args[1]); err != nil {
				return nil, errors.Wrap(ErrInvalidHeader, err.Error())
			}
			break L_HEADER
		}
	}
	if len(h.Fields) != len(h.Size) {
		return nil, errors.Wrap(ErrInvalidHeader, "size field size is wrong")
	}
	if len(h.Fields) != len(h.Type) {
		return nil, errors.Wrap(ErrInvalidHeader, "type field size is wrong")
	}
	if len(h.Fields) != len(h.Count) {
		return nil, errors.Wrap(ErrInvalidHeader, "count field size is wrong")
	}
	return h, nil
}

func atoi(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Wrap(ErrInvalidHeader, err.Error())
	}
	return n, nil
}

func atoiAll(ss []string) ([]int, error) {
	ret := make([]int, len(ss))
	for i, s := range ss {
		n, err := atoi(s)
		if err != nil {
			return nil, err
		}
		ret[i] = n
	}
	return ret, nil
}
