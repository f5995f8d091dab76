// Package pcd describes fixed size point records and reads/writes them in PCD layout.
//
// A Schema is the ordered list of named, typed fields of a record. Byte offsets and the
// record stride are computed once when the schema is built, so encoders never do offset
// arithmetic by hand.
package pcd

import (
	"github.com/pkg/errors"
	"github.com/seqsense/pcgol/pc"
)

const pcdVersion = 0.7

// Field is a single PCD field definition.
type Field struct {
	Name  string
	Size  int
	Type  string
	Count int
}

// Schema is an immutable ordered set of fields.
type Schema struct {
	fields  []Field
	offsets []int
	stride  int
}

func NewSchema(fields ...Field) (*Schema, error) {
	if len(fields) == 0 {
		return nil, errors.Wrap(ErrInvalidSchema, "no field")
	}
	s := &Schema{
		fields:  append([]Field{}, fields...),
		offsets: make([]int, len(fields)),
	}
	names := make(map[string]struct{}, len(fields))
	for i, f := range fields {
		if f.Name == "" {
			return nil, errors.Wrapf(ErrInvalidSchema, "field %d has no name", i)
		}
		if _, ok := names[f.Name]; ok {
			return nil, errors.Wrapf(ErrInvalidSchema, "duplicated field %q", f.Name)
		}
		names[f.Name] = struct{}{}
		switch f.Size {
		case 1, 2, 4, 8:
		default:
			return nil, errors.Wrapf(ErrInvalidSchema, "field %q has size %d", f.Name, f.Size)
		}
		switch f.Type {
		case "F":
			if f.Size != 4 && f.Size != 8 {
				return nil, errors.Wrapf(ErrInvalidSchema, "float field %q has size %d", f.Name, f.Size)
			}
		case "U", "I":
		default:
			return nil, errors.Wrapf(ErrInvalidSchema, "field %q has type %q", f.Name, f.Type)
		}
		if f.Count < 1 {
			return nil, errors.Wrapf(ErrInvalidSchema, "field %q has count %d", f.Name, f.Count)
		}
		s.offsets[i] = s.stride
		s.stride += f.Size * f.Count
	}
	return s, nil
}

// MustSchema is NewSchema for package level definitions.
func MustSchema(fields ...Field) *Schema {
	s, err := NewSchema(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// SchemaFromHeader builds a schema from the field lines of a PCD header.
func SchemaFromHeader(h pc.PointCloudHeader) (*Schema, error) {
	n := len(h.Fields)
	if len(h.Size) != n || len(h.Type) != n || len(h.Count) != n {
		return nil, errors.Wrap(ErrInvalidSchema, "FIELDS, SIZE, TYPE and COUNT lengths differ")
	}
	fields := make([]Field, n)
	for i := range fields {
		fields[i] = Field{Name: h.Fields[i], Size: h.Size[i], Type: h.Type[i], Count: h.Count[i]}
	}
	return NewSchema(fields...)
}

func (s *Schema) Fields() []Field {
	return append([]Field{}, s.fields...)
}

func (s *Schema) Stride() int {
	return s.stride
}

// Offset returns the byte offset of the named field in a record.
func (s *Schema) Offset(name string) (int, bool) {
	for i, f := range s.fields {
		if f.Name == name {
			return s.offsets[i], true
		}
	}
	return 0, false
}

func (s *Schema) Equal(o *Schema) bool {
	if s == nil || o == nil {
		return s == o
	}
	if len(s.fields) != len(o.fields) {
		return false
	}
	for i := range s.fields {
		if s.fields[i] != o.fields[i] {
			return false
		}
	}
	return true
}

// Header returns an unorganized PCD header holding the given number of points.
func (s *Schema) Header(points int) pc.PointCloudHeader {
	h := pc.PointCloudHeader{
		Version:   pcdVersion,
		Fields:    make([]string, len(s.fields)),
		Size:      make([]int, len(s.fields)),
		Type:      make([]string, len(s.fields)),
		Count:     make([]int, len(s.fields)),
		Width:     points,
		Height:    1,
		Viewpoint: []float32{0, 0, 0, 1, 0, 0, 0},
	}
	for i, f := range s.fields {
		h.Fields[i] = f.Name
		h.Size[i] = f.Size
		h.Type[i] = f.Type
		h.Count[i] = f.Count
	}
	return h
}
