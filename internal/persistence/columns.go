package persistence

import (
	"encoding/binary"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/yanun0323/errors"

	"tradecore/internal/model"
	"tradecore/pkg/exception"
)

const rawWidth = 16

func putRaw128(dst []byte, v int64) {
	binary.LittleEndian.PutUint64(dst[:8], uint64(v))
	var high uint64
	if v < 0 {
		high = ^uint64(0)
	}
	binary.LittleEndian.PutUint64(dst[8:16], high)
}

func readRaw128(src []byte) (int64, error) {
	if len(src) != rawWidth {
		return 0, errors.Wrap(exception.ErrSchemaMismatch, "raw width").With("width", len(src))
	}
	v := int64(binary.LittleEndian.Uint64(src[:8]))
	var want uint64
	if v < 0 {
		want = ^uint64(0)
	}
	if binary.LittleEndian.Uint64(src[8:16]) != want {
		return 0, errors.Wrap(exception.ErrOverflow, "raw value exceeds 64 bits")
	}
	return v, nil
}

// rowBuilder appends values to named columns of a record builder.
type rowBuilder struct {
	b   *array.RecordBuilder
	idx map[string]int
}

func newRowBuilder(b *array.RecordBuilder) rowBuilder {
	fields := b.Schema().Fields()
	idx := make(map[string]int, len(fields))
	for i, f := range fields {
		idx[f.Name] = i
	}
	return rowBuilder{b: b, idx: idx}
}

func (r rowBuilder) field(name string) array.Builder {
	return r.b.Field(r.idx[name])
}

func (r rowBuilder) raw(name string, v int64) {
	switch b := r.field(name).(type) {
	case *array.Int64Builder:
		b.Append(v)
	case *array.FixedSizeBinaryBuilder:
		var buf [rawWidth]byte
		putRaw128(buf[:], v)
		b.Append(buf[:])
	}
}

func (r rowBuilder) u8(name string, v uint8)   { r.field(name).(*array.Uint8Builder).Append(v) }
func (r rowBuilder) u32(name string, v uint32) { r.field(name).(*array.Uint32Builder).Append(v) }
func (r rowBuilder) u64(name string, v uint64) { r.field(name).(*array.Uint64Builder).Append(v) }
func (r rowBuilder) str(name string, v string) { r.field(name).(*array.StringBuilder).Append(v) }
func (r rowBuilder) boolean(name string, v bool) {
	r.field(name).(*array.BooleanBuilder).Append(v)
}

func (r rowBuilder) ts(tsEvent, tsInit model.UnixNanos) {
	r.u64("ts_event", uint64(tsEvent))
	r.u64("ts_init", uint64(tsInit))
}

// rowReader reads named columns of a record. The first failure is kept in err
// and later reads return zero values.
type rowReader struct {
	rec  arrow.Record
	meta Metadata
	err  error
}

func (r *rowReader) column(name string) arrow.Array {
	if r.err != nil {
		return nil
	}
	idx := r.rec.Schema().FieldIndices(name)
	if len(idx) == 0 {
		r.err = errors.Wrap(exception.ErrSchemaMismatch, "missing column").With("column", name)
		return nil
	}
	return r.rec.Column(idx[0])
}

func (r *rowReader) fail(name string) {
	if r.err == nil {
		r.err = errors.Wrap(exception.ErrSchemaMismatch, "column type").With("column", name)
	}
}

func (r *rowReader) raw(name string, row int) int64 {
	switch a := r.column(name).(type) {
	case *array.Int64:
		return a.Value(row)
	case *array.FixedSizeBinary:
		v, err := readRaw128(a.Value(row))
		if err != nil && r.err == nil {
			r.err = errors.Wrap(err, "read raw").With("column", name).With("row", row)
		}
		return v
	case nil:
		return 0
	default:
		r.fail(name)
		return 0
	}
}

func (r *rowReader) price(name string, row int) model.Price {
	return model.PriceFromRaw(r.raw(name, row), r.meta.PricePrecision)
}

func (r *rowReader) qty(name string, row int) model.Quantity {
	return model.QuantityFromRaw(r.raw(name, row), r.meta.SizePrecision)
}

func (r *rowReader) u8(name string, row int) uint8 {
	a, ok := r.column(name).(*array.Uint8)
	if !ok {
		r.fail(name)
		return 0
	}
	return a.Value(row)
}

func (r *rowReader) u32(name string, row int) uint32 {
	a, ok := r.column(name).(*array.Uint32)
	if !ok {
		r.fail(name)
		return 0
	}
	return a.Value(row)
}

func (r *rowReader) u64(name string, row int) uint64 {
	a, ok := r.column(name).(*array.Uint64)
	if !ok {
		r.fail(name)
		return 0
	}
	return a.Value(row)
}

func (r *rowReader) str(name string, row int) string {
	a, ok := r.column(name).(*array.String)
	if !ok {
		r.fail(name)
		return ""
	}
	return a.Value(row)
}

func (r *rowReader) boolean(name string, row int) bool {
	a, ok := r.column(name).(*array.Boolean)
	if !ok {
		r.fail(name)
		return false
	}
	return a.Value(row)
}

func (r *rowReader) ts(row int) (model.UnixNanos, model.UnixNanos) {
	return model.UnixNanos(r.u64("ts_event", row)), model.UnixNanos(r.u64("ts_init", row))
}
