package recorder

import (
	"sync/atomic"

	"github.com/yanun0323/logs"

	"tradecore/internal/bus"
	"tradecore/internal/codec"
	"tradecore/internal/model"
	"tradecore/internal/obs"
	"tradecore/internal/schema"
)

// Recorder encodes data and fills published on the bus and appends them to
// the WAL. Sequence numbers continue from the last record already in the
// writer's directory, starting at 1 for an empty one.
type Recorder struct {
	writer *Writer
	codec  *codec.Codec
	trace  *obs.TraceGenerator
	seq    atomic.Uint64
}

func NewRecorder(writer *Writer, c *codec.Codec, trace *obs.TraceGenerator) *Recorder {
	r := &Recorder{writer: writer, codec: c, trace: trace}
	r.seq.Store(writer.LastSeq())
	return r
}

// Seq returns the sequence number of the last appended record.
func (r *Recorder) Seq() uint64 { return r.seq.Load() }

// RecordData appends d. Variants without a record type are ignored.
func (r *Recorder) RecordData(d model.Data) error {
	if _, ok := schema.RecordTypeOf(d.Kind()); !ok {
		return nil
	}
	header, payload, err := r.codec.EncodeData(nil, r.seq.Load()+1, d)
	if err != nil {
		return err
	}
	return r.append(header, payload)
}

func (r *Recorder) RecordFill(fill model.OrderFilled) error {
	header, payload, err := r.codec.EncodeFill(nil, r.seq.Load()+1, fill)
	if err != nil {
		return err
	}
	return r.append(header, payload)
}

func (r *Recorder) append(header schema.Header, payload []byte) error {
	header.TraceID = r.trace.Next()
	if err := r.writer.TryAppend(header, payload); err != nil {
		return err
	}
	r.seq.Store(header.Seq)
	return nil
}

// Handler returns the bus handler that records every data value and fill it
// receives. Subscribe it to data and fill topics.
func (r *Recorder) Handler() *bus.Handler {
	return bus.NewHandler("Recorder", func(topic string, msg any) {
		var err error
		switch v := msg.(type) {
		case model.OrderFilled:
			err = r.RecordFill(v)
		case model.Data:
			err = r.RecordData(v)
		default:
			return
		}
		if err != nil {
			logs.Warnf("recorder: %s not recorded, err: %+v", topic, err)
		}
	})
}
