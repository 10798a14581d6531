package recorder

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/yanun0323/errors"

	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

type ReaderOptions struct {
	DisableChecksum bool
	// MaxPayloadSize rejects larger records. Zero means no limit.
	MaxPayloadSize int
}

// Reader decodes records from one segment in order. A segment that ends inside
// a record yields exception.ErrWALTruncated; Offset then points at the start
// of that record.
type Reader struct {
	src     *bufio.Reader
	opts    ReaderOptions
	frame   frame
	sum     [checksumSize]byte
	payload []byte
	offset  int64
}

func NewReader(r io.Reader, opts ReaderOptions) *Reader {
	return &Reader{src: bufio.NewReader(r), opts: opts}
}

// Offset returns the byte offset just past the last whole record.
func (r *Reader) Offset() int64 { return r.offset }

// Next returns the next record. io.EOF marks a clean end. The payload is
// reused by the following call.
func (r *Reader) Next() (schema.Header, []byte, error) {
	if err := r.read(r.frame[:], true); err != nil {
		return schema.Header{}, nil, err
	}
	header, n, err := r.frame.decode(!r.opts.DisableChecksum)
	if err != nil {
		return header, nil, errors.Wrap(err, "read record").With("offset", r.offset)
	}
	if r.opts.MaxPayloadSize > 0 && n > r.opts.MaxPayloadSize {
		return header, nil, errors.Wrap(exception.ErrWALPayloadTooLarge, "read record").With("len", n).With("seq", header.Seq)
	}

	if cap(r.payload) < n {
		r.payload = make([]byte, n)
	}
	r.payload = r.payload[:n]
	if err := r.read(r.payload, false); err != nil {
		return header, nil, err
	}
	if err := r.read(r.sum[:], false); err != nil {
		return header, nil, err
	}
	if !r.opts.DisableChecksum && recordChecksum(&r.frame, r.payload) != binary.LittleEndian.Uint32(r.sum[:]) {
		return header, nil, errors.Wrap(exception.ErrWALChecksum, "read record").With("seq", header.Seq)
	}

	r.offset += int64(recordOverhead + n)
	return header, r.payload, nil
}

// read fills buf. Running out of input is only a clean end at a record
// boundary.
func (r *Reader) read(buf []byte, boundary bool) error {
	n, err := io.ReadFull(r.src, buf)
	switch {
	case err == nil:
		return nil
	case boundary && n == 0 && err == io.EOF:
		return io.EOF
	case err == io.EOF || err == io.ErrUnexpectedEOF:
		return errors.Wrap(exception.ErrWALTruncated, "read record").With("offset", r.offset)
	}
	return errors.Wrap(err, "read record").With("offset", r.offset)
}
