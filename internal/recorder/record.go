package recorder

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/yanun0323/errors"

	"tradecore/internal/model"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

// On disk a record is a fixed frame, the payload, then a CRC32-C over both:
//
//	0   magic "TCW1"        24  ts_event
//	4   frame version       32  ts_init
//	6   frame size          40  trace id
//	8   record type         48  payload length
//	10  schema version      52  crc32c of bytes [0, 52)
//	12  source venue        56  payload
//	14  flags               ..  crc32c of frame and payload
//	16  seq
//
// The frame carries its own checksum so a corrupt length is caught before the
// payload is read.
const (
	frameVersion   uint16 = 2
	frameSize             = 56
	checksumSize          = 4
	recordOverhead        = frameSize + checksumSize

	maxPayloadLen = 1<<32 - 1
)

var (
	frameMagic = [4]byte{'T', 'C', 'W', '1'}
	castagnoli = crc32.MakeTable(crc32.Castagnoli)
)

type frame [frameSize]byte

func (f *frame) encode(h schema.Header, payloadLen int) {
	le := binary.LittleEndian
	copy(f[0:4], frameMagic[:])
	le.PutUint16(f[4:], frameVersion)
	le.PutUint16(f[6:], frameSize)
	le.PutUint16(f[8:], uint16(h.Type))
	le.PutUint16(f[10:], h.Version)
	le.PutUint16(f[12:], uint16(h.Source))
	le.PutUint16(f[14:], h.Flags)
	le.PutUint64(f[16:], h.Seq)
	le.PutUint64(f[24:], uint64(h.TsEvent))
	le.PutUint64(f[32:], uint64(h.TsInit))
	le.PutUint64(f[40:], h.TraceID)
	le.PutUint32(f[48:], uint32(payloadLen))
	le.PutUint32(f[52:], crc32.Checksum(f[:52], castagnoli))
}

// decode checks the frame and returns the header and payload length. The
// frame checksum is skipped when verify is false.
func (f *frame) decode(verify bool) (schema.Header, int, error) {
	le := binary.LittleEndian
	if [4]byte(f[0:4]) != frameMagic {
		return schema.Header{}, 0, errors.Wrap(exception.ErrWALInvalidMagic, "decode frame").With("magic", string(f[0:4]))
	}
	if v := le.Uint16(f[4:]); v != frameVersion {
		return schema.Header{}, 0, errors.Wrap(exception.ErrWALUnsupportedVer, "decode frame").With("version", v)
	}
	if n := le.Uint16(f[6:]); n != frameSize {
		return schema.Header{}, 0, errors.Wrap(exception.ErrWALHeaderSize, "decode frame").With("size", n)
	}
	if verify && crc32.Checksum(f[:52], castagnoli) != le.Uint32(f[52:]) {
		return schema.Header{}, 0, errors.Wrap(exception.ErrWALChecksum, "decode frame")
	}
	return schema.Header{
		Type:    schema.RecordType(le.Uint16(f[8:])),
		Version: le.Uint16(f[10:]),
		Source:  schema.VenueID(le.Uint16(f[12:])),
		Flags:   le.Uint16(f[14:]),
		Seq:     le.Uint64(f[16:]),
		TsEvent: model.UnixNanos(le.Uint64(f[24:])),
		TsInit:  model.UnixNanos(le.Uint64(f[32:])),
		TraceID: le.Uint64(f[40:]),
	}, int(le.Uint32(f[48:])), nil
}

func recordChecksum(f *frame, payload []byte) uint32 {
	return crc32.Update(crc32.Checksum(f[:], castagnoli), castagnoli, payload)
}
