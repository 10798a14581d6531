package exception

import (
	"errors"
	"fmt"
)

// Cache, persistence and recorder errors
var (
	ErrUnsupportedEncoding = errors.New("cache: unsupported encoding")
	ErrUnknownBackend      = errors.New("cache: unknown backend")
	ErrCacheClosed         = errors.New("cache: closed")
	ErrKeyNotFound         = fmt.Errorf("cache: key %w", ErrNotFound)
	ErrSchemaMismatch      = errors.New("persistence: schema mismatch")
	ErrMissingMetadata     = errors.New("persistence: missing schema metadata")
	ErrUnknownDataKind     = errors.New("persistence: unknown data kind")

	ErrShortPayload        = errors.New("codec: short payload")
	ErrSlotOverflow        = errors.New("codec: value exceeds fixed slot")
	ErrUnknownSymbol       = fmt.Errorf("codec: symbol %w", ErrNotFound)
	ErrUnknownRecord       = errors.New("codec: unknown record type")
	ErrWALInvalidMagic     = errors.New("wal: invalid magic")
	ErrWALUnsupportedVer   = errors.New("wal: unsupported record version")
	ErrWALHeaderSize       = errors.New("wal: invalid header size")
	ErrWALChecksum         = errors.New("wal: checksum mismatch")
	ErrWALQueueFull        = errors.New("wal: queue full")
	ErrWALClosed           = errors.New("wal: writer closed")
	ErrWALNotStarted       = errors.New("wal: writer not started")
	ErrWALAlreadyStarted   = errors.New("wal: writer already started")
	ErrWALPayloadTooLarge  = errors.New("wal: payload too large")
	ErrWALTruncated        = errors.New("wal: truncated record")
	ErrSnapshotMismatch    = errors.New("state: snapshot mismatch")
)
