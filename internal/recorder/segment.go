package recorder

import (
	"bufio"
	"cmp"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/pkg/exception"
)

const segmentExt = ".wal"

// Segments are named <prefix>-<id>-<opened at>.wal. Ids are zero padded and
// increase across restarts, so name order is replay order.
func segmentName(prefix string, id uint64, opened time.Time) string {
	return fmt.Sprintf("%s-%08d-%s%s", prefix, id, opened.UTC().Format("20060102T150405"), segmentExt)
}

func segmentID(prefix, name string) (uint64, bool) {
	rest, ok := strings.CutPrefix(name, prefix+"-")
	if !ok || !strings.HasSuffix(rest, segmentExt) {
		return 0, false
	}
	idPart, _, ok := strings.Cut(rest, "-")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(idPart, 10, 64)
	return id, err == nil
}

type segmentFile struct {
	id   uint64
	path string
}

// listSegments returns the segments in dir ordered by id. A missing dir holds
// no segments.
func listSegments(dir, prefix string) ([]segmentFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read wal dir").With("dir", dir)
	}
	var segs []segmentFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if id, ok := segmentID(prefix, entry.Name()); ok {
			segs = append(segs, segmentFile{id: id, path: filepath.Join(dir, entry.Name())})
		}
	}
	slices.SortFunc(segs, func(a, b segmentFile) int {
		return cmp.Or(cmp.Compare(a.id, b.id), strings.Compare(a.path, b.path))
	})
	return segs, nil
}

// tailState is where a writer picks up after a restart.
type tailState struct {
	nextID  uint64
	lastSeq uint64
}

// resumeTail scans the newest segments for the last record sequence. A torn
// record at the end of the newest segment, left by a crash mid write, is cut
// off so the segment replays cleanly.
func resumeTail(dir, prefix string) (tailState, error) {
	segs, err := listSegments(dir, prefix)
	if err != nil || len(segs) == 0 {
		return tailState{nextID: 1}, err
	}
	state := tailState{nextID: segs[len(segs)-1].id + 1}
	for i := len(segs) - 1; i >= 0; i-- {
		lastSeq, found, err := scanSegment(segs[i].path, i == len(segs)-1)
		if err != nil {
			return state, err
		}
		if found {
			state.lastSeq = lastSeq
			break
		}
	}
	return state, nil
}

func scanSegment(path string, repair bool) (uint64, bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, false, errors.Wrap(err, "open segment").With("path", path)
	}
	defer file.Close()

	var (
		lastSeq uint64
		found   bool
	)
	reader := NewReader(file, ReaderOptions{})
	for {
		header, _, err := reader.Next()
		switch {
		case err == nil:
			lastSeq, found = max(lastSeq, header.Seq), true
			continue
		case errors.Is(err, io.EOF):
			return lastSeq, found, nil
		case repair && errors.Is(err, exception.ErrWALTruncated):
			logs.Warnf("recorder: truncating torn record in %s at offset %d", path, reader.Offset())
			if err := os.Truncate(path, reader.Offset()); err != nil {
				return 0, false, errors.Wrap(err, "truncate segment").With("path", path)
			}
			return lastSeq, found, nil
		default:
			return 0, false, errors.Wrap(err, "scan segment").With("path", path)
		}
	}
}

// segmentLog owns the open segment. Only the writer goroutine touches it.
type segmentLog struct {
	dir      string
	prefix   string
	maxBytes int64
	maxAge   time.Duration
	bufSize  int
	nextID   uint64

	file   *os.File
	buf    *bufio.Writer
	size   int64
	opened time.Time

	frame frame
	sum   [checksumSize]byte

	segments *atomic.Uint64
	bytes    *atomic.Uint64
}

func (l *segmentLog) append(rec pending, now time.Time) error {
	if len(rec.payload) > maxPayloadLen {
		return exception.ErrWALPayloadTooLarge
	}
	n := int64(recordOverhead + len(rec.payload))
	if l.expired(now, n) {
		if err := l.close(); err != nil {
			return err
		}
		if err := l.open(now); err != nil {
			return err
		}
	}

	l.frame.encode(rec.header, len(rec.payload))
	binary.LittleEndian.PutUint32(l.sum[:], recordChecksum(&l.frame, rec.payload))
	for _, part := range [][]byte{l.frame[:], rec.payload, l.sum[:]} {
		if _, err := l.buf.Write(part); err != nil {
			return errors.Wrap(err, "write record").With("seq", rec.header.Seq)
		}
	}
	l.size += n
	l.bytes.Add(uint64(n))
	return nil
}

func (l *segmentLog) expired(now time.Time, next int64) bool {
	switch {
	case l.file == nil:
		return true
	case l.size > 0 && l.size+next > l.maxBytes:
		return true
	case l.maxAge > 0 && now.Sub(l.opened) >= l.maxAge:
		return true
	}
	return false
}

func (l *segmentLog) open(now time.Time) error {
	for {
		path := filepath.Join(l.dir, segmentName(l.prefix, l.nextID, now))
		l.nextID++
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return errors.Wrap(err, "open segment").With("path", path)
		}
		logs.Debugf("recorder: opened segment %s", path)
		l.file, l.buf, l.size, l.opened = file, bufio.NewWriterSize(file, l.bufSize), 0, now
		l.segments.Add(1)
		return nil
	}
}

func (l *segmentLog) flush() error {
	if l.file == nil {
		return nil
	}
	return l.buf.Flush()
}

func (l *segmentLog) sync() error {
	if err := l.flush(); err != nil || l.file == nil {
		return err
	}
	return l.file.Sync()
}

func (l *segmentLog) close() error {
	if l.file == nil {
		return nil
	}
	err := l.sync()
	if closeErr := l.file.Close(); err == nil {
		err = closeErr
	}
	l.file, l.buf = nil, nil
	if err != nil {
		return errors.Wrap(err, "close segment")
	}
	return nil
}
