package persistence

import (
	"bufio"
	"cmp"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/model"
	"tradecore/internal/model/enum"
	"tradecore/pkg/exception"
)

const fileExt = ".arrow"

// WriteStream encodes data as one record batch in an Arrow IPC stream.
func WriteStream(w io.Writer, mem memory.Allocator, mode Mode, data []model.Data) error {
	rec, err := EncodeBatch(mem, mode, data)
	if err != nil {
		return err
	}
	defer rec.Release()

	iw := ipc.NewWriter(w, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(mem))
	if err := iw.Write(rec); err != nil {
		_ = iw.Close()
		return errors.Wrap(err, "write ipc record")
	}
	return iw.Close()
}

// ReadStream decodes every record batch of an Arrow IPC stream.
func ReadStream(r io.Reader, mem memory.Allocator) ([]model.Data, error) {
	ir, err := ipc.NewReader(r, ipc.WithAllocator(mem))
	if err != nil {
		return nil, errors.Wrap(err, "open ipc stream")
	}
	defer ir.Release()

	var out []model.Data
	for ir.Next() {
		data, err := DecodeBatch(ir.Record())
		if err != nil {
			return nil, err
		}
		out = append(out, data...)
	}
	if err := ir.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "read ipc stream")
	}
	return out, nil
}

// Catalog stores data as IPC stream files under
// <root>/<data kind>/<instrument id or bar type>/<first ts_init>-<last ts_init>.arrow.
type Catalog struct {
	root string
	mode Mode
	mem  memory.Allocator
}

func NewCatalog(root string, mode Mode, mem memory.Allocator) *Catalog {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	return &Catalog{root: root, mode: mode, mem: mem}
}

func (c *Catalog) Root() string { return c.root }

// SeriesKey names the directory holding a series: the bar type for bars, the
// instrument id otherwise.
func SeriesKey(d model.Data) string {
	if bar, ok := d.(model.Bar); ok {
		return bar.BarType.String()
	}
	return d.Instrument().String()
}

type series struct {
	kind enum.DataKind
	key  string
}

// Write groups data by kind and series and writes one file per group. Rows of a
// group are ordered by ts_init. The written paths are returned.
func (c *Catalog) Write(data []model.Data) ([]string, error) {
	groups := make(map[series][]model.Data)
	var order []series
	for _, d := range Flatten(data) {
		s := series{kind: batchKind(d), key: SeriesKey(d)}
		if _, ok := groups[s]; !ok {
			order = append(order, s)
		}
		groups[s] = append(groups[s], d)
	}

	paths := make([]string, 0, len(order))
	for _, s := range order {
		rows := groups[s]
		if model.CheckMonotonic(rows) >= 0 {
			slices.SortStableFunc(rows, func(a, b model.Data) int { return cmp.Compare(a.InitTime(), b.InitTime()) })
		}
		path, err := c.writeFile(s, rows)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (c *Catalog) writeFile(s series, rows []model.Data) (string, error) {
	dir := filepath.Join(c.root, s.kind.String(), s.key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "create catalog dir").With("dir", dir)
	}
	name := fmt.Sprintf("%020d-%020d%s", rows[0].InitTime(), rows[len(rows)-1].InitTime(), fileExt)
	path := filepath.Join(dir, name)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return "", errors.Wrap(err, "create catalog file").With("path", tmp)
	}
	bw := bufio.NewWriter(f)
	if err := WriteStream(bw, c.mem, c.mode, rows); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return "", errors.Wrap(err, "write catalog file").With("path", path)
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return "", errors.Wrap(err, "flush catalog file").With("path", tmp)
	}
	if err := f.Close(); err != nil {
		return "", errors.Wrap(err, "close catalog file").With("path", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", errors.Wrap(err, "rename catalog file").With("path", path)
	}
	logs.Debugf("persistence: wrote %d %s rows to %s", len(rows), s.kind, path)
	return path, nil
}

// Files lists the files of a series in ts_init order.
func (c *Catalog) Files(kind enum.DataKind, key string) ([]string, error) {
	if kind == enum.DataKindOrderBookDeltas {
		kind = enum.DataKindOrderBookDelta
	}
	dir := filepath.Join(c.root, kind.String(), key)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errors.Wrap(exception.ErrNotFound, "catalog series").With("kind", kind.String()).With("key", key)
		}
		return nil, errors.Wrap(err, "read catalog dir").With("dir", dir)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	slices.Sort(files)
	return files, nil
}

// Read loads a series, merging its files in ts_init order.
func (c *Catalog) Read(kind enum.DataKind, key string) ([]model.Data, error) {
	files, err := c.Files(kind, key)
	if err != nil {
		return nil, err
	}
	var out []model.Data
	for _, path := range files {
		data, err := c.readFile(path)
		if err != nil {
			return nil, err
		}
		out = append(out, data...)
	}
	slices.SortStableFunc(out, func(a, b model.Data) int { return cmp.Compare(a.InitTime(), b.InitTime()) })
	return out, nil
}

func (c *Catalog) readFile(path string) ([]model.Data, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open catalog file").With("path", path)
	}
	defer f.Close()
	data, err := ReadStream(bufio.NewReader(f), c.mem)
	if err != nil {
		return nil, errors.Wrap(err, "read catalog file").With("path", path)
	}
	return data, nil
}
