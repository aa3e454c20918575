// Package outbox implements the durable, append-only journal of writes
// that could not be applied synchronously. It is deliberately simple: a
// single append-only log file plus an 8-byte cursor file, both owned
// exclusively by one Outbox instance. The tolerant-parse idiom used by
// ReadFrom -- stop silently on any malformed trailing bytes rather than
// erroring -- mirrors the way the teacher's client.Reader (see
// broker/client/reader.go) distinguishes a graceful stream end from a
// hard read error, applied here to a torn trailing frame instead of a
// broken RPC stream.
package outbox

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	logFileName    = "outbox.log"
	cursorFileName = "outbox.cursor"
)

// Options configures an Outbox at Open time.
type Options struct {
	// Fsync, if true, calls Sync on the log file after every Append and
	// on the cursor file after every StoreCursor.
	Fsync bool
}

// Outbox is the durable append-only journal and its persisted replay
// cursor. Concurrent Append calls are serialized by appendMu; the other
// methods take no lock.
type Outbox struct {
	dir    string
	opts   Options
	logFh  *os.File
	appendMu sync.Mutex
}

// Open creates dir if absent, opens outbox.log for append, and creates
// outbox.cursor (initialized to 0) if absent.
func Open(dir string, opts Options) (*Outbox, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "outbox: mkdir")
	}
	var logFh, err = os.OpenFile(filepath.Join(dir, logFileName), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "outbox: open log")
	}

	var cursorPath = filepath.Join(dir, cursorFileName)
	if _, err := os.Stat(cursorPath); os.IsNotExist(err) {
		var zero [8]byte
		if err := os.WriteFile(cursorPath, zero[:], 0o644); err != nil {
			logFh.Close()
			return nil, errors.Wrap(err, "outbox: init cursor")
		}
	}

	return &Outbox{dir: dir, opts: opts, logFh: logFh}, nil
}

// Close releases the underlying log file handle.
func (o *Outbox) Close() error {
	return o.logFh.Close()
}

// Append writes rec to the end of the log, assigning CreatedMs if it was
// left at zero, and returns the byte offset immediately past the
// written frame.
func (o *Outbox) Append(rec Record) (int64, error) {
	o.appendMu.Lock()
	defer o.appendMu.Unlock()

	if rec.CreatedMs == 0 {
		rec.CreatedMs = uint64(time.Now().UnixMilli())
	}
	var frame = encodeFrame(rec)

	if _, err := o.logFh.Write(frame); err != nil {
		return 0, errors.Wrap(err, "outbox: append write")
	}
	if o.opts.Fsync {
		if err := o.logFh.Sync(); err != nil {
			return 0, errors.Wrap(err, "outbox: append fsync")
		}
	}
	var end, err = o.logFh.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, errors.Wrap(err, "outbox: append seek")
	}
	return end, nil
}

// LoadCursor reads the persisted replay cursor.
func (o *Outbox) LoadCursor() (uint64, error) {
	var b, err = os.ReadFile(filepath.Join(o.dir, cursorFileName))
	if err != nil {
		return 0, errors.Wrap(err, "outbox: load cursor")
	}
	if len(b) != 8 {
		return 0, errors.Errorf("outbox: cursor file has %d bytes, want 8", len(b))
	}
	return binary.LittleEndian.Uint64(b), nil
}

// StoreCursor overwrites the persisted replay cursor.
func (o *Outbox) StoreCursor(offset uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], offset)

	var path = filepath.Join(o.dir, cursorFileName)
	var fh, err = os.OpenFile(path, os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(err, "outbox: open cursor for write")
	}
	defer fh.Close()

	if _, err := fh.WriteAt(b[:], 0); err != nil {
		return errors.Wrap(err, "outbox: store cursor")
	}
	if o.opts.Fsync {
		if err := fh.Sync(); err != nil {
			return errors.Wrap(err, "outbox: store cursor fsync")
		}
	}
	return nil
}

// EndOffset returns the current length of outbox.log.
func (o *Outbox) EndOffset() (int64, error) {
	var fi, err = o.logFh.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "outbox: stat log")
	}
	return fi.Size(), nil
}

// Span is one parsed frame's extent and content.
type Span struct {
	Start, End int64
	Record     Record
}

// ReadFrom seeks to offset and parses frames until max records, EOF, or
// a malformed trailer is reached. A torn trailing frame -- from an
// append that was interrupted before becoming durable -- is treated as
// "not yet present", not an error.
func (o *Outbox) ReadFrom(offset int64, max int) ([]Span, error) {
	var fh, err = os.Open(filepath.Join(o.dir, logFileName))
	if err != nil {
		return nil, errors.Wrap(err, "outbox: open log for read")
	}
	defer fh.Close()

	if _, err := fh.Seek(offset, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "outbox: seek")
	}

	var out []Span
	var pos = offset
	for max <= 0 || len(out) < max {
		rec, n, err := readFrame(fh)
		if err != nil {
			break
		}
		out = append(out, Span{Start: pos, End: pos + int64(n), Record: rec})
		pos += int64(n)
	}
	return out, nil
}

// PendingCount counts frames and bytes from cursor to EOF, using the
// same tolerant parse as ReadFrom.
func (o *Outbox) PendingCount(cursor int64) (count int, bytes int64, err error) {
	var spans, rerr = o.ReadFrom(cursor, 0)
	if rerr != nil {
		return 0, 0, rerr
	}
	if len(spans) == 0 {
		return 0, 0, nil
	}
	return len(spans), spans[len(spans)-1].End - cursor, nil
}
