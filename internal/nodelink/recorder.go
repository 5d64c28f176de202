package nodelink

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// CapturedLine is one line of a raw capture file (JSON lines). A record
// carrying Header describes the capture itself and holds no node line.
type CapturedLine struct {
	Time   time.Time       `json:"ts"`
	Node   string          `json:"node,omitempty"`
	Line   string          `json:"line,omitempty"`
	Header json.RawMessage `json:"header,omitempty"`
}

// Recorder appends every line it sees to a capture file, then passes it on.
// Paths ending in .zst are zstd-compressed.
type Recorder struct {
	mu   sync.Mutex
	file *os.File
	zw   *zstd.Encoder
	enc  *json.Encoder
	next LineHandler
	now  func() time.Time
	err  error
}

// NewRecorder creates the capture file at path. next may be nil.
func NewRecorder(path string, next LineHandler) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	r := &Recorder{file: f, next: next, now: time.Now}
	var w io.Writer = f
	if strings.HasSuffix(path, ".zst") {
		zw, err := zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		r.zw = zw
		w = zw
	}
	r.enc = json.NewEncoder(w)
	return r, nil
}

// WriteHeader records v as the capture header. It must be called before the
// first line is handled.
func (r *Recorder) WriteHeader(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if r.enc == nil {
		return os.ErrClosed
	}
	r.err = r.enc.Encode(CapturedLine{Time: r.now().UTC(), Header: b})
	return r.err
}

// Handle is a LineHandler.
func (r *Recorder) Handle(identifier, line string) {
	r.mu.Lock()
	if r.err == nil && r.enc != nil {
		r.err = r.enc.Encode(CapturedLine{Time: r.now().UTC(), Node: identifier, Line: line})
	}
	r.mu.Unlock()
	if r.next != nil {
		r.next(identifier, line)
	}
}

// Err returns the first write error, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close flushes and closes the capture file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var err error
	if r.zw != nil {
		if e := r.zw.Close(); e != nil {
			err = e
		}
	}
	if r.file != nil {
		if e := r.file.Close(); e != nil && err == nil {
			err = e
		}
	}
	r.enc = nil
	r.zw = nil
	r.file = nil
	return err
}
