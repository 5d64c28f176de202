package nodelink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Replay feeds captured lines from r to handler. A speed > 0 reproduces the
// original spacing divided by speed; speed <= 0 replays without delay.
// It returns the number of lines replayed.
func Replay(ctx context.Context, r io.Reader, handler LineHandler, speed float64) (int, error) {
	dec := json.NewDecoder(r)
	var prev time.Time
	n := 0
	for {
		var cl CapturedLine
		if err := dec.Decode(&cl); err != nil {
			if err == io.EOF {
				return n, nil
			}
			return n, err
		}
		if len(cl.Header) > 0 {
			continue
		}
		if !prev.IsZero() && speed > 0 {
			diff := cl.Time.Sub(prev)
			if speed != 1 {
				diff = time.Duration(float64(diff) / speed)
			}
			if diff > 0 {
				select {
				case <-time.After(diff):
				case <-ctx.Done():
					return n, ctx.Err()
				}
			}
		}
		if err := ctx.Err(); err != nil {
			return n, err
		}
		handler(cl.Node, cl.Line)
		prev = cl.Time
		n++
	}
}

// ReplayFile opens a capture file (zstd when it ends in .zst) and replays it.
func ReplayFile(ctx context.Context, path string, handler LineHandler, speed float64) (int, error) {
	r, closeFn, err := openCapture(path)
	if err != nil {
		return 0, err
	}
	defer closeFn()
	return Replay(ctx, r, handler, speed)
}

// ReadHeader returns the header of the capture at path, or nil when the
// capture starts with a node line.
func ReadHeader(path string) (json.RawMessage, error) {
	r, closeFn, err := openCapture(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()
	var cl CapturedLine
	if err := json.NewDecoder(r).Decode(&cl); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}
	return cl.Header, nil
}

func openCapture(path string) (io.Reader, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	if !strings.HasSuffix(path, ".zst") {
		return f, func() { f.Close() }, nil
	}
	zr, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return zr, func() {
		zr.Close()
		f.Close()
	}, nil
}
