package llm

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
)

const (
	// defaultMaxFrameBytes bounds a single SSE line. Tool arguments can be
	// large, so this is well above bufio.MaxScanTokenSize.
	defaultMaxFrameBytes = 4 * 1024 * 1024

	initialFrameBuffer = 64 * 1024
)

var (
	sseDataField = []byte("data:")
	sseDone      = []byte("[DONE]")
)

// readFrames yields the payload of every SSE data line read from r, in
// order. Blank lines, comments, non-data fields and the [DONE] terminator
// are skipped. The yielded slice is only valid until the next iteration.
//
// Reading stops when the consumer stops ranging, when ctx is done, or at
// EOF. A read error (including a line longer than maxFrameBytes) is
// yielded once as the final element.
func readFrames(ctx context.Context, r io.Reader, maxFrameBytes int) iter.Seq2[[]byte, error] {
	if maxFrameBytes <= 0 {
		maxFrameBytes = defaultMaxFrameBytes
	}
	return func(yield func([]byte, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, min(initialFrameBuffer, maxFrameBytes)), maxFrameBytes)

		for scanner.Scan() {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			data, ok := sseData(scanner.Bytes())
			if !ok {
				continue
			}
			if !yield(data, nil) {
				return
			}
		}
		err := scanner.Err()
		// A body closed on cancellation may report EOF or a close error.
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		if err != nil {
			yield(nil, fmt.Errorf("read stream: %w", err))
		}
	}
}

// sseData extracts the payload of a "data:" line. It reports false for
// lines that carry no frame.
func sseData(line []byte) ([]byte, bool) {
	line = bytes.TrimSuffix(line, []byte("\r"))

	// Skip empty lines and comments.
	if len(line) == 0 || line[0] == ':' {
		return nil, false
	}
	if !bytes.HasPrefix(line, sseDataField) {
		return nil, false
	}
	data := line[len(sseDataField):]
	if len(data) > 0 && data[0] == ' ' {
		data = data[1:]
	}
	if len(data) == 0 || bytes.Equal(data, sseDone) {
		return nil, false
	}
	return data, true
}
