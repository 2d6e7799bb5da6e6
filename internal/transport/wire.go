package transport

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// requestFrame and replyFrame are the wire shape of one enqueue call: a
// 4-byte big-endian length prefix followed by a gzip-compressed JSON
// payload (the original service's "gzip" enqueue argument, spec.md §4.3,
// realized here with the standard library only — see DESIGN.md for why no
// pack dependency covers the control service's actual msgpack framing).
type requestFrame struct {
	Event   string `json:"event"`
	TraceID string `json:"trace_id"`
	Args    any    `json:"args"`
}

type replyFrame struct {
	Result any    `json:"result"`
	Error  string `json:"error,omitempty"`
}

func writeFrame(w io.Writer, frame any) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	var compressed bytes.Buffer
	gz := gzip.NewWriter(&compressed)
	if _, err := gz.Write(payload); err != nil {
		return fmt.Errorf("gzip frame: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("gzip close: %w", err)
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(compressed.Len()))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write length header: %w", err)
	}
	if _, err := w.Write(compressed.Bytes()); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// readFrame reads exactly one frame from r: a 4-byte length header followed
// by that many body bytes. It deliberately reads directly off r rather than
// through a bufio.Reader — r is a long-lived connection shared across many
// calls, and a per-call bufio.Reader would read ahead into the next frame
// and discard whatever it buffered past this one.
func readFrame(r io.Reader) (replyFrame, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return replyFrame{}, fmt.Errorf("read length header: %w", err)
	}
	size := binary.BigEndian.Uint32(header[:])

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return replyFrame{}, fmt.Errorf("read frame body: %w", err)
	}

	gz, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return replyFrame{}, fmt.Errorf("gzip reader: %w", err)
	}
	defer gz.Close()

	decoded, err := io.ReadAll(gz)
	if err != nil {
		return replyFrame{}, fmt.Errorf("gzip decompress: %w", err)
	}

	var reply replyFrame
	if err := json.Unmarshal(decoded, &reply); err != nil {
		return replyFrame{}, fmt.Errorf("unmarshal frame: %w", err)
	}
	return reply, nil
}
