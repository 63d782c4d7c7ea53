package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/jdziat/simple-remote-jobs/pkg/core"
	"github.com/jdziat/simple-remote-jobs/pkg/security"
)

// Decoder reads Messages from a server-sent-events stream. Bare JSON lines
// (newline-delimited JSON) are accepted as well.
type Decoder struct {
	scanner *bufio.Scanner
	data    [][]byte
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), security.MaxEventLineSize)
	return &Decoder{scanner: s}
}

// Next returns the next message, io.EOF when the stream ended cleanly, or a
// *core.ProtocolError for payloads that do not decode.
func (d *Decoder) Next() (*Message, error) {
	for d.scanner.Scan() {
		line := bytes.TrimRight(d.scanner.Bytes(), "\r")

		switch {
		case len(line) == 0:
			if payload, ok := d.flush(); ok {
				return decodeMessage(payload)
			}
		case line[0] == ':':
			// comment
		case bytes.HasPrefix(line, []byte("data:")):
			v := bytes.TrimPrefix(line, []byte("data:"))
			v = bytes.TrimPrefix(v, []byte(" "))
			d.data = append(d.data, append([]byte(nil), v...))
		case line[0] == '{':
			if payload, ok := d.flush(); ok {
				// a JSON line right after unterminated data fields; keep both
				d.data = [][]byte{append([]byte(nil), line...)}
				return decodeMessage(payload)
			}
			return decodeMessage(append([]byte(nil), line...))
		default:
			// event:, id:, retry: and unknown fields carry nothing we use
		}
	}

	if err := d.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, &core.ProtocolError{Msg: "event exceeds maximum size", Err: err}
		}
		return nil, err
	}

	if payload, ok := d.flush(); ok {
		return decodeMessage(payload)
	}
	return nil, io.EOF
}

func (d *Decoder) flush() ([]byte, bool) {
	if len(d.data) == 0 {
		return nil, false
	}
	payload := bytes.Join(d.data, []byte("\n"))
	d.data = nil
	return payload, true
}

func decodeMessage(payload []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, &core.ProtocolError{Msg: "decode event", Payload: string(payload), Err: err}
	}
	if m.Msg == "" {
		return nil, &core.ProtocolError{Msg: "event missing msg field", Payload: string(payload)}
	}
	return &m, nil
}
