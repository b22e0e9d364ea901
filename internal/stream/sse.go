package stream

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

const maxFrameSize = 1 << 20

// message is one dispatched server-sent event.
type message struct {
	ID    string
	Event string
	Data  []byte
}

// reader splits a text/event-stream body into messages.
type reader struct {
	sc *bufio.Scanner
}

func newReader(r io.Reader) *reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	return &reader{sc: sc}
}

// Next blocks until a complete message is read. Frames without data lines
// are skipped. It returns io.EOF when the server ends the stream.
func (r *reader) Next() (message, error) {
	var (
		msg     message
		data    bytes.Buffer
		hasData bool
	)
	for r.sc.Scan() {
		line := r.sc.Text()
		if line == "" {
			if hasData {
				msg.Data = data.Bytes()
				return msg, nil
			}
			msg = message{ID: msg.ID}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			msg.Event = value
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "id":
			msg.ID = value
		}
	}
	if err := r.sc.Err(); err != nil {
		return message{}, err
	}
	return message{}, io.EOF
}
