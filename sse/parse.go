package sse

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// Parse reads a text/event-stream body and emits each complete event in order.
// It returns nil when the stream ends cleanly; a trailing event without its blank line is dropped.
func Parse(r io.Reader, emit func(Event)) error {
	reader := bufio.NewReaderSize(r, 64*1024)
	var (
		kind    string
		id      string
		data    bytes.Buffer
		hasData bool
	)
	for {
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return err
		}
		if err == io.EOF && line == "" {
			return nil
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if hasData {
				if kind == "" {
					kind = EventMessage
				}
				emit(Event{Kind: kind, ID: id, Data: bytes.Clone(data.Bytes())})
			}
			kind, hasData = "", false
			data.Reset()
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		default:
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "event":
				kind = value
			case "data":
				if hasData {
					data.WriteByte('\n')
				}
				data.WriteString(value)
				hasData = true
			case "id":
				id = value
			}
		}

		if err == io.EOF {
			return nil
		}
	}
}
