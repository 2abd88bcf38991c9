// Package codec decodes structured text, raising parse faults that locate the
// offending input.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"

	"github.com/joeycumines/go-faultcatalog/fault"
	"gopkg.in/yaml.v2"
)

// Decoder decodes data into v. Malformed input yields a [fault.KindParse]
// fault.
type Decoder interface {
	Decode(data []byte, v any) error
}

var (
	// JSON decodes JSON documents.
	JSON Decoder = jsonDecoder{}

	// YAML decodes YAML documents.
	YAML Decoder = yamlDecoder{}
)

// ParseJSON decodes text into a generic value, like JavaScript's JSON.parse.
func ParseJSON(text string) (any, error) {
	var v any
	if err := JSON.Decode([]byte(text), &v); err != nil {
		return nil, err
	}
	return v, nil
}

type jsonDecoder struct{}

func (jsonDecoder) Decode(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}

	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		msg       string
		offset    int64
	)
	switch {
	case errors.As(err, &syntaxErr):
		msg, offset = syntaxErr.Error(), syntaxErr.Offset
		if offset > int64(len(data)) || (offset == int64(len(data)) && msg == "unexpected end of JSON input") {
			// points one past the last byte
			offset = int64(len(data)) + 1
		}
	case errors.As(err, &typeErr):
		msg, offset = typeErr.Error(), typeErr.Offset
	default:
		// e.g. *json.InvalidUnmarshalError, a programming error rather than
		// malformed input
		return err
	}

	pos := int(offset) - 1
	if pos < 0 {
		pos = 0
	}
	line, col := lineColumn(data, pos)
	f := fault.Parse(fmt.Sprintf("%s at position %d (line %d, column %d)", msg, pos, line, col), pos)
	f.Line, f.Column = line, col
	f.Cause = err
	return f
}

type yamlDecoder struct{}

// yaml.v2 reports positions only inside the message text.
var yamlLinePattern = regexp.MustCompile(`line (\d+)(?::| column (\d+))`)

func (yamlDecoder) Decode(data []byte, v any) error {
	err := yaml.Unmarshal(data, v)
	if err == nil {
		return nil
	}

	var typeErr *yaml.TypeError
	msg := err.Error()
	if errors.As(err, &typeErr) && len(typeErr.Errors) > 0 {
		msg = typeErr.Errors[0]
	}

	f := fault.Parse(msg, -1)
	f.Cause = err
	if m := yamlLinePattern.FindStringSubmatch(msg); m != nil {
		f.Line, _ = strconv.Atoi(m[1])
		if m[2] != "" {
			f.Column, _ = strconv.Atoi(m[2])
		}
		if f.Line > 0 {
			f.Position = lineOffset(data, f.Line)
		}
	}
	return f
}

// lineColumn returns the one-based line and column of the byte at pos.
func lineColumn(data []byte, pos int) (line, col int) {
	if pos > len(data) {
		pos = len(data)
	}
	prefix := data[:pos]
	line = bytes.Count(prefix, []byte{'\n'}) + 1
	col = pos - bytes.LastIndexByte(prefix, '\n')
	return line, col
}

// lineOffset returns the byte offset of the start of the one-based line, or
// -1 if out of range.
func lineOffset(data []byte, line int) int {
	off := 0
	for i := 1; i < line; i++ {
		n := bytes.IndexByte(data[off:], '\n')
		if n < 0 {
			return -1
		}
		off += n + 1
	}
	return off
}

// DecodeReader reads all of r and decodes it with d. Read failures are
// returned as resource faults naming the resource.
func DecodeReader(d Decoder, resource string, r io.Reader, v any) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fault.Resource("read", resource, err)
	}
	return d.Decode(data, v)
}
