package jsonx

import (
	"io"

	jsoniter "github.com/json-iterator/go"
)

// SortMapKeys keeps encodings of map-valued payloads byte-stable, which signed envelopes rely on.
var jsonx = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

var canonical = jsoniter.Config{
	EscapeHTML:  true,
	SortMapKeys: true,
	UseNumber:   true,
}.Froze()

func Marshal(v interface{}) ([]byte, error) {
	return jsonx.Marshal(v)
}

func MarshalIndent(v interface{}) ([]byte, error) {
	return jsonx.MarshalIndent(v, "", "  ")
}

func Unmarshal(data []byte, v interface{}) error {
	return jsonx.Unmarshal(data, v)
}

// Canonical encodes v with every object's keys sorted, whatever its Go shape. A struct and
// a map carrying the same fields encode to the same bytes; numbers keep their literal form.
func Canonical(v interface{}) ([]byte, error) {
	raw, err := canonical.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := canonical.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return canonical.Marshal(generic)
}

func NewDecoder(r io.Reader) *jsoniter.Decoder {
	return jsonx.NewDecoder(r)
}

func NewEncoder(w io.Writer) *jsoniter.Encoder {
	return jsonx.NewEncoder(w)
}
