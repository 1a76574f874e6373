// Package json encodes API envelopes and provider payloads. It uses sonic
// where its JIT is available and encoding/json elsewhere; both honor the
// standard struct tags.
package json

import (
	stdjson "encoding/json"
	"io"
	"runtime"

	"github.com/bytedance/sonic"
)

// RawMessage is a raw encoded JSON value.
type RawMessage = stdjson.RawMessage

// Encoder writes JSON values to a stream.
type Encoder interface {
	Encode(v any) error
}

// Decoder reads JSON values from a stream.
type Decoder interface {
	Decode(v any) error
}

var fast = runtime.GOARCH == "amd64" || runtime.GOARCH == "arm64"

// Marshal encodes v.
func Marshal(v any) ([]byte, error) {
	if fast {
		return sonic.ConfigStd.Marshal(v)
	}
	return stdjson.Marshal(v)
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v any) error {
	if fast {
		return sonic.ConfigStd.Unmarshal(data, v)
	}
	return stdjson.Unmarshal(data, v)
}

// NewEncoder returns an encoder writing to w.
func NewEncoder(w io.Writer) Encoder {
	if fast {
		return sonic.ConfigStd.NewEncoder(w)
	}
	return stdjson.NewEncoder(w)
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) Decoder {
	if fast {
		return sonic.ConfigStd.NewDecoder(r)
	}
	return stdjson.NewDecoder(r)
}

// IsUsingSonic reports whether sonic backs this package on this platform.
func IsUsingSonic() bool { return fast }
