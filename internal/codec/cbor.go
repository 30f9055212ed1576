package codec

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"mn-go/internal/mn"
)

// encMode encodes with Core Deterministic Encoding (RFC 8949 §4.2) and
// writes times as RFC 3339 strings with nanosecond precision.
var encMode cbor.EncMode

// decMode ignores unknown fields so newer peers can add them.
var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// CBOR is the default descriptor codec.
type CBOR struct{}

func (CBOR) Encode(d *mn.Descriptor) ([]byte, error) {
	b, err := encMode.Marshal(toWire(d))
	if err != nil {
		return nil, fmt.Errorf("encoding descriptor: %w", err)
	}
	return b, nil
}

func (CBOR) Decode(b []byte) (*mn.Descriptor, error) {
	var w wireDescriptor
	if err := decMode.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("decoding descriptor: %w", err)
	}
	return fromWire(&w)
}

func (CBOR) ParseResourceMap(r io.Reader) ([]string, error) {
	return ParseResourceMap(r)
}

// Compile-time check that CBOR implements mn.DescriptorCodec
var _ mn.DescriptorCodec = CBOR{}
