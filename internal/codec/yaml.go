package codec

import (
	"bytes"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"mn-go/internal/mn"
)

// YAML encodes descriptors as YAML documents.
type YAML struct{}

func (YAML) Encode(d *mn.Descriptor) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(toWire(d)); err != nil {
		return nil, fmt.Errorf("encoding descriptor: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding descriptor: %w", err)
	}
	return buf.Bytes(), nil
}

func (YAML) Decode(b []byte) (*mn.Descriptor, error) {
	var w wireDescriptor
	if err := yaml.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("decoding descriptor: %w", err)
	}
	return fromWire(&w)
}

func (YAML) ParseResourceMap(r io.Reader) ([]string, error) {
	return ParseResourceMap(r)
}

// Compile-time check that YAML implements mn.DescriptorCodec
var _ mn.DescriptorCodec = YAML{}
