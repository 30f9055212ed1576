package codec

import (
	"fmt"

	"mn-go/internal/mn"
)

// New returns the codec for name: "cbor" (the default when empty) or "yaml".
func New(name string) (mn.DescriptorCodec, error) {
	switch name {
	case "", "cbor":
		return CBOR{}, nil
	case "yaml":
		return YAML{}, nil
	default:
		return nil, fmt.Errorf("unknown descriptor codec: %s", name)
	}
}
