package codec

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// maxResourceMapSize bounds the aggregation documents read into memory.
const maxResourceMapSize = 16 << 20

// resourceMap is an aggregation document:
//
//	identifier: map.1
//	aggregates:
//	  - data.1
//	  - meta.1
//
// JSON documents of the same shape parse too.
type resourceMap struct {
	Identifier string   `yaml:"identifier"`
	Aggregates []string `yaml:"aggregates"`
}

// ParseResourceMap returns the identifiers aggregated by the document in r,
// in document order.
func ParseResourceMap(r io.Reader) ([]string, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxResourceMapSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading resource map: %w", err)
	}
	if len(data) > maxResourceMapSize {
		return nil, fmt.Errorf("resource map exceeds %d bytes", maxResourceMapSize)
	}

	var doc resourceMap
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing resource map: %w", err)
	}
	if doc.Identifier == "" && doc.Aggregates == nil {
		return nil, errors.New("document is not a resource map")
	}
	for i, did := range doc.Aggregates {
		if did == "" {
			return nil, fmt.Errorf("aggregated identifier %d is empty", i)
		}
	}
	return doc.Aggregates, nil
}
