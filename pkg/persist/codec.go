package persist

import (
	"encoding/json"
	"fmt"

	"github.com/goccy/go-yaml"
)

// Codec turns plain data into stored bytes and back.
type Codec interface {
	Name() string
	Marshal(value any) ([]byte, error)
	Unmarshal(data []byte, out *any) error
}

// JSONCodec stores slices as JSON documents.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("persist: json encode: %w", err)
	}
	return data, nil
}

func (JSONCodec) Unmarshal(data []byte, out *any) error {
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("persist: json decode: %w", err)
	}
	return nil
}

// YAMLCodec stores slices as YAML documents, which keeps values readable when
// the adapter is a file or a database inspected by hand.
type YAMLCodec struct{}

func (YAMLCodec) Name() string { return "yaml" }

func (YAMLCodec) Marshal(value any) ([]byte, error) {
	data, err := yaml.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("persist: yaml encode: %w", err)
	}
	return data, nil
}

func (YAMLCodec) Unmarshal(data []byte, out *any) error {
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("persist: yaml decode: %w", err)
	}
	return nil
}
