package lobby

import (
	"encoding/json"
	"fmt"
)

// JSONCodec lets connect carry plain Go structs as application/json. It is
// registered under the "json" name, replacing connect's protojson codec.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid json message: %w", err)
	}
	return nil
}
