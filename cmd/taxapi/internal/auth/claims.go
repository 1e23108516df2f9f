package auth

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// DecodeClaims decodes a loosely typed claim map into out using mapstructure tags.
// Unknown claims are ignored.
func DecodeClaims(raw map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: false,
	})
	if err != nil {
		return fmt.Errorf("create claims decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("decode claims: %w", err)
	}
	return nil
}
