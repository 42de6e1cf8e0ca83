package types

import "github.com/mitchellh/mapstructure"

// DecodeInto decodes a Configuration map into a typed struct, the way
// every component's Init() turns its DSL-supplied parameters into a
// concrete options type. Replaces the ambient "Map2Struct" helper every
// component in this engine's lineage expects to exist.
func DecodeInto(cfg Configuration, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "json",
	})
	if err != nil {
		return err
	}
	return dec.Decode(map[string]any(cfg))
}
