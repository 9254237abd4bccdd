package plugin

import "fmt"

// Decoders is a global map of SampleDecoder factories.
// json_key is built from its key paths so it is not listed here.
var Decoders = map[string]func() SampleDecoder{
	"native": func() SampleDecoder {
		return NativeDecoder{}
	},
	"": func() SampleDecoder {
		return NativeDecoder{}
	},
}

// DecoderLookup returns the decoder for a source config
func DecoderLookup(name string, keys map[string]string) (SampleDecoder, error) {
	if name == "json_key" {
		if len(keys) == 0 {
			return nil, fmt.Errorf("json_key decoder needs key paths")
		}
		return NewJSONKeyDecoder(keys), nil
	}

	factory, ok := Decoders[name]
	if !ok {
		return nil, fmt.Errorf("unknown decoder: %s", name)
	}
	return factory(), nil
}
