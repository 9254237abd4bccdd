package plugin_test

import (
	"testing"

	Mp "github.com/maroda/pogo/plugin"
)

func TestDecoderLookup(t *testing.T) {
	t.Run("Returns known decoder", func(t *testing.T) {
		got, err := Mp.DecoderLookup("native", nil)
		assertError(t, err, nil)
		assertStringContains(t, got.Type(), "native")
	})

	t.Run("Empty name is native", func(t *testing.T) {
		got, err := Mp.DecoderLookup("", nil)
		assertError(t, err, nil)
		assertStringContains(t, got.Type(), "native")
	})

	t.Run("Builds json_key from key paths", func(t *testing.T) {
		got, err := Mp.DecoderLookup("json_key", map[string]string{"ax": "x"})
		assertError(t, err, nil)
		assertStringContains(t, got.Type(), "json_key")
	})

	t.Run("json_key without paths is an error", func(t *testing.T) {
		_, err := Mp.DecoderLookup("json_key", nil)
		assertGotError(t, err)
	})

	t.Run("Returns error if decoders don't exist", func(t *testing.T) {
		_, err := Mp.DecoderLookup("craquemattic", nil)
		assertGotError(t, err)
	})
}
