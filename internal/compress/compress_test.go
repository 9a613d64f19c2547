package compress

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByName(t *testing.T) {
	content := []byte(strings.Repeat("# Roadmap\n- launch in Q1\n", 64))

	for _, name := range []string{"", NameNop, NameGZip, NameBrotli, NameLZ4} {
		t.Run("codec "+name, func(t *testing.T) {
			codec, err := ByName(name)
			require.NoError(t, err)

			encoded, err := codec.Encode(content)
			require.NoError(t, err)

			decoded, err := codec.Decode(encoded)
			require.NoError(t, err)
			assert.Equal(t, content, decoded)
		})
	}

	_, err := ByName("zstd")
	assert.Error(t, err)
}
