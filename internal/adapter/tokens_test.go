package adapter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCount_Unmarshal(t *testing.T) {
	accepted := map[string]int{
		`1024`:   1024,
		`1024.0`: 1024,
		`1e3`:    1000,
		`1E+2`:   100,
		`-5`:     -5,
		`0`:      0,
	}
	for raw, want := range accepted {
		var n TokenCount
		require.NoError(t, json.Unmarshal([]byte(raw), &n), raw)
		assert.Equal(t, want, n.Int(), raw)
	}

	for _, raw := range []string{`1.5`, `1e-1`, `"10"`, `true`, `[1]`, `{}`, `1e400`, `1e19`} {
		var n TokenCount
		assert.Error(t, json.Unmarshal([]byte(raw), &n), raw)
	}
}

func TestTokenCount_NilInt(t *testing.T) {
	var n *TokenCount
	assert.Equal(t, 0, n.Int())
}
