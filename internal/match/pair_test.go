package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPairKey_Unordered(t *testing.T) {
	assert.Equal(t, NewPairKey("bob", "alice"), NewPairKey("alice", "bob"))

	p := NewPairKey("bob", "alice")
	assert.Equal(t, "alice", p.UserA)
	assert.Equal(t, "alice|bob", p.String())
}

func TestPairKey_Other(t *testing.T) {
	p := NewPairKey("u1", "u2")

	other, ok := p.Other("u1")
	assert.True(t, ok)
	assert.Equal(t, "u2", other)

	_, ok = p.Other("u3")
	assert.False(t, ok)
	assert.True(t, p.Has("u2"))
	assert.False(t, p.Has(""))
}

func TestParsePairKey(t *testing.T) {
	p, err := ParsePairKey("u2|u1")
	require.NoError(t, err)
	assert.Equal(t, NewPairKey("u1", "u2"), p)

	for _, bad := range []string{"", "u1", "u1|", "u1|u1"} {
		_, err := ParsePairKey(bad)
		assert.Error(t, err, bad)
	}
}
