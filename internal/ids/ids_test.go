package ids

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomString(t *testing.T) {
	s, err := RandomString(12, "")
	require.NoError(t, err)
	assert.Len(t, s, 12)
	for _, r := range s {
		assert.True(t, strings.ContainsRune(DefaultAlphabet, r), "unexpected rune %q", r)
	}

	s, err = RandomString(32, "ab")
	require.NoError(t, err)
	assert.Equal(t, "", strings.Trim(s, "ab"))

	s, err = RandomString(0, "")
	require.NoError(t, err)
	assert.Empty(t, s)
}

func TestRandomStringDiffers(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		s := MustRandomString(12)
		assert.False(t, seen[s], "duplicate %s", s)
		seen[s] = true
	}
}

func TestNewRunIDAt(t *testing.T) {
	at := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	id := NewRunIDAt(at)
	assert.True(t, strings.HasPrefix(id, "20210304T050607Z-"), id)
	assert.Len(t, id, len("20210304T050607Z-")+8)
}
