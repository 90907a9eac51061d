package randx

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelationID_IsUniqueUUID(t *testing.T) {
	a, b := CorrelationID(), CorrelationID()

	assert.NotEqual(t, a, b)
	_, err := uuid.Parse(a)
	assert.NoError(t, err)
}

func TestConnectionTag(t *testing.T) {
	tag, err := ConnectionTag()
	require.NoError(t, err)

	assert.Len(t, tag, ConnectionTagLength)
	for _, c := range tag {
		assert.True(t, strings.ContainsRune(Base62Chars, c), "unexpected rune %q", c)
	}
}
