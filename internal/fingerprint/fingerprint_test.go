package fingerprint

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOf_Deterministic(t *testing.T) {
	args := map[string]any{"page": 2, "filter": map[string]any{"tag": "go", "owner": "me"}}

	a, err := Of("GET /items", args)
	require.NoError(t, err)

	b, err := Of("GET /items", args)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "GET /items#"))
}

func TestOf_KeyOrderIndependent(t *testing.T) {
	type query struct {
		Owner string `json:"owner"`
		Tag   string `json:"tag"`
	}

	fromMap, err := Of("GET /items", map[string]any{"tag": "go", "owner": "me"})
	require.NoError(t, err)

	fromStruct, err := Of("GET /items", query{Owner: "me", Tag: "go"})
	require.NoError(t, err)

	assert.Equal(t, fromMap, fromStruct)
}

func TestOf_UnicodeNormalized(t *testing.T) {
	composed, err := Of("GET /search", map[string]any{"q": "caf\u00e9"})
	require.NoError(t, err)

	decomposed, err := Of("GET /search", map[string]any{"q": "cafe\u0301"})
	require.NoError(t, err)

	assert.Equal(t, composed, decomposed)
}

func TestOf_Distinguishes(t *testing.T) {
	base, err := Of("GET /items", map[string]any{"page": 1})
	require.NoError(t, err)

	otherArgs, err := Of("GET /items", map[string]any{"page": 2})
	require.NoError(t, err)

	otherOp, err := Of("POST /items", map[string]any{"page": 1})
	require.NoError(t, err)

	assert.NotEqual(t, base, otherArgs)
	assert.NotEqual(t, base, otherOp)
}

func TestOf_NilAndEmptyEquivalent(t *testing.T) {
	a, err := Of("GET /profile", nil)
	require.NoError(t, err)

	b, err := Of("GET /profile", map[string]any{})
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestOf_Unserializable(t *testing.T) {
	_, err := Of("GET /x", map[string]any{"ch": make(chan int)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GET /x")
}
