package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEmbedder_deterministic(t *testing.T) {
	e := NewMockEmbedder(64)
	a, err := e.Embed(context.Background(), "hello world", 512)
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "hello world", 512)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	c, err := e.Embed(context.Background(), "goodbye", 512)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestMockEmbedder_notUnitLength(t *testing.T) {
	e := NewMockEmbedder(16)
	v, err := e.Embed(context.Background(), "word", 8)
	require.NoError(t, err)
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	assert.InDelta(t, 16, sum, 1e-6)
}

func TestMockEmbedder_emptyTextIsZero(t *testing.T) {
	e := NewMockEmbedder(8)
	v, err := e.Embed(context.Background(), "", 8)
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 8), v)
}

func TestMockEmbedder_maxTokens(t *testing.T) {
	e := NewMockEmbedder(32)
	short, _ := e.Embed(context.Background(), "alpha", 1)
	long, _ := e.Embed(context.Background(), "alpha beta gamma", 1)
	assert.Equal(t, short, long)
}
