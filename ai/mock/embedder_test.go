package mock

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEmbedder_Deterministic(t *testing.T) {
	m := NewMockEmbedder()

	a, err := m.EmbedText(context.Background(), "apple banana")
	require.NoError(t, err)
	b, err := m.EmbedText(context.Background(), "apple banana")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, DefaultDim)
	assert.Equal(t, 2, m.CallCount())
}

func TestMockEmbedder_ConcurrentCallCount(t *testing.T) {
	m := NewMockEmbedder()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				_, err := m.EmbedTexts(context.Background(), []string{"apple"})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 200, m.CallCount())
}

func TestMockEmbedder_Reset(t *testing.T) {
	m := NewMockEmbedder()
	m.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return make([]float32, DefaultDim), nil
	}

	_, err := m.EmbedText(context.Background(), "apple")
	require.NoError(t, err)
	require.Equal(t, 1, m.CallCount())

	m.Reset()
	assert.Zero(t, m.CallCount())
	assert.Nil(t, m.EmbedTextFunc)
}
