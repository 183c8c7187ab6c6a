package embedder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeHash(t *testing.T) {
	tests := []struct {
		name  string
		text1 string
		text2 string
		same  bool
	}{
		{"identical text", "invoice 42", "invoice 42", true},
		{"different text", "invoice 42", "invoice 43", false},
		{"whitespace matters", "invoice", "invoice ", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h1 := ComputeHash(tt.text1)
			h2 := ComputeHash(tt.text2)
			assert.Len(t, h1, 64)
			assert.Equal(t, tt.same, h1 == h2)
		})
	}
}

func TestClampText(t *testing.T) {
	assert.Equal(t, "abc", ClampText("abcdef", 3))
	assert.Equal(t, "abcdef", ClampText("abcdef", 0))
	assert.Equal(t, "čřž", ClampText("čřžýá", 3))
}

func TestCache(t *testing.T) {
	t.Run("get returns a deep copy", func(t *testing.T) {
		cache := NewCache(10)
		cache.Set("h", &Embedding{Vector: []float32{1, 2, 3}, Dimension: 3, Hash: "h"})

		got, ok := cache.Get("h")
		require.True(t, ok)
		got.Vector[0] = 99

		again, ok := cache.Get("h")
		require.True(t, ok)
		assert.Equal(t, float32(1), again.Vector[0])
	})

	t.Run("evicts least recently used", func(t *testing.T) {
		cache := NewCache(2)
		cache.Set("a", &Embedding{Vector: []float32{1}})
		cache.Set("b", &Embedding{Vector: []float32{2}})
		_, _ = cache.Get("a")
		cache.Set("c", &Embedding{Vector: []float32{3}})

		_, okA := cache.Get("a")
		_, okB := cache.Get("b")
		assert.True(t, okA)
		assert.False(t, okB)
		assert.Equal(t, 2, cache.Size())
	})

	t.Run("clear", func(t *testing.T) {
		cache := NewCache(0)
		cache.Set("a", &Embedding{Vector: []float32{1}})
		cache.Clear()
		assert.Equal(t, 0, cache.Size())
	})
}
