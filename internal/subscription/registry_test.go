package subscription

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/kioskmon/internal/model"
)

func sub(endpoint string) model.Subscription {
	return model.Subscription{
		Endpoint: endpoint,
		Keys:     model.SubscriptionKeys{P256dh: "p256dh", Auth: "auth"},
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	assert.Empty(t, r.List())

	r.Add(sub("https://push.example/a"))
	r.Add(sub("https://push.example/b"))
	r.Add(sub("https://push.example/a"))
	require.Equal(t, 3, r.Len())

	t.Run("Remove takes the first match", func(t *testing.T) {
		require.True(t, r.Remove(sub("https://push.example/a")))
		list := r.List()
		require.Len(t, list, 2)
		assert.Equal(t, "https://push.example/b", list[0].Endpoint)
		assert.Equal(t, "https://push.example/a", list[1].Endpoint)
	})

	t.Run("Keys must match", func(t *testing.T) {
		other := sub("https://push.example/b")
		other.Keys.Auth = "different"
		assert.False(t, r.Remove(other))
		assert.Equal(t, 2, r.Len())
	})

	t.Run("Remove is idempotent", func(t *testing.T) {
		assert.True(t, r.Remove(sub("https://push.example/b")))
		assert.False(t, r.Remove(sub("https://push.example/b")))
		assert.Equal(t, 1, r.Len())
	})

	t.Run("List returns a copy", func(t *testing.T) {
		list := r.List()
		list[0].Endpoint = "mutated"
		assert.Equal(t, "https://push.example/a", r.List()[0].Endpoint)
	})
}

func TestRegistry_ConcurrentRemove(t *testing.T) {
	r := NewRegistry(zaptest.NewLogger(t))
	for i := 0; i < 100; i++ {
		r.Add(sub(fmt.Sprintf("https://push.example/%d", i)))
	}

	var wg sync.WaitGroup
	for i := 0; i < 100; i += 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Remove(sub(fmt.Sprintf("https://push.example/%d", i)))
		}()
	}
	wg.Wait()

	list := r.List()
	require.Len(t, list, 50)
	for _, s := range list {
		var n int
		_, err := fmt.Sscanf(s.Endpoint, "https://push.example/%d", &n)
		require.NoError(t, err)
		assert.Equal(t, 1, n%2)
	}
}
