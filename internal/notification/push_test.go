package notification

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/kioskmon/internal/model"
)

type memoryStore struct {
	mu   sync.Mutex
	subs []model.Subscription
}

func (s *memoryStore) List() []model.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Subscription(nil), s.subs...)
}

func (s *memoryStore) Remove(sub model.Subscription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.subs {
		if existing.Same(sub) {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return true
		}
	}
	return false
}

type fakeSender struct {
	mu       sync.Mutex
	outcomes map[string]error
	payloads map[string][]byte
}

func (f *fakeSender) Send(_ context.Context, sub model.Subscription, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.payloads == nil {
		f.payloads = make(map[string][]byte)
	}
	f.payloads[sub.Endpoint] = payload
	return f.outcomes[sub.Endpoint]
}

func subscriptionFor(endpoint string) model.Subscription {
	return model.Subscription{
		Endpoint: endpoint,
		Keys:     model.SubscriptionKeys{P256dh: "key-" + endpoint, Auth: "auth-" + endpoint},
	}
}

func TestPushChannel_Send(t *testing.T) {
	n := model.Notification{ID: "n1", Title: "Error", Body: "Failed to retrieve status", URL: "/dashboard"}

	t.Run("Empty registry is a no-op", func(t *testing.T) {
		sender := &fakeSender{}
		ch := NewPushChannel(&memoryStore{}, sender, zaptest.NewLogger(t))
		require.NoError(t, ch.Send(context.Background(), n))
		assert.Empty(t, sender.payloads)
	})

	t.Run("Mixed outcomes", func(t *testing.T) {
		store := &memoryStore{subs: []model.Subscription{
			subscriptionFor("https://push.example/a"),
			subscriptionFor("https://push.example/b"),
			subscriptionFor("https://push.example/c"),
		}}
		sender := &fakeSender{outcomes: map[string]error{
			"https://push.example/b": fmt.Errorf("%w: status 410", ErrEndpointGone),
			"https://push.example/c": errors.New("connection reset"),
		}}
		ch := NewPushChannel(store, sender, zaptest.NewLogger(t))

		err := ch.Send(context.Background(), n)
		require.Error(t, err)
		assert.ErrorContains(t, err, "connection reset")
		assert.NotErrorIs(t, err, ErrEndpointGone)

		remaining := store.List()
		require.Len(t, remaining, 2)
		assert.Equal(t, "https://push.example/a", remaining[0].Endpoint)
		assert.Equal(t, "https://push.example/c", remaining[1].Endpoint)

		assert.JSONEq(t,
			`{"title":"Error","body":"Failed to retrieve status","url":"/dashboard","timestamp":"0001-01-01T00:00:00Z"}`,
			string(sender.payloads["https://push.example/a"]))
	})

	t.Run("Gone endpoints only", func(t *testing.T) {
		store := &memoryStore{subs: []model.Subscription{subscriptionFor("https://push.example/x")}}
		sender := &fakeSender{outcomes: map[string]error{"https://push.example/x": ErrEndpointGone}}
		ch := NewPushChannel(store, sender, zaptest.NewLogger(t))

		require.NoError(t, ch.Send(context.Background(), n))
		assert.Empty(t, store.List())
	})
}

func testSubscription(t *testing.T, endpoint string) model.Subscription {
	t.Helper()

	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)

	return model.Subscription{
		Endpoint: endpoint,
		Keys: model.SubscriptionKeys{
			P256dh: base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
			Auth:   base64.RawURLEncoding.EncodeToString(auth),
		},
	}
}

func TestWebPushSender_Send(t *testing.T) {
	publicKey, privateKey, err := GenerateVAPIDKeys()
	require.NoError(t, err)

	sender, err := NewWebPushSender(WebPushConfig{
		Subscriber:      "ops@example.com",
		VAPIDPublicKey:  publicKey,
		VAPIDPrivateKey: privateKey,
	})
	require.NoError(t, err)
	assert.Equal(t, publicKey, sender.PublicKey())

	tests := []struct {
		name    string
		status  int
		wantErr bool
		gone    bool
	}{
		{name: "Created", status: http.StatusCreated},
		{name: "Gone", status: http.StatusGone, wantErr: true, gone: true},
		{name: "Not found", status: http.StatusNotFound, wantErr: true, gone: true},
		{name: "Server error", status: http.StatusInternalServerError, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotAuth string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotAuth = r.Header.Get("Authorization")
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			err := sender.Send(context.Background(), testSubscription(t, srv.URL+"/push/1"), []byte(`{"title":"t"}`))
			if !tt.wantErr {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
			assert.Equal(t, tt.gone, errors.Is(err, ErrEndpointGone))
			assert.Contains(t, gotAuth, "vapid")
		})
	}

	t.Run("Missing keys", func(t *testing.T) {
		_, err := NewWebPushSender(WebPushConfig{})
		assert.Error(t, err)
	})
}
