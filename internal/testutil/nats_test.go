package testutil

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupJetStream_ReadyOnReturn(t *testing.T) {
	for i := 0; i < 3; i++ {
		js, cleanup := SetupJetStream(t)

		_, err := js.AddStream(&nats.StreamConfig{
			Name:     "READY",
			Subjects: []string{"ready.*"},
			Storage:  nats.MemoryStorage,
		})
		require.NoError(t, err)
		require.NoError(t, WaitForStream(t, js, "READY", time.Second))

		info, err := js.StreamInfo("READY")
		require.NoError(t, err)
		assert.Equal(t, "READY", info.Config.Name)

		cleanup()
	}
}
