package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

// RunServerOnPort creates a NATS server on the specified port. Use
// server.RANDOM_PORT to let the OS pick one. JetStream is enabled when
// storeDir is not empty.
func RunServerOnPort(port int, storeDir string) (*server.Server, error) {
	opts := &server.Options{
		Host:           "127.0.0.1",
		Port:           port,
		NoLog:          true,
		NoSigs:         true,
		MaxControlLine: 256,
		JetStream:      storeDir != "",
		StoreDir:       storeDir,
	}

	return server.NewServer(opts)
}

// SetupJetStream starts an embedded JetStream server and returns a context bound to it
func SetupJetStream(t *testing.T) (nats.JetStreamContext, func()) {
	t.Helper()

	_, nc, cleanup := StartServer(t)
	js, err := nc.JetStream(nats.MaxWait(5 * time.Second))
	require.NoError(t, err)

	return js, cleanup
}

// StartServer starts an embedded NATS server with JetStream enabled and connects to it
func StartServer(t *testing.T) (*server.Server, *nats.Conn, func()) {
	t.Helper()

	s, err := RunServerOnPort(server.RANDOM_PORT, t.TempDir())
	require.NoError(t, err)

	go s.Start()
	if !s.ReadyForConnections(10 * time.Second) {
		t.Fatal("Unable to start NATS server")
	}

	nc, err := nats.Connect(s.ClientURL(), nats.Timeout(5*time.Second))
	require.NoError(t, err)

	cleanup := func() {
		nc.Close()
		s.Shutdown()
	}

	if err := WaitForJetStream(nc, 10*time.Second); err != nil {
		cleanup()
		t.Fatal(err)
	}

	return s, nc, cleanup
}

// WaitForJetStream blocks until the JetStream API answers on nc
func WaitForJetStream(nc *nats.Conn, timeout time.Duration) error {
	js, err := nc.JetStream(nats.MaxWait(time.Second))
	if err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)
	for {
		_, err := js.AccountInfo()
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("jetstream not ready: %w", err)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// WaitForStream waits for a stream to be created
func WaitForStream(t *testing.T, js nats.JetStreamContext, name string, timeout time.Duration) error {
	t.Helper()

	start := time.Now()
	for time.Since(start) < timeout {
		_, err := js.StreamInfo(name)
		if err == nil {
			return nil
		}
		if err != nats.ErrStreamNotFound {
			return err
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for stream %s", name)
}
