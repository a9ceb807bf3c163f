package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	body := `
app:
  name: bootstrap-test
server:
  addr: "127.0.0.1:0"
  shutdown_timeout: 2s
engine:
  match_interval: 10ms
  dump_path: ` + filepath.Join(dir, "dump.json") + `
reserves:
  BTC: "100"
  GBP: "2500"
logging:
  level: error
  dir: ""
`
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestBootstrap_RunAndShutdown(t *testing.T) {
	b := NewBootstrap()
	require.NoError(t, b.Initialize(writeTestConfig(t)))
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	require.Eventually(t, func() bool {
		return b.Sequencer.Liquidity().Reserves["GBP"].Equal(decimal.NewFromInt(2500))
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, b.Sequencer.Liquidity().Reserves["BTC"].Equal(decimal.NewFromInt(100)))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestBootstrap_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  match_interval: never\n"), 0644))

	err := NewBootstrap().Initialize(path)
	assert.Error(t, err)
}
