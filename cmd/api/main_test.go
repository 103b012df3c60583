package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wms-platform/shipping-api/internal/config"
	"github.com/wms-platform/shipping-api/pkg/logging"
)

func memoryConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Server.ShutdownTimeout = 2 * time.Second
	cfg.Store.Driver = config.StoreMemory
	cfg.Channel.Driver = config.ChannelNone
	return cfg
}

func runWithTimeout(t *testing.T, ctx context.Context, cfg *config.Config) error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx, cfg, logging.NewNop()) }()

	select {
	case err := <-errCh:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return")
		return nil
	}
}

func TestRun_ShutsDownWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	assert.NoError(t, runWithTimeout(t, ctx, memoryConfig()))
}

func TestRun_ReturnsChannelErrors(t *testing.T) {
	cfg := memoryConfig()
	cfg.Channel.Driver = config.ChannelKafka
	cfg.Kafka.Brokers = nil

	err := runWithTimeout(t, context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect message channel")
}

func TestRun_ReturnsServerErrors(t *testing.T) {
	cfg := memoryConfig()
	cfg.Server.Addr = "no-port"

	err := runWithTimeout(t, context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server error")
}
