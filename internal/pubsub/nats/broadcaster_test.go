package nats

import (
	"context"
	"dexarb/internal/config"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	loggerCfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"
)

// ========== Test Helpers ==========

// MockLogger records what the client logs
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(msg string) { m.Called(msg) }
func (m *MockLogger) Debugf(msg string, args ...any) { m.Called(msg, args) }
func (m *MockLogger) Info(msg string) { m.Called(msg) }
func (m *MockLogger) Infof(format string, args ...any) { m.Called(format, args) }
func (m *MockLogger) Warn(msg string) { m.Called(msg) }
func (m *MockLogger) Warnf(msg string, args ...any) { m.Called(msg, args) }
func (m *MockLogger) Error(msg string) { m.Called(msg) }
func (m *MockLogger) Errorf(format string, args ...any) { m.Called(format, args) }
func (m *MockLogger) Fatal(msg string) { m.Called(msg) }
func (m *MockLogger) Fatalf(msg string, args ...any) { m.Called(msg, args) }
func (m *MockLogger) Panic(msg string) { m.Called(msg) }
func (m *MockLogger) Panicf(msg string, args ...any) { m.Called(msg, args) }
func (m *MockLogger) WithField(key string, value any) logger.Logger {
	m.Called(key, value)
	return m
}
func (m *MockLogger) WithFields(fields map[string]any) logger.Logger {
	m.Called(fields)
	return m
}

func newTestLogger() logger.Logger {
	return logger.New(loggerCfg.LoggerCfg{
		Level:  "error",
		Format: "json",
	})
}

func runServer(t *testing.T) string {
	t.Helper()

	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	s := natsserver.RunServer(&opts)
	t.Cleanup(s.Shutdown)

	return s.ClientURL()
}

// ========== Without a server ==========

func TestConnect_InvalidConfig(t *testing.T) {
	mockLogger := new(MockLogger)

	client, err := Connect(mockLogger, nil)
	assert.Nil(t, client)
	assert.EqualError(t, err, "nats config is required")

	client, err = Connect(mockLogger, &config.NATSConfig{})
	assert.Nil(t, client)
	assert.EqualError(t, err, "nats url is required")

	mockLogger.AssertNotCalled(t, "Infof", mock.Anything, mock.Anything)
}

func TestClient_NilConnection(t *testing.T) {
	client := &Client{log: new(MockLogger)}

	assert.False(t, client.Ready())
	assert.Equal(t, nats.DISCONNECTED, client.Status())
	assert.NoError(t, client.Close())
	assert.ErrorIs(t, client.Health(context.Background()), ErrNotConnected)
	assert.ErrorIs(t, client.Publish(context.Background(), "arbitrages", 1), ErrNotConnected)
}

// ========== In-memory server ==========

func TestConnect_LogsAndDefaultsPrefix(t *testing.T) {
	url := runServer(t)

	mockLogger := new(MockLogger)
	mockLogger.On("Infof", "Connected to NATS, url=%s prefix=%s", mock.Anything).Once()

	client, err := Connect(mockLogger, &config.NATSConfig{URL: url})
	require.NoError(t, err)
	t.Cleanup(func() { client.nc.Close() })

	assert.True(t, client.Ready())
	assert.Equal(t, "dexarb.arbitrages", client.Subject("arbitrages"))
	mockLogger.AssertExpectations(t)
}

func TestPublish_DeliversJSONUnderPrefix(t *testing.T) {
	url := runServer(t)

	client, err := Connect(newTestLogger(), &config.NATSConfig{URL: url, BroadcastPrefix: "test.arb"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	sub, err := nats.Connect(url)
	require.NoError(t, err)
	t.Cleanup(sub.Close)

	msgs := make(chan *nats.Msg, 1)
	_, err = sub.ChanSubscribe("test.arb.arbitrages", msgs)
	require.NoError(t, err)
	require.NoError(t, sub.Flush())

	payload := map[string]any{"hash": "abc", "final_stake": 1.1}
	ctx := context.Background()
	require.NoError(t, client.Publish(ctx, "arbitrages", payload))
	require.NoError(t, client.Health(ctx))

	select {
	case m := <-msgs:
		var got map[string]any
		require.NoError(t, json.Unmarshal(m.Data, &got))
		assert.Equal(t, "abc", got["hash"])
		assert.Equal(t, 1.1, got["final_stake"])
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestPublish_UnencodablePayload(t *testing.T) {
	url := runServer(t)

	client, err := Connect(newTestLogger(), &config.NATSConfig{URL: url})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	err = client.Publish(context.Background(), "arbitrages", make(chan int))
	assert.Error(t, err)
}

func TestClose_DrainsAndIsIdempotent(t *testing.T) {
	url := runServer(t)

	client, err := Connect(newTestLogger(), &config.NATSConfig{URL: url})
	require.NoError(t, err)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	assert.Eventually(t, func() bool { return client.Status() == nats.CLOSED }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, client.Ready())
	assert.ErrorIs(t, client.Health(context.Background()), ErrNotConnected)
}
