package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`app: {instance_id: "arb-1"}`))
	require.NoError(t, err)

	assert.Equal(t, "arb-1", cfg.App.InstanceID)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, ModeFullRefresh, cfg.Scanner.Mode)
	assert.Equal(t, 10*time.Second, cfg.Scanner.Interval)
	assert.Equal(t, "address", cfg.Ingest.Scheme)
	assert.Equal(t, "stable", cfg.Ingest.IDMode)
	assert.Equal(t, "memory", cfg.Dedupe.Backend)
	assert.Equal(t, ":8080", cfg.API.HTTP.Addr)
	assert.InDelta(t, 1e-9, cfg.Scanner.Threshold, 1e-15)
}

func TestParse_FullDocument(t *testing.T) {
	doc := `
scanner:
  mode: on_demand
  interval: 3s
  threshold: 0.000001
  base_currencies: ["0xc02a", "0xbb4c"]
ingest:
  scheme: symbol
  kafka:
    enabled: true
    brokers: ["localhost:9092"]
    topic: pool-quotes
execution:
  enabled: true
  simulate_url: http://exec/simulate
  execute_url: http://exec/execute
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, ModeOnDemand, cfg.Scanner.Mode)
	assert.Equal(t, 3*time.Second, cfg.Scanner.Interval)
	assert.InDelta(t, 1e-6, cfg.Scanner.Threshold, 1e-12)
	assert.Equal(t, []string{"0xc02a", "0xbb4c"}, cfg.Scanner.BaseCurrencies)
	assert.Equal(t, "symbol", cfg.Ingest.Scheme)
	assert.Equal(t, "pool-quotes", cfg.Ingest.Kafka.Topic)
}

func TestParse_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		doc  string
		want string
	}{
		{name: "unknown mode", doc: "scanner: {mode: sometimes}", want: "scanner.mode"},
		{name: "negative threshold", doc: "scanner: {threshold: -1}", want: "scanner.threshold"},
		{name: "rest without url", doc: "ingest: {rest: {enabled: true}}", want: "ingest.rest.url"},
		{name: "execution without urls", doc: "execution: {enabled: true}", want: "execution.simulate_url"},
		{name: "redis dedupe without redis", doc: "dedupe: {backend: redis}", want: "dedupe.backend"},
		{name: "snapshot ids in merge mode", doc: "scanner: {mode: merge}\ningest: {id_mode: snapshot}", want: "ingest.id_mode=snapshot"},
		{name: "snapshot ids in on demand mode", doc: "scanner: {mode: on_demand}\ningest: {id_mode: snapshot}", want: "ingest.id_mode=snapshot"},
		{name: "snapshot ids with feed", doc: "ingest: {id_mode: snapshot, feed: {enabled: true, url: \"ws://feed\"}}", want: "ingest.id_mode=snapshot"},
		{name: "snapshot ids with kafka", doc: "ingest: {id_mode: snapshot, kafka: {enabled: true, brokers: [\"k:9092\"], topic: q}}", want: "ingest.id_mode=snapshot"},
		{name: "broken yaml", doc: "scanner: [", want: "unmarshal"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestParse_SnapshotIDsWithFullRefresh(t *testing.T) {
	doc := `
scanner: {mode: full_refresh}
ingest:
  id_mode: snapshot
  rest: {enabled: true, url: "http://quotes/pools"}
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "snapshot", cfg.Ingest.IDMode)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scanner: {mode: merge}"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ModeMerge, cfg.Scanner.Mode)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
