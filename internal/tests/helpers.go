package tests

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iTrooz/kiosk-dashboard/internal/cache"
	"github.com/iTrooz/kiosk-dashboard/internal/config"
	"github.com/iTrooz/kiosk-dashboard/internal/metrics"
	"github.com/iTrooz/kiosk-dashboard/internal/storage"
	"github.com/iTrooz/kiosk-dashboard/internal/weather"
)

const currentBody = `{"weather":[{"description":"overcast clouds","icon":"04d"}],"main":{"temp":9.4,"humidity":81},"dt":1700000000,"timezone":0,"name":"Oslo","sys":{"country":"NO"}}`

const forecastBody = `{"list":[{"dt":1700049600,"main":{"temp":4},"weather":[{"description":"snow"}]}],"city":{"timezone":0}}`

// fixture_upstream creates a test weather API counting the requests it serves
func fixture_upstream(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/weather":
			_, _ = w.Write([]byte(currentBody))
		case "/forecast":
			_, _ = w.Write([]byte(forecastBody))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"message":"not found"}`))
		}
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

// fixture_config writes a config file for a disk backed kiosk and loads it
func fixture_config(t *testing.T, endpoint string, quota int64) *config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`storage:
  backend: disk
  folder: %q
  quota_bytes: %d
weather:
  endpoint: %q
  location: Oslo,NO
  units: metric
  ttl: 1h
`, filepath.Join(dir, "storage"), quota, endpoint)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	return cfg
}

// kiosk is one run of the dashboard: everything wired from a config
type kiosk struct {
	store   storage.Storage
	cache   *cache.Cache
	metrics *metrics.Metrics
	weather *weather.Client
}

// fixture_kiosk wires storage, cache, metrics and weather client like the CLI does
func fixture_kiosk(t *testing.T, cfg *config.Config) *kiosk {
	t.Helper()
	store, err := storage.New(cfg.Storage)
	require.NoError(t, err)
	require.NoError(t, store.Init())

	m := metrics.New()
	c := cache.New(store, cache.WithPrefix(cfg.Cache.Prefix), cache.WithMetrics(m))
	client, err := weather.New(cfg, c)
	require.NoError(t, err)

	return &kiosk{store: store, cache: c, metrics: m, weather: client}
}
