package weather

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iTrooz/kiosk-dashboard/internal/cache"
	"github.com/iTrooz/kiosk-dashboard/internal/config"
	"github.com/iTrooz/kiosk-dashboard/internal/storage"
)

const currentBody = `{
  "coord": {"lon": -0.13, "lat": 51.51},
  "weather": [{"id": 800, "main": "Clear", "description": "clear sky", "icon": "01d"}],
  "main": {"temp": 72.3, "feels_like": 71.1, "temp_min": 70, "temp_max": 74.5, "pressure": 1015, "humidity": 40},
  "wind": {"speed": 5.1, "deg": 200},
  "dt": 1700000000,
  "sys": {"country": "GB", "sunrise": 1699990000, "sunset": 1700020000},
  "timezone": 3600,
  "name": "London",
  "cod": 200
}`

// 2023-11-14 in UTC: 09:00, 12:00, 21:00, then 2023-11-15 12:00 and 2023-11-16 00:00
const forecastBody = `{
  "cod": "200",
  "list": [
    {"dt": 1699952400, "main": {"temp": 11, "temp_min": 10, "temp_max": 12}, "weather": [{"description": "light rain", "icon": "10d"}]},
    {"dt": 1699963200, "main": {"temp": 14, "temp_min": 11, "temp_max": 15}, "weather": [{"description": "broken clouds", "icon": "04d"}]},
    {"dt": 1699995600, "main": {"temp": 8.5, "temp_min": 8, "temp_max": 9}, "weather": [{"description": "clear sky", "icon": "01n"}]},
    {"dt": 1700049600, "main": {"temp": 16}, "weather": [{"description": "few clouds", "icon": "02d"}]},
    {"dt": 1700092800, "main": {"temp": 5}, "weather": [{"description": "mist", "icon": "50n"}]}
  ],
  "city": {"name": "London", "country": "GB", "timezone": 0}
}`

// upstream serves body for every request and counts them
type upstream struct {
	*httptest.Server
	requests atomic.Int32
	lastURL  atomic.Value
	status   atomic.Int32
	body     atomic.Value
}

func fixture_upstream(t *testing.T, body string) *upstream {
	t.Helper()
	u := &upstream{}
	u.status.Store(http.StatusOK)
	u.body.Store(body)
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.requests.Add(1)
		u.lastURL.Store(r.URL.String())
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(int(u.status.Load()))
		_, _ = w.Write([]byte(u.body.Load().(string)))
	}))
	t.Cleanup(u.Close)
	return u
}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func fixture_client(t *testing.T, endpoint string) (*Client, *storage.MemoryStore, *clock) {
	t.Helper()
	cfg := config.Default()
	cfg.Weather.Endpoint = endpoint
	cfg.Weather.APIKey = "secret"
	cfg.Weather.TTL = "10m"
	cfg.Weather.Days = 2

	store := storage.NewMemory(0)
	clk := &clock{t: time.UnixMilli(1_700_000_000_000)}
	client, err := New(&cfg, cache.New(store, cache.WithClock(clk.Now)))
	require.NoError(t, err)
	return client, store, clk
}

func TestRequestKey(t *testing.T) {
	query := url.Values{"q": {"London,UK"}, "units": {"imperial"}}
	withKey := url.Values{"q": {"London,UK"}, "units": {"imperial"}, "appid": {"secret"}}
	other := url.Values{"q": {"Paris,FR"}, "units": {"imperial"}}

	key := RequestKey("weather", query)
	assert.Regexp(t, `^weather/weather_q[0-9a-f]{8}$`, key)
	assert.Equal(t, key, RequestKey("/weather/", withKey), "credentials must not change the key")
	assert.NotEqual(t, key, RequestKey("weather", other))
	assert.NotEqual(t, key, RequestKey("forecast", query))
	assert.Equal(t, "weather/forecast", RequestKey("forecast", nil))

	// The caller's query is left untouched
	assert.Equal(t, "secret", withKey.Get("appid"))
}

func TestCurrent(t *testing.T) {
	up := fixture_upstream(t, currentBody)
	client, _, _ := fixture_client(t, up.URL)

	cond, err := client.Current(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "London, GB", cond.Location)
	assert.Equal(t, 72.3, cond.Temp)
	assert.Equal(t, 71.1, cond.FeelsLike)
	assert.Equal(t, 70.0, cond.TempMin)
	assert.Equal(t, 74.5, cond.TempMax)
	assert.Equal(t, 40, cond.Humidity)
	assert.Equal(t, 1015, cond.Pressure)
	assert.Equal(t, 5.1, cond.WindSpeed)
	assert.Equal(t, 200, cond.WindDeg)
	assert.Equal(t, "clear sky", cond.Description)
	assert.Equal(t, "01d", cond.Icon)
	assert.Equal(t, "imperial", cond.Units)
	assert.True(t, time.Unix(1699990000, 0).Equal(cond.Sunrise))
	_, offset := cond.Sunrise.Zone()
	assert.Equal(t, 3600, offset)
	assert.True(t, time.Unix(1700000000, 0).Equal(cond.ObservedAt))

	sent, err := url.Parse(up.lastURL.Load().(string))
	require.NoError(t, err)
	assert.Equal(t, "/weather", sent.Path)
	assert.Equal(t, "London,UK", sent.Query().Get("q"))
	assert.Equal(t, "imperial", sent.Query().Get("units"))
	assert.Equal(t, "secret", sent.Query().Get("appid"))
}

func TestCurrentIsCachedUntilTTL(t *testing.T) {
	up := fixture_upstream(t, currentBody)
	client, _, clk := fixture_client(t, up.URL)
	ctx := context.Background()

	first, err := client.Current(ctx)
	require.NoError(t, err)
	second, err := client.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), up.requests.Load())
	assert.Equal(t, first, second)

	clk.t = clk.t.Add(10 * time.Minute)
	_, err = client.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), up.requests.Load(), "still live exactly at expiry")

	clk.t = clk.t.Add(time.Millisecond)
	_, err = client.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), up.requests.Load())
}

func TestCurrentUpstreamError(t *testing.T) {
	up := fixture_upstream(t, `{"cod":401,"message":"Invalid API key"}`)
	up.status.Store(http.StatusUnauthorized)
	client, store, _ := fixture_client(t, up.URL)

	_, err := client.Current(context.Background())
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Equal(t, "weather API returned status 401: Invalid API key", statusErr.Error())

	keys, err := store.Keys()
	require.NoError(t, err)
	assert.Empty(t, keys, "errors must not be cached")

	// Recovers once the upstream does
	up.status.Store(http.StatusOK)
	up.body.Store(currentBody)
	_, err = client.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), up.requests.Load())
}

func TestCurrentServerErrorWithoutMessage(t *testing.T) {
	up := fixture_upstream(t, "upstream exploded")
	up.status.Store(http.StatusBadGateway)
	client, _, _ := fixture_client(t, up.URL)

	_, err := client.Current(context.Background())
	require.Error(t, err)
	assert.Equal(t, "weather API returned status 502", err.Error())
}

func TestCurrentUnexpectedBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "<html>maintenance</html>"},
		{name: "no temperature", body: `{"cod":200,"name":"London"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := fixture_upstream(t, tt.body)
			client, store, _ := fixture_client(t, up.URL)

			_, err := client.Current(context.Background())
			require.Error(t, err)

			keys, err := store.Keys()
			require.NoError(t, err)
			assert.Empty(t, keys)
		})
	}
}

func TestCachedResponseThatNoLongerShapesIsRefetched(t *testing.T) {
	up := fixture_upstream(t, currentBody)
	client, _, _ := fixture_client(t, up.URL)

	key := RequestKey(currentPath, client.query())
	require.True(t, client.cache.Set(key, map[string]any{"unexpected": true}, time.Hour))

	cond, err := client.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 72.3, cond.Temp)
	assert.Equal(t, int32(1), up.requests.Load())
}

func TestCurrentUnreachable(t *testing.T) {
	up := fixture_upstream(t, currentBody)
	endpoint := up.URL
	up.Close()
	client, _, _ := fixture_client(t, endpoint)

	_, err := client.Current(context.Background())
	assert.Error(t, err)
}

func TestForecast(t *testing.T) {
	up := fixture_upstream(t, forecastBody)
	client, _, _ := fixture_client(t, up.URL)

	days, err := client.Forecast(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []Day{
		{Date: "2023-11-14", Min: 8, Max: 15, Description: "broken clouds", Icon: "04d"},
		{Date: "2023-11-15", Min: 16, Max: 16, Description: "few clouds", Icon: "02d"},
	}, days)

	sent, err := url.Parse(up.lastURL.Load().(string))
	require.NoError(t, err)
	assert.Equal(t, "/forecast", sent.Path)

	_, err = client.Forecast(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), up.requests.Load())
}

func TestParseForecastTimezone(t *testing.T) {
	// 23:00 UTC is already the next day at UTC+2
	body := `{"list":[{"dt":1699916400,"main":{"temp":3}}],"city":{"timezone":7200}}`

	days, err := parseForecast([]byte(body), 5)
	require.NoError(t, err)
	require.Len(t, days, 1)
	assert.Equal(t, "2023-11-14", days[0].Date)
}

func TestParseForecastErrors(t *testing.T) {
	_, err := parseForecast([]byte(`{"cod":"200"}`), 5)
	assert.Error(t, err)

	_, err = parseForecast([]byte(`{"list":[{"main":{"temp":3}}]}`), 5)
	assert.Error(t, err)
}

func TestUnitSymbol(t *testing.T) {
	assert.Equal(t, "°F", UnitSymbol("imperial"))
	assert.Equal(t, "°C", UnitSymbol("metric"))
	assert.Equal(t, "K", UnitSymbol("standard"))
}

func TestNewInvalidDurations(t *testing.T) {
	cfg := config.Default()
	cfg.Weather.TTL = "soon"
	_, err := New(&cfg, cache.New(storage.NewMemory(0)))
	assert.Error(t, err)

	cfg = config.Default()
	cfg.Weather.Timeout = "never"
	_, err = New(&cfg, cache.New(storage.NewMemory(0)))
	assert.Error(t, err)
}

func TestWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	done := make(chan struct{})
	go func() {
		Watch(ctx, 5*time.Millisecond, func(context.Context) {
			calls++
			if calls == 3 {
				cancel()
			}
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not stop after cancel")
	}
	assert.GreaterOrEqual(t, calls, 3)
}
