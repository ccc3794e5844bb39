package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/shopify-source/internal/testutil"
	"github.com/Sternrassler/shopify-source/pkg/pipeline"
)

// execute runs the root command with fresh flag values.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cfgFile, logLevel, pretty = "", "", false
	runResources, fullRefresh = nil, false
	cfg = nil

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeTestConfig(t *testing.T, mock *testutil.MockShopify) string {
	t.Helper()
	for _, k := range []string{
		"SHOPIFY_SHOP_URL", "SHOPIFY_ACCESS_TOKEN", "SHOPIFY_API_VERSION",
		"SHOPIFY_STATE_DSN", "SHOPIFY_DESTINATION_DSN", "REDIS_URL", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}

	dir := t.TempDir()
	body := fmt.Sprintf(`
shop:
  url: %s
  access_token: shpat_test
  api_version: %q
  graphql_api_version: %q
  max_retries: 0
sync:
  start_date: "2024-01-01"
state:
  dsn: sqlite://%s
destination:
  dsn: sqlite://%s
logging:
  level: error
`, mock.URL(), testutil.APIVersion, testutil.APIVersion,
		filepath.Join(dir, "state.db"), filepath.Join(dir, "warehouse.db"))

	path := filepath.Join(dir, "shopify.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestMetricsEndpoint(t *testing.T) {
	srv := httptest.NewServer(newMux())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestStartMetricsServer_Disabled(t *testing.T) {
	shutdown := startMetricsServer(context.Background(), "")
	shutdown()
}

func TestResourcesCommand(t *testing.T) {
	mock := testutil.NewMockShopify()
	defer mock.Close()

	out, err := execute(t, "resources", "--config", writeTestConfig(t, mock))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 11)
	assert.True(t, strings.HasPrefix(lines[1], "products"))
	assert.Contains(t, out, "inventory_items")
	assert.Contains(t, out, "updatedAt (timestamp)")
	assert.Equal(t, 0, mock.GetRequestCount())
}

func TestRunAndStateCommands(t *testing.T) {
	mock := testutil.NewMockShopify()
	defer mock.Close()
	mock.SetRESTPages("orders", `{"orders":[
		{"id":1,"updated_at":"2024-01-05T00:00:00Z"},
		{"id":2,"updated_at":"2024-01-07T00:00:00Z"}
	]}`)
	path := writeTestConfig(t, mock)

	out, err := execute(t, "run", "--config", path, "-r", "orders")
	require.NoError(t, err)
	assert.Contains(t, out, "orders")
	assert.Contains(t, out, "2024-01-07T00:00:00Z")
	assert.Contains(t, out, "true")

	out, err = execute(t, "state", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "orders")
	assert.Contains(t, out, "2024-01-07T00:00:00Z")

	out, err = execute(t, "state", "reset", "--config", path, "orders")
	require.NoError(t, err)
	assert.Equal(t, "reset orders\n", out)

	out, err = execute(t, "state", "--config", path)
	require.NoError(t, err)
	assert.NotContains(t, out, "orders")
}

func TestRunCommand_UnknownResource(t *testing.T) {
	mock := testutil.NewMockShopify()
	defer mock.Close()

	_, err := execute(t, "run", "--config", writeTestConfig(t, mock), "-r", "gift_cards")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gift_cards")
}

func TestRootCommand_InvalidConfig(t *testing.T) {
	mock := testutil.NewMockShopify()
	defer mock.Close()

	_, err := execute(t, "resources", "--config", writeTestConfig(t, mock), "--log-level", "loud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
}

type fakeLoader struct {
	calls  atomic.Int32
	cancel context.CancelFunc
	after  int32
}

func (f *fakeLoader) Run(ctx context.Context, names ...string) ([]pipeline.Result, error) {
	if f.calls.Add(1) >= f.after {
		f.cancel()
	}
	return []pipeline.Result{{Resource: "orders", Items: 3}}, nil
}

type everyTick time.Duration

func (d everyTick) Next(t time.Time) time.Time {
	return t.Add(time.Duration(d))
}

func TestRunSchedule(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	l := &fakeLoader{cancel: cancel, after: 3}
	err := runSchedule(ctx, everyTick(10*time.Millisecond), l, []string{"orders"}, true)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, l.calls.Load(), int32(3))
}

func TestRunSchedule_StopsWithoutLoad(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := &fakeLoader{cancel: func() {}, after: 1}
	require.NoError(t, runSchedule(ctx, everyTick(time.Hour), l, nil, false))
	assert.Equal(t, int32(0), l.calls.Load())
}
