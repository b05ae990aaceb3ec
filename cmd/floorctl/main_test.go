package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/floorline/api/internal/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		raw     string
		want    client.OrderLineInput
		wantErr bool
	}{
		{raw: "kebab:2", want: client.OrderLineInput{MenuItemID: "kebab", Quantity: 2}},
		{raw: "tea:1:less sugar: no ice", want: client.OrderLineInput{MenuItemID: "tea", Quantity: 1, Notes: "less sugar: no ice"}},
		{raw: "kebab", wantErr: true},
		{raw: ":2", wantErr: true},
		{raw: "kebab:two", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseLine(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOrderCreate_QueuesWhileOfflineThenDrains(t *testing.T) {
	var down atomic.Bool
	down.Store(true)
	var creates atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if down.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "/rpc/orders.create", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("Idempotency-Key"))
		creates.Add(1)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"order_id":"6ba7b810-9dad-11d1-80b4-00c04fd430c8","order":{"total":"24000"}}`))
	}))
	defer srv.Close()

	queuePath := filepath.Join(t.TempDir(), "queue.db")
	common := []string{"--server", srv.URL, "--token", "tok", "--queue", queuePath}

	out, err := execute(t, append([]string{"order", "create", "--table", "5", "--item", "kebab:2"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "queued")

	out, err = execute(t, append([]string{"queue", "list"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "order.create")

	down.Store(false)
	out, err = execute(t, append([]string{"queue", "drain"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "delivered 1, rejected 0, remaining 0")
	assert.Equal(t, int32(1), creates.Load())

	out, err = execute(t, append([]string{"order", "create", "--table", "5", "--item", "kebab:2"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "total 24000")
}

func TestOrderCreate_RefusalIsNotQueued(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"order must have at least one line"}`))
	}))
	defer srv.Close()

	queuePath := filepath.Join(t.TempDir(), "queue.db")
	_, err := execute(t, "order", "create", "--table", "5", "--server", srv.URL, "--queue", queuePath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one line")

	out, err := execute(t, "queue", "list", "--server", srv.URL, "--queue", queuePath)
	require.NoError(t, err)
	assert.NotContains(t, out, "order.create")
}

func TestOrderStatus_FloorShowsLocalWrite(t *testing.T) {
	const orderID = "6ba7b810-9dad-11d1-80b4-00c04fd430c8"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rpc/orders.updateStatus":
			w.Write([]byte(`{"id":"` + orderID + `","table_number":5,"status":"preparing","total":"24000"}`))
		case "/rpc/orders.getActive":
			// Read lags behind the write.
			w.Write([]byte(`[{"id":"` + orderID + `","table_number":5,"status":"new","total":"24000"}]`))
		case "/rpc/tables.getAll":
			w.Write([]byte(`[{"number":5,"status":"occupied","current_order_id":"` + orderID + `"}]`))
		default:
			t.Errorf("unexpected call %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	queuePath := filepath.Join(t.TempDir(), "queue.db")
	out, err := execute(t, "order", "status", orderID, "preparing", "--floor", "--server", srv.URL, "--token", "tok", "--queue", queuePath)
	require.NoError(t, err)
	assert.Contains(t, out, "is now preparing")
	assert.Contains(t, out, "table 5")
	assert.NotContains(t, out, "new", "local write must override the stale read")
}

func TestConfigFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "floorctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte("base_url: "+srv.URL+"\npoll_interval: 2s\n"), 0o600))

	t.Setenv("FLOORLINE_URL", "")
	out, err := execute(t, "health", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)
}
