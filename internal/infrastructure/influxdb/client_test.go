package influxdb

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/klafs-vdc/internal/infrastructure/config"
)

// fakeInflux answers /ping and records line protocol posted to /api/v2/write.
type fakeInflux struct {
	mu     sync.Mutex
	lines  []string
	query  string
	status int
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ping":
		w.WriteHeader(http.StatusNoContent)
	case "/api/v2/write":
		body, _ := io.ReadAll(r.Body) //nolint:errcheck // test server
		f.mu.Lock()
		f.query = r.URL.RawQuery
		f.lines = append(f.lines, strings.Split(strings.TrimSpace(string(body)), "\n")...)
		status := f.status
		f.mu.Unlock()
		if status == 0 {
			status = http.StatusNoContent
		}
		w.WriteHeader(status)
		if status >= 300 {
			w.Write([]byte(`{"code":"invalid","message":"bucket not found"}`)) //nolint:errcheck // test server
		}
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeInflux) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func startFake(t *testing.T) (*fakeInflux, config.InfluxDBConfig) {
	t.Helper()
	fake := &fakeInflux{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return fake, config.InfluxDBConfig{
		Enabled:       true,
		URL:           srv.URL,
		Token:         "test-token",
		Org:           "home",
		Bucket:        "sauna",
		BatchSize:     100,
		FlushInterval: 60,
	}
}

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := Connect(config.InfluxDBConfig{Enabled: true, URL: url, Org: "o", Bucket: "b"})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestClientOptions_Defaults(t *testing.T) {
	tests := []struct {
		name      string
		batch     int
		flush     int
		wantBatch uint
		wantFlush uint
	}{
		{"configured", 50, 2, 50, 2000},
		{"zero", 0, 0, defaultBatchSize, 10000},
		{"negative", -5, -1, defaultBatchSize, 10000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := clientOptions(config.InfluxDBConfig{BatchSize: tt.batch, FlushInterval: tt.flush})
			if got := opts.BatchSize(); got != tt.wantBatch {
				t.Errorf("batch size = %d, want %d", got, tt.wantBatch)
			}
			if got := opts.FlushInterval(); got != tt.wantFlush {
				t.Errorf("flush interval = %d, want %d", got, tt.wantFlush)
			}
		})
	}
}

func TestRecordReading_Delivered(t *testing.T) {
	fake, cfg := startFake(t)

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.RecordReading("364cc9db", "currentTemperature", 78.5)
	client.RecordReading("364cc9db", "isPoweredOn", 1)
	client.Flush()

	lines := fake.received()
	if len(lines) != 2 {
		t.Fatalf("lines = %v, want 2", lines)
	}
	if !strings.HasPrefix(lines[0], "sauna,sauna_id=364cc9db,value=currentTemperature reading=78.5 ") {
		t.Errorf("line[0] = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "sauna,sauna_id=364cc9db,value=isPoweredOn reading=1 ") {
		t.Errorf("line[1] = %q", lines[1])
	}
	if !strings.Contains(fake.query, "bucket=sauna") || !strings.Contains(fake.query, "org=home") {
		t.Errorf("write query = %q", fake.query)
	}
}

func TestWriteErrorsReachCallback(t *testing.T) {
	fake, cfg := startFake(t)
	fake.status = http.StatusNotFound

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	got := make(chan error, 1)
	client.SetOnError(func(err error) {
		select {
		case got <- err:
		default:
		}
	})

	client.RecordReading("364cc9db", "currentTemperature", 60)
	client.Flush()

	select {
	case err := <-got:
		if err == nil {
			t.Error("callback received nil error")
		}
	case <-time.After(2 * time.Second):
		t.Error("write error not delivered to callback")
	}
}

func TestHealthCheckAndClose(t *testing.T) {
	fake, cfg := startFake(t)

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	client.RecordReading("364cc9db", "currentTemperature", 40)
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if len(fake.received()) != 1 {
		t.Errorf("Close() did not flush pending points: %v", fake.received())
	}

	if client.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() after Close = %v, want ErrNotConnected", err)
	}

	// Dropped silently after Close.
	client.RecordReading("364cc9db", "currentTemperature", 41)
	client.Flush()
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestZeroClientIsInert(t *testing.T) {
	c := &Client{}
	c.RecordReading("364cc9db", "T1", 1)
	c.RecordBridgeStats("klafs-vdc", BridgeStats{})
	c.Flush()
	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	var nilClient *Client
	if nilClient.IsConnected() {
		t.Error("nil client reports connected")
	}
}

func TestPoints(t *testing.T) {
	ts := time.Unix(1772380800, 0)

	tests := []struct {
		name  string
		point *write.Point
		want  string
	}{
		{
			name:  "reading",
			point: readingPoint("364cc9db", "currentTemperature", 78.5, ts),
			want:  "sauna,sauna_id=364cc9db,value=currentTemperature reading=78.5 1772380800",
		},
		{
			name:  "bridge stats",
			point: bridgePoint("klafs-vdc", BridgeStats{DroppedRequests: 3, SessionActive: true, Health: "healthy"}, ts),
			want:  `klafs_bridge,bridge=klafs-vdc dropped_requests=3i,session_active=true,status="healthy" 1772380800`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := strings.TrimSpace(write.PointToLineProtocol(tt.point, time.Second))
			if got != tt.want {
				t.Errorf("line protocol = %q, want %q", got, tt.want)
			}
		})
	}
}
