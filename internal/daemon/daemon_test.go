package daemon

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/wpphub/internal/lock"
	"github.com/matheus3301/wpphub/internal/monitor"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// shortTempDir keeps Unix socket paths under the 104-char macOS limit.
func shortTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "wpphub-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

func dialHealth(t *testing.T, socketPath string) healthpb.HealthClient {
	t.Helper()
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func checkHealth(t *testing.T, client healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check(%q) error = %v", service, err)
	}
	return resp.Status
}

func TestModuleValidates(t *testing.T) {
	if err := fx.ValidateApp(Module(Params{DataDir: t.TempDir()})); err != nil {
		t.Fatalf("ValidateApp() error = %v", err)
	}
}

func TestControlServerHealth(t *testing.T) {
	dir := shortTempDir(t)
	socketPath := filepath.Join(dir, "c.sock")

	// A stale socket file must not block binding.
	if err := os.WriteFile(socketPath, nil, 0600); err != nil {
		t.Fatal(err)
	}

	hs := health.NewServer()
	srv, err := NewControlServer(socketPath, hs, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Start() }()

	info, err := os.Stat(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("socket perm = %o, want 600", perm)
	}

	client := dialHealth(t, socketPath)
	if got := checkHealth(t, client, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("overall status = %v, want SERVING", got)
	}

	hs.SetServingStatus(monitor.Service, healthpb.HealthCheckResponse_NOT_SERVING)
	if got := checkHealth(t, client, monitor.Service); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("%s = %v, want NOT_SERVING", monitor.Service, got)
	}

	srv.Stop(context.Background())
	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Errorf("socket still present after Stop: %v", err)
	}
}

func TestDaemonLifecycle(t *testing.T) {
	dir := shortTempDir(t)
	socketPath := filepath.Join(dir, "d.sock")
	configPath := filepath.Join(dir, "config.toml")
	cfg := `
[http]
addr = "127.0.0.1:0"

[control]
socket = "` + socketPath + `"

[schedule]
timezone = "UTC"

[metrics]
enabled = false
`
	if err := os.WriteFile(configPath, []byte(cfg), 0600); err != nil {
		t.Fatal(err)
	}

	app := fxtest.New(t, Module(Params{ConfigPath: configPath, DataDir: dir}))
	app.RequireStart()

	client := dialHealth(t, socketPath)
	if got := checkHealth(t, client, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("overall status = %v, want SERVING", got)
	}
	// No connections yet.
	if got := checkHealth(t, client, monitor.Service); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("%s = %v, want NOT_SERVING", monitor.Service, got)
	}

	// The lock file advertises where the daemon serves.
	owner, err := lock.ReadOwner(dir)
	if err != nil {
		t.Fatalf("ReadOwner: %v", err)
	}
	if owner.Control != socketPath || owner.HTTP == "" || strings.HasSuffix(owner.HTTP, ":0") {
		t.Fatalf("owner = %+v", owner)
	}
	resp, err := http.Get("http://" + owner.HTTP + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/health = %d", resp.StatusCode)
	}

	// A second daemon on the same data dir is refused while the first runs.
	if _, err := lock.Acquire(dir); err == nil {
		t.Error("expected lock to be held by the running daemon")
	}

	app.RequireStop()

	if _, err := os.Stat(filepath.Join(dir, "wpphub.db")); err != nil {
		t.Errorf("app db missing: %v", err)
	}
	l, err := lock.Acquire(dir)
	if err != nil {
		t.Fatalf("lock not released on stop: %v", err)
	}
	_ = l.Release()
}
