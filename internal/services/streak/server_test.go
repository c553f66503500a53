package streak

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestNewRequiresAddr(t *testing.T) {
	if _, err := New(Config{DBPath: filepath.Join(t.TempDir(), "streak.db")}); err == nil {
		t.Fatal("expected missing address error")
	}
}

func TestNewOpensStore(t *testing.T) {
	server, err := New(Config{
		HTTPAddr: "127.0.0.1:0",
		DBPath:   filepath.Join(t.TempDir(), "nested", "streak.db"),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer server.Close()

	if server.Service() == nil {
		t.Fatal("service must be wired")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	dbPath := filepath.Join(t.TempDir(), "streak.db")

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Config{HTTPAddr: "127.0.0.1:0", DBPath: dbPath})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v, want nil on cancellation", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after cancellation")
	}
}
