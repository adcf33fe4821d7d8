package health

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

type fakePinger struct {
	mu  sync.Mutex
	err error
}

func (f *fakePinger) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakePinger) set(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func startServer(t *testing.T, p Pinger) (*Server, grpc.DialOption) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := New(p, WithTimeout(time.Second))
	go func() {
		if err := s.Serve(lis); err != nil {
			t.Errorf("Serve failed: %v", err)
		}
	}()
	t.Cleanup(s.Stop)

	dialer := grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
	return s, dialer
}

func TestHealthFollowsPinger(t *testing.T) {
	t.Parallel()
	pinger := &fakePinger{}
	s, dialer := startServer(t, pinger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if got := s.Check(ctx); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %v", got)
	}
	status, err := Probe(ctx, "passthrough:///bufnet", ServiceName, dialer)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if status != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING over the wire, got %v", status)
	}

	pinger.set(errors.New("database is closed"))
	s.Check(ctx)
	status, err = Probe(ctx, "passthrough:///bufnet", "", dialer)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING, got %v", status)
	}
}

func TestHealthWithoutPingerServes(t *testing.T) {
	t.Parallel()
	s := New(nil)
	if got := s.Check(context.Background()); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %v", got)
	}
}

func TestRunStopsWithContext(t *testing.T) {
	t.Parallel()
	s := New(&fakePinger{}, WithInterval(10*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
