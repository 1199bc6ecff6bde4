package rpc

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"tradedesk/internal/metrics"
	"tradedesk/internal/worker"
)

func startServer(t *testing.T) (*Client, context.CancelFunc) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	w := worker.New(8, log)
	ctx, stopWorker := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	lis := bufconn.Listen(1 << 20)
	gs := NewServer(w, log).NewGRPCServer()
	go gs.Serve(lis)

	client, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
		gs.Stop()
		stopWorker()
		<-done
	})
	return client, stopWorker
}

func TestComputeMaxPainOverGRPC(t *testing.T) {
	client, _ := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reply, err := client.Compute(ctx, worker.Request{
		Type: worker.TypeCalculateMaxPain,
		ID:   "mp-1",
		Payload: json.RawMessage(`{"chain":[
			{"strikePrice":100,"CE":{"openInterest":50}},
			{"strikePrice":110},
			{"strikePrice":120,"PE":{"openInterest":80}}]}`),
	})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if reply.ID != "mp-1" || !reply.Success {
		t.Fatalf("reply = %+v", reply)
	}
	var mp metrics.MaxPain
	if err := reply.Decode(&mp); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if mp.Strike != 120 || mp.Pain != 1000 {
		t.Errorf("max pain = %+v, want strike 120 pain 1000", mp)
	}
}

func TestComputeFailureIsAReply(t *testing.T) {
	client, _ := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reply, err := client.Compute(ctx, worker.Request{Type: "nope", ID: "x"})
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if reply.Success || reply.ID != "x" || reply.Error == "" {
		t.Errorf("reply = %+v", reply)
	}
	if err := reply.Decode(new(any)); err == nil {
		t.Error("Decode of failed reply should error")
	}
}

func TestComputeInvalidArgument(t *testing.T) {
	client, _ := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, body := range []string{`not json`, `{"id":"1"}`} {
		_, err := client.ComputeRaw(ctx, []byte(body))
		if status.Code(err) != codes.InvalidArgument {
			t.Errorf("ComputeRaw(%s) code = %v, want InvalidArgument", body, status.Code(err))
		}
	}
}

func TestComputeWorkerStopped(t *testing.T) {
	client, stopWorker := startServer(t)
	stopWorker()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Run observes the cancellation asynchronously.
	deadline := time.Now().Add(2 * time.Second)
	for {
		_, err := client.Compute(ctx, worker.Request{Type: worker.TypeCalculatePivotPoints, ID: "p"})
		if status.Code(err) == codes.Unavailable {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("Compute after stop: %v, want Unavailable", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
