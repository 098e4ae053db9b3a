package grpc

import (
	"testing"

	"google.golang.org/grpc"
)

func TestPoolReusesConnection(t *testing.T) {
	p := NewPool(WithCallOptions(grpc.CallContentSubtype("json")))
	defer p.Close()

	first, err := p.GetConnection("passthrough:///ledger:50051")
	if err != nil {
		t.Fatalf("GetConnection: %v", err)
	}
	second, err := p.GetConnection("passthrough:///ledger:50051")
	if err != nil {
		t.Fatalf("GetConnection: %v", err)
	}
	if first != second {
		t.Error("expected the same connection for the same target")
	}

	other, err := p.GetConnection("passthrough:///audit:50051")
	if err != nil {
		t.Fatalf("GetConnection: %v", err)
	}
	if other == first {
		t.Error("expected a different connection for another target")
	}
}

func TestPoolReplacesClosedConnection(t *testing.T) {
	p := NewPool()
	defer p.Close()

	first, err := p.GetConnection("passthrough:///ledger:50051")
	if err != nil {
		t.Fatalf("GetConnection: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	second, err := p.GetConnection("passthrough:///ledger:50051")
	if err != nil {
		t.Fatalf("GetConnection: %v", err)
	}
	if first == second {
		t.Error("expected a fresh connection after the previous one was closed")
	}
}
