package handler

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/rl1809/restaurant/internal/core/domain"
)

func newGRPCClient(t *testing.T, f *fixture) *OrderServiceClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)

	srv := grpc.NewServer(ServerCodec())
	RegisterOrderServiceServer(srv, NewGRPCHandler(f.sessions, nil))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		ClientCodec(),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewOrderServiceClient(conn)
}

func TestGRPC_OrderFlow(t *testing.T) {
	f := newFixture(t, item("soup", 1, 0))
	client := newGRPCClient(t, f)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	open, err := client.OpenSession(ctx, &OpenSessionRequest{UserID: 1, Login: "alice"})
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	if !open.Success || open.SessionID == "" {
		t.Fatalf("unexpected response: %+v", open)
	}

	placed, err := client.PlaceOrder(ctx, &PlaceOrderRequest{
		SessionID: open.SessionID,
		RequestID: "r-1",
		Lines:     []OrderLine{{Dish: "soup", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if !placed.Success || placed.Total != "7.25" {
		t.Fatalf("unexpected response: %+v", placed)
	}

	dup, err := client.PlaceOrder(ctx, &PlaceOrderRequest{
		SessionID: open.SessionID,
		RequestID: "r-1",
		Lines:     []OrderLine{{Dish: "soup", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if dup.Success || dup.Message != "duplicate request" {
		t.Errorf("expected duplicate request, got %+v", dup)
	}

	waitFor(t, 2*time.Second, func() bool {
		got, err := client.GetOrder(ctx, &GetOrderRequest{SessionID: open.SessionID, OrderID: placed.OrderID})
		return err == nil && got.Status == string(domain.OrderStatusReady)
	})

	pickup, err := client.ConfirmPickup(ctx, &ConfirmPickupRequest{SessionID: open.SessionID, OrderID: placed.OrderID})
	if err != nil || !pickup.Success {
		t.Fatalf("ConfirmPickup: %+v %v", pickup, err)
	}
	waitFor(t, 2*time.Second, func() bool {
		got, err := client.GetOrder(ctx, &GetOrderRequest{SessionID: open.SessionID, OrderID: placed.OrderID})
		return err == nil && got.Status == string(domain.OrderStatusServed)
	})

	closed, err := client.CloseSession(ctx, &CloseSessionRequest{SessionID: open.SessionID})
	if err != nil || !closed.Success {
		t.Fatalf("CloseSession: %+v %v", closed, err)
	}
	again, _ := client.CloseSession(ctx, &CloseSessionRequest{SessionID: open.SessionID})
	if again.Success || again.Message != "session not found" {
		t.Errorf("expected session not found, got %+v", again)
	}
}

func TestGRPC_RejectedOrder(t *testing.T) {
	f := newFixture(t, item("soup", 1, time.Minute))
	client := newGRPCClient(t, f)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	open, _ := client.OpenSession(ctx, &OpenSessionRequest{UserID: 1, Login: "alice"})
	placed, err := client.PlaceOrder(ctx, &PlaceOrderRequest{
		SessionID: open.SessionID,
		Lines:     []OrderLine{{Dish: "soup", Quantity: 2}},
	})
	if err != nil || !placed.Success {
		t.Fatalf("PlaceOrder: %+v %v", placed, err)
	}

	waitFor(t, 2*time.Second, func() bool {
		got, err := client.GetOrder(ctx, &GetOrderRequest{SessionID: open.SessionID, OrderID: placed.OrderID})
		return err == nil && got.Status == string(domain.OrderStatusRejected) && got.RejectReason != ""
	})

	early, _ := client.ConfirmPickup(ctx, &ConfirmPickupRequest{SessionID: open.SessionID, OrderID: placed.OrderID})
	if early.Success || early.Message != "order is not ready" {
		t.Errorf("expected not ready, got %+v", early)
	}
}

func TestGRPC_Validation(t *testing.T) {
	client := newGRPCClient(t, newFixture(t))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.OpenSession(ctx, &OpenSessionRequest{UserID: 9, Login: "root", Role: "admin"})
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	if resp.Success || resp.Message != "admins cannot place orders" {
		t.Errorf("expected admin refusal, got %+v", resp)
	}

	missing, _ := client.OpenSession(ctx, &OpenSessionRequest{})
	if missing.Success {
		t.Error("expected failure for empty request")
	}

	order, _ := client.GetOrder(ctx, &GetOrderRequest{SessionID: "nope", OrderID: "x"})
	if order.Success || order.Message != "session not found" {
		t.Errorf("expected session not found, got %+v", order)
	}
}
