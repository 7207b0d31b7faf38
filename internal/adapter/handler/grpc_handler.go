package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rl1809/restaurant/internal/core/domain"
	"github.com/rl1809/restaurant/internal/core/service"
)

type GRPCHandler struct {
	sessions *service.SessionManager
	log      *slog.Logger
}

func NewGRPCHandler(sessions *service.SessionManager, log *slog.Logger) *GRPCHandler {
	if log == nil {
		log = slog.Default()
	}
	return &GRPCHandler{sessions: sessions, log: log}
}

// failure keeps the flat success/message reply shape for every error.
func (h *GRPCHandler) failure(method string, err error) (bool, string) {
	status, message := classify(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("grpc_request_failed", "method", method, "error", err)
	}
	return false, message
}

func (h *GRPCHandler) OpenSession(ctx context.Context, req *OpenSessionRequest) (*OpenSessionResponse, error) {
	if req.UserID == 0 || req.Login == "" {
		return &OpenSessionResponse{Message: "missing required fields"}, nil
	}

	user := domain.User{ID: req.UserID, Login: req.Login, Role: domain.RoleUser}
	if domain.Role(req.Role) == domain.RoleAdmin {
		user.Role = domain.RoleAdmin
	}

	s, err := h.sessions.Open(user)
	if err != nil {
		resp := &OpenSessionResponse{}
		resp.Success, resp.Message = h.failure("OpenSession", err)
		return resp, nil
	}
	return &OpenSessionResponse{Success: true, Message: "session opened", SessionID: s.ID}, nil
}

func (h *GRPCHandler) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*PlaceOrderResponse, error) {
	s, ok := h.sessions.Get(req.SessionID)
	if !ok {
		return &PlaceOrderResponse{Message: "session not found"}, nil
	}

	lines := make([]domain.OrderLine, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = domain.OrderLine{Dish: l.Dish, Quantity: int(l.Quantity)}
	}

	order, err := s.Submit(ctx, req.RequestID, lines)
	if err != nil {
		resp := &PlaceOrderResponse{}
		resp.Success, resp.Message = h.failure("PlaceOrder", err)
		return resp, nil
	}

	return &PlaceOrderResponse{
		Success: true,
		Message: "order placed successfully",
		OrderID: order.ID,
		Total:   order.Total.StringFixed(2),
	}, nil
}

func (h *GRPCHandler) GetOrder(ctx context.Context, req *GetOrderRequest) (*GetOrderResponse, error) {
	s, ok := h.sessions.Get(req.SessionID)
	if !ok {
		return &GetOrderResponse{Message: "session not found"}, nil
	}

	order, err := s.Order(req.OrderID)
	if err != nil {
		resp := &GetOrderResponse{}
		resp.Success, resp.Message = h.failure("GetOrder", err)
		return resp, nil
	}

	return &GetOrderResponse{
		Success:      true,
		Message:      "ok",
		OrderID:      order.ID,
		Status:       string(order.Status),
		RejectReason: order.RejectReason,
		Total:        order.Total.StringFixed(2),
	}, nil
}

func (h *GRPCHandler) CloseSession(ctx context.Context, req *CloseSessionRequest) (*Response, error) {
	if err := h.sessions.Close(req.SessionID); err != nil {
		resp := &Response{}
		resp.Success, resp.Message = h.failure("CloseSession", err)
		return resp, nil
	}
	return &Response{Success: true, Message: "session closed"}, nil
}

func (h *GRPCHandler) ConfirmPickup(ctx context.Context, req *ConfirmPickupRequest) (*Response, error) {
	s, ok := h.sessions.Get(req.SessionID)
	if !ok {
		return &Response{Message: "session not found"}, nil
	}

	if err := s.ConfirmPickup(ctx, req.OrderID); err != nil {
		resp := &Response{}
		resp.Success, resp.Message = h.failure("ConfirmPickup", err)
		return resp, nil
	}
	return &Response{Success: true, Message: "pickup confirmed"}, nil
}
