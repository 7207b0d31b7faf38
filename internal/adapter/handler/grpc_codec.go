package handler

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// jsonCodec carries plain Go structs over gRPC so the service needs no
// generated protobuf code.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return "json" }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// ServerCodec must be passed to grpc.NewServer for OrderService to decode requests.
func ServerCodec() grpc.ServerOption {
	return grpc.ForceServerCodec(jsonCodec{})
}

// ClientCodec is the dial option matching ServerCodec.
func ClientCodec() grpc.DialOption {
	return grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{}))
}

type OpenSessionRequest struct {
	UserID int64  `json:"user_id"`
	Login  string `json:"login"`
	Role   string `json:"role,omitempty"`
}

type OpenSessionResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

type PlaceOrderRequest struct {
	SessionID string      `json:"session_id"`
	RequestID string      `json:"request_id"`
	Lines     []OrderLine `json:"lines"`
}

type OrderLine struct {
	Dish     string `json:"dish"`
	Quantity int32  `json:"quantity"`
}

type PlaceOrderResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	OrderID string `json:"order_id,omitempty"`
	Total   string `json:"total,omitempty"`
}

type GetOrderRequest struct {
	SessionID string `json:"session_id"`
	OrderID   string `json:"order_id"`
}

type GetOrderResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	OrderID      string `json:"order_id,omitempty"`
	Status       string `json:"status,omitempty"`
	RejectReason string `json:"reject_reason,omitempty"`
	Total        string `json:"total,omitempty"`
}

type CloseSessionRequest struct {
	SessionID string `json:"session_id"`
}

type ConfirmPickupRequest struct {
	SessionID string `json:"session_id"`
	OrderID   string `json:"order_id"`
}

// Response is the reply of calls that carry no payload.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type OrderServiceServer interface {
	OpenSession(context.Context, *OpenSessionRequest) (*OpenSessionResponse, error)
	PlaceOrder(context.Context, *PlaceOrderRequest) (*PlaceOrderResponse, error)
	GetOrder(context.Context, *GetOrderRequest) (*GetOrderResponse, error)
	CloseSession(context.Context, *CloseSessionRequest) (*Response, error)
	ConfirmPickup(context.Context, *ConfirmPickupRequest) (*Response, error)
}

const serviceName = "restaurant.OrderService"

func unary[Req, Resp any](method string, call func(OrderServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(OrderServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(OrderServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var OrderServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "OpenSession", Handler: unary("OpenSession", OrderServiceServer.OpenSession)},
		{MethodName: "PlaceOrder", Handler: unary("PlaceOrder", OrderServiceServer.PlaceOrder)},
		{MethodName: "GetOrder", Handler: unary("GetOrder", OrderServiceServer.GetOrder)},
		{MethodName: "CloseSession", Handler: unary("CloseSession", OrderServiceServer.CloseSession)},
		{MethodName: "ConfirmPickup", Handler: unary("ConfirmPickup", OrderServiceServer.ConfirmPickup)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "restaurant.proto",
}

func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&OrderServiceDesc, srv)
}

// OrderServiceClient calls OrderService over a connection dialled with ClientCodec.
type OrderServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewOrderServiceClient(cc grpc.ClientConnInterface) *OrderServiceClient {
	return &OrderServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) OpenSession(ctx context.Context, in *OpenSessionRequest, opts ...grpc.CallOption) (*OpenSessionResponse, error) {
	return invoke[OpenSessionResponse](ctx, c.cc, "OpenSession", in, opts...)
}

func (c *OrderServiceClient) PlaceOrder(ctx context.Context, in *PlaceOrderRequest, opts ...grpc.CallOption) (*PlaceOrderResponse, error) {
	return invoke[PlaceOrderResponse](ctx, c.cc, "PlaceOrder", in, opts...)
}

func (c *OrderServiceClient) GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*GetOrderResponse, error) {
	return invoke[GetOrderResponse](ctx, c.cc, "GetOrder", in, opts...)
}

func (c *OrderServiceClient) CloseSession(ctx context.Context, in *CloseSessionRequest, opts ...grpc.CallOption) (*Response, error) {
	return invoke[Response](ctx, c.cc, "CloseSession", in, opts...)
}

func (c *OrderServiceClient) ConfirmPickup(ctx context.Context, in *ConfirmPickupRequest, opts ...grpc.CallOption) (*Response, error) {
	return invoke[Response](ctx, c.cc, "ConfirmPickup", in, opts...)
}
