package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"cryptobot/internal/backtest"
	"cryptobot/internal/domain"
	"cryptobot/internal/store"
	"cryptobot/internal/strategy"
)

// BacktestServiceName is the fully qualified gRPC service name. Requests
// and responses are google.protobuf.Struct documents carrying the same JSON
// shapes as the HTTP API.
const BacktestServiceName = "cryptobot.v1.Backtest"

// BacktestServer is the server API for the cryptobot.v1.Backtest service.
type BacktestServer interface {
	RunBacktest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RunPortfolio(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetBacktest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListStrategies(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func unaryMethod(name string, call func(BacktestServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	fullMethod := "/" + BacktestServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(BacktestServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(BacktestServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

var backtestServiceDesc = grpc.ServiceDesc{
	ServiceName: BacktestServiceName,
	HandlerType: (*BacktestServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("RunBacktest", BacktestServer.RunBacktest),
		unaryMethod("RunPortfolio", BacktestServer.RunPortfolio),
		unaryMethod("GetBacktest", BacktestServer.GetBacktest),
		unaryMethod("ListStrategies", BacktestServer.ListStrategies),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cryptobot/v1/backtest.proto",
}

// RegisterGRPC registers srv on gs.
func RegisterGRPC(gs grpc.ServiceRegistrar, srv BacktestServer) {
	gs.RegisterService(&backtestServiceDesc, srv)
}

// toStruct converts a JSON-tagged value into a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// fromStruct decodes s into v through its JSON form.
func fromStruct(s *structpb.Struct, v any) error {
	data, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, domain.ErrStrategyNotFound), errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidRange),
		errors.Is(err, domain.ErrInvalidParams),
		errors.Is(err, domain.ErrInvalidConfig),
		errors.Is(err, backtest.ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// GRPCService implements BacktestServer on top of a backtest.Service.
type GRPCService struct {
	svc *backtest.Service
}

// NewGRPCService wraps svc.
func NewGRPCService(svc *backtest.Service) *GRPCService { return &GRPCService{svc: svc} }

func (g *GRPCService) RunBacktest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req backtest.Request
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decoding request: %v", err)
	}
	run, err := g.svc.RunBacktest(ctx, req)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(run)
}

func (g *GRPCService) RunPortfolio(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req backtest.PortfolioRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decoding request: %v", err)
	}
	run, err := g.svc.RunPortfolio(ctx, req)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(run)
}

func (g *GRPCService) GetBacktest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id := in.GetFields()["id"].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	run, err := g.svc.GetRun(ctx, id)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(run)
}

func (g *GRPCService) ListStrategies(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return toStruct(struct {
		Strategies []strategy.Info `json:"strategies"`
	}{g.svc.Strategies()})
}

// GRPCClient calls a cryptobot.v1.Backtest server.
type GRPCClient struct {
	cc grpc.ClientConnInterface
}

// NewGRPCClient returns a client over an established connection.
func NewGRPCClient(cc grpc.ClientConnInterface) *GRPCClient { return &GRPCClient{cc: cc} }

func (c *GRPCClient) invoke(ctx context.Context, method string, req, out any) error {
	in, err := toStruct(req)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", method, err)
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+BacktestServiceName+"/"+method, in, resp); err != nil {
		return err
	}
	return fromStruct(resp, out)
}

// RunBacktest runs a single-symbol backtest remotely.
func (c *GRPCClient) RunBacktest(ctx context.Context, req backtest.Request) (*backtest.Run, error) {
	var run backtest.Run
	if err := c.invoke(ctx, "RunBacktest", req, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// GetBacktest fetches a recorded run.
func (c *GRPCClient) GetBacktest(ctx context.Context, id string) (*backtest.Run, error) {
	var run backtest.Run
	if err := c.invoke(ctx, "GetBacktest", map[string]string{"id": id}, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListStrategies lists the server's strategies.
func (c *GRPCClient) ListStrategies(ctx context.Context) ([]strategy.Info, error) {
	var out struct {
		Strategies []strategy.Info `json:"strategies"`
	}
	if err := c.invoke(ctx, "ListStrategies", struct{}{}, &out); err != nil {
		return nil, err
	}
	return out.Strategies, nil
}
