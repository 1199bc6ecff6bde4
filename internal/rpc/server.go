package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"tradedesk/internal/worker"
)

// Server implements MetricsServer on top of a running worker.
type Server struct {
	worker *worker.Worker
	log    *slog.Logger
}

// NewServer creates a Server that submits requests to w.
func NewServer(w *worker.Worker, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{worker: w, log: log.With("component", "rpc")}
}

// RegisterGRPC registers the server on the given gRPC server instance.
func (s *Server) RegisterGRPC(gs *grpc.Server) {
	RegisterMetricsServer(gs, s)
}

// NewGRPCServer returns a grpc.Server with s registered and request logging
// installed.
func (s *Server) NewGRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(UnaryLogger(s.log)))
	gs := grpc.NewServer(opts...)
	s.RegisterGRPC(gs)
	return gs
}

// Compute decodes a worker request, runs it and encodes the response. A
// failed computation is still an OK RPC; the failure is in the response.
func (s *Server) Compute(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	var req worker.Request
	if err := json.Unmarshal(in.GetValue(), &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	if req.Type == "" {
		return nil, status.Error(codes.InvalidArgument, "request type is required")
	}

	resp, err := s.worker.Submit(ctx, req)
	if err != nil {
		if errors.Is(err, worker.ErrStopped) {
			return nil, status.Error(codes.Unavailable, err.Error())
		}
		return nil, status.FromContextError(err).Err()
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return wrapperspb.Bytes(data), nil
}

// UnaryLogger logs each unary call with its duration and status code.
func UnaryLogger(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		if code == codes.OK {
			log.Debug("rpc", "method", info.FullMethod, "elapsed", time.Since(start))
		} else {
			log.Warn("rpc failed", "method", info.FullMethod, "code", code.String(),
				"error", err, "elapsed", time.Since(start))
		}
		return resp, err
	}
}
