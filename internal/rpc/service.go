// Package rpc exposes the CASA engine as the gRPC service
// casa.v1.MetricsService. Messages are google.protobuf.Struct values
// carrying the same JSON documents as the HTTP API, so no generated code
// is needed.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/casa.report/internal/casa"
	"github.com/banshee-data/casa.report/internal/db"
	"github.com/banshee-data/casa.report/internal/jobfile"
	"github.com/banshee-data/casa.report/internal/monitoring"
)

var logf = monitoring.Component("rpc")

const (
	ServiceName = "casa.v1.MetricsService"

	computeMethod = "/" + ServiceName + "/Compute"
	getMethod     = "/" + ServiceName + "/GetAnalysis"

	// maxMsgSize matches the HTTP body limit default.
	maxMsgSize = 32 << 20
)

// Analyzer computes and records one job.
type Analyzer interface {
	Analyze(ctx context.Context, job *jobfile.Job) (*db.Analysis, error)
}

// Lookup reads stored jobs.
type Lookup interface {
	Analysis(ctx context.Context, jobID string) (*db.Analysis, error)
}

// MetricsServiceServer is the server API for casa.v1.MetricsService.
type MetricsServiceServer interface {
	// Compute takes an analyze request document and returns the stored
	// analysis document.
	Compute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	// GetAnalysis takes {"job_id": ...} and returns the stored analysis.
	GetAnalysis(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// Server implements MetricsServiceServer.
type Server struct {
	analyzer Analyzer
	lookup   Lookup
}

// NewServer returns a Server. lookup may be nil, in which case
// GetAnalysis is unimplemented.
func NewServer(analyzer Analyzer, lookup Lookup) *Server {
	return &Server{analyzer: analyzer, lookup: lookup}
}

var _ MetricsServiceServer = (*Server)(nil)

func (s *Server) Compute(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	data, err := req.MarshalJSON()
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	job, err := jobfile.ParseJSON(data)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	rec, err := s.analyzer.Analyze(ctx, job)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(rec)
}

func (s *Server) GetAnalysis(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.lookup == nil {
		return nil, status.Error(codes.Unimplemented, "report store is not configured")
	}
	id := req.GetFields()["job_id"].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "job_id is required")
	}
	rec, err := s.lookup.Analysis(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(rec)
}

// toStatus maps engine and store errors onto gRPC codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, casa.ErrInvalidParameters), errors.Is(err, casa.ErrInvalidTrajectory):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, db.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		logf("internal error: %v", err)
		return status.Error(codes.Internal, "analysis failed")
	}
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	out := &structpb.Struct{}
	if err := out.UnmarshalJSON(data); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}

func computeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MetricsServiceServer).Compute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: computeMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MetricsServiceServer).Compute(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getAnalysisHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MetricsServiceServer).GetAnalysis(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MetricsServiceServer).GetAnalysis(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MetricsServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Compute", Handler: computeHandler},
		{MethodName: "GetAnalysis", Handler: getAnalysisHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "casa/v1/metrics.proto",
}

// RegisterService registers srv with the gRPC server.
func RegisterService(s grpc.ServiceRegistrar, srv MetricsServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

// LoggingInterceptor logs each unary call with its status code and
// duration.
func LoggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	logf("%s %s %vms", info.FullMethod, status.Code(err), float64(time.Since(start).Nanoseconds())/1e6)
	return resp, err
}

// NewGRPCServer returns a grpc.Server with the logging interceptor and
// message limits, with srv registered.
func NewGRPCServer(srv MetricsServiceServer, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.MaxRecvMsgSize(maxMsgSize),
		grpc.MaxSendMsgSize(maxMsgSize),
		grpc.ChainUnaryInterceptor(LoggingInterceptor),
	}, opts...)
	gs := grpc.NewServer(opts...)
	RegisterService(gs, srv)
	return gs
}

// Client calls casa.v1.MetricsService.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Compute(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, computeMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetAnalysis(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ComputeJob sends job and decodes the response document.
func (c *Client) ComputeJob(ctx context.Context, job *jobfile.Job, opts ...grpc.CallOption) (*db.Analysis, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode job: %w", err)
	}
	in := &structpb.Struct{}
	if err := in.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("encode job: %w", err)
	}
	out, err := c.Compute(ctx, in, opts...)
	if err != nil {
		return nil, err
	}
	resp, err := out.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	var rec db.Analysis
	if err := json.Unmarshal(resp, &rec); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &rec, nil
}
