package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"dovakin0007.com/editorial-grid/internal/access"
	"dovakin0007.com/editorial-grid/internal/grid"
	"dovakin0007.com/editorial-grid/internal/utils"
)

const (
	ServiceName   = "editorial.grid.v1.GridService"
	HealthService = "editorial-grid-service"
)

type GrpcServer struct {
	Addr         string
	grpcServer   *grpc.Server
	healthServer *health.Server
	logger       *logrus.Entry
}

// GridService is the handler type of the hand registered service; every
// method takes and returns a google.protobuf.Struct.
type GridService interface {
	serve(ctx context.Context, in *structpb.Struct, call gridCall) (*structpb.Struct, error)
}

type gridCall func(h *grid.Handler, ctx context.Context, userID int64, req utils.GridRequest) (any, error)

type gridServiceServer struct {
	handler *grid.Handler
	logger  *logrus.Entry
}

func newGridServiceServer(handler *grid.Handler, logger *logrus.Entry) *gridServiceServer {
	return &gridServiceServer{handler: handler, logger: logger}
}

var gridCalls = map[string]gridCall{
	"ListNotes": func(h *grid.Handler, ctx context.Context, userID int64, req utils.GridRequest) (any, error) {
		return h.ListNotes(ctx, userID, req.Params())
	},
	"FetchNote": func(h *grid.Handler, ctx context.Context, userID int64, req utils.GridRequest) (any, error) {
		return h.FetchNote(ctx, userID, req.Params(), string(req.NoteID))
	},
	"InsertNote": func(h *grid.Handler, ctx context.Context, userID int64, req utils.GridRequest) (any, error) {
		return h.InsertNote(ctx, userID, req.Params(), grid.NoteForm{Title: req.Title, Contents: req.Contents})
	},
	"DeleteNote": func(h *grid.Handler, ctx context.Context, userID int64, req utils.GridRequest) (any, error) {
		return h.DeleteNote(ctx, userID, req.Params(), string(req.NoteID))
	},
	"StageUserOptions": func(h *grid.Handler, ctx context.Context, userID int64, req utils.GridRequest) (any, error) {
		return h.StageUserOptions(ctx, userID, req.Params())
	},
	"ListStageUsers": func(h *grid.Handler, ctx context.Context, userID int64, req utils.GridRequest) (any, error) {
		return h.ListStageUsers(ctx, userID, req.Params(), req.UserIDStrings())
	},
	"FetchStageUser": func(h *grid.Handler, ctx context.Context, userID int64, req utils.GridRequest) (any, error) {
		return h.FetchStageUser(ctx, userID, req.Params(), string(req.RowID), string(req.NewRowID))
	},
}

var gridMethodNames = []string{
	"ListNotes", "FetchNote", "InsertNote", "DeleteNote",
	"StageUserOptions", "ListStageUsers", "FetchStageUser",
}

// GridServiceDesc describes the service to grpc without generated code.
var GridServiceDesc = func() grpc.ServiceDesc {
	desc := grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*GridService)(nil),
		Streams:     []grpc.StreamDesc{},
		Metadata:    "editorial/grid/v1/grid.proto",
	}
	for _, name := range gridMethodNames {
		desc.Methods = append(desc.Methods, grpc.MethodDesc{
			MethodName: name,
			Handler:    methodHandler(name, gridCalls[name]),
		})
	}
	return desc
}()

func methodHandler(name string, call gridCall) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return srv.(GridService).serve(ctx, req.(*structpb.Struct), call)
		}
		if interceptor == nil {
			return handler(ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ServiceName + "/" + name,
		}
		return interceptor(ctx, in, info, handler)
	}
}

func (s *gridServiceServer) serve(ctx context.Context, in *structpb.Struct, call gridCall) (*structpb.Struct, error) {
	userID, err := utils.ActorFromMetadata(ctx)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}
	var req utils.GridRequest
	if err := utils.DecodeStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "malformed request: %v", err)
	}
	result, err := call(s.handler, ctx, userID, req)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	out, err := utils.EncodeStruct(result)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}

func (s *gridServiceServer) toStatus(ctx context.Context, err error) error {
	var authErr *access.AuthorizationError
	switch {
	case errors.As(err, &authErr):
		return status.Errorf(codes.PermissionDenied, "%s: %s", authErr.Operation, authErr.Reason)
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	}
	s.logger.WithContext(ctx).WithError(err).WithField("request_id", RequestID(ctx)).Error("grid request failed")
	return status.Error(codes.Internal, "grid request failed")
}

type requestIDKey struct{}

// RequestID returns the id the logging interceptor assigned to the call.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func loggingInterceptor(logger *logrus.Entry) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		requestID := uuid.NewString()
		ctx = context.WithValue(ctx, requestIDKey{}, requestID)
		start := time.Now()
		resp, err := handler(ctx, req)
		entry := logger.WithContext(ctx).WithFields(logrus.Fields{
			"method":     info.FullMethod,
			"request_id": requestID,
			"duration":   time.Since(start).String(),
			"code":       status.Code(err).String(),
		})
		if err != nil {
			entry.WithError(err).Info("grpc request")
		} else {
			entry.Debug("grpc request")
		}
		return resp, err
	}
}

// NewGrpcServer builds the gRPC transport. Register binds the grid service
// and health checks to any grpc.Server, which lets tests serve over bufconn.
func NewGrpcServer(port int, handler *grid.Handler, logger *logrus.Entry) *GrpcServer {
	logger = logger.WithField("component", "grpc")
	g := &GrpcServer{
		Addr:         fmt.Sprintf(":%d", port),
		grpcServer:   grpc.NewServer(grpc.UnaryInterceptor(loggingInterceptor(logger))),
		healthServer: health.NewServer(),
		logger:       logger,
	}
	Register(g.grpcServer, g.healthServer, handler, logger)
	return g
}

func Register(s *grpc.Server, hs *health.Server, handler *grid.Handler, logger *logrus.Entry) {
	s.RegisterService(&GridServiceDesc, newGridServiceServer(handler, logger))
	grpc_health_v1.RegisterHealthServer(s, hs)
	hs.SetServingStatus(HealthService, grpc_health_v1.HealthCheckResponse_SERVING)
}

func (g *GrpcServer) Run(errs chan<- error) {
	lis, err := net.Listen("tcp", g.Addr)
	if err != nil {
		errs <- errors.Wrapf(err, "grpc listen on %s", g.Addr)
		return
	}
	g.logger.Infof("gRPC server running on %s", g.Addr)
	if err := g.grpcServer.Serve(lis); err != nil {
		g.healthServer.SetServingStatus(HealthService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
		errs <- errors.Wrap(err, "grpc serve")
		return
	}
	errs <- nil
}

func (g *GrpcServer) End(ctx context.Context) error {
	g.logger.Info("stopping gRPC server")
	g.healthServer.Shutdown()
	done := make(chan struct{})
	go func() {
		g.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		g.grpcServer.Stop()
	}
	return nil
}
