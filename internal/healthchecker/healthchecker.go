package healthchecker

import (
	"context"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// Probe reports whether the service is able to serve requests. A non-nil error
// marks the service as not serving.
type Probe func(ctx context.Context) error

// HealthChecker implements the gRPC Health Checking Protocol.
//
// The health of the service is determined by running the Probe the
// HealthChecker was created with. A HealthChecker without a Probe always
// reports SERVING.
//
// For more information about the gRPC Health Checking Protocol see:
// https://github.com/grpc/grpc/blob/master/doc/health-checking.md
type HealthChecker struct {
	grpc_health_v1.UnimplementedHealthServer

	service string
	probe   Probe
}

// NewHealthChecker returns a HealthChecker answering for the named service as
// well as for the server as a whole (the empty service name).
func NewHealthChecker(service string, probe Probe) *HealthChecker {
	return &HealthChecker{service: service, probe: probe}
}

// Check returns the service's current health status.
func (s *HealthChecker) Check(ctx context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {

	if name := req.GetService(); name != "" && name != s.service {
		return nil, status.Errorf(codes.NotFound, "unknown service '%s'", name)
	}

	return &grpc_health_v1.HealthCheckResponse{
		Status: s.status(ctx),
	}, nil
}

// Watch sends the service's current health status and then holds the stream
// open until the client goes away.
func (s *HealthChecker) Watch(req *grpc_health_v1.HealthCheckRequest, srv grpc_health_v1.Health_WatchServer) error {

	ctx := srv.Context()

	resp := &grpc_health_v1.HealthCheckResponse{
		Status: grpc_health_v1.HealthCheckResponse_SERVICE_UNKNOWN,
	}
	if name := req.GetService(); name == "" || name == s.service {
		resp.Status = s.status(ctx)
	}

	if err := srv.Send(resp); err != nil {
		return err
	}

	<-ctx.Done()

	return status.Error(codes.Canceled, ctx.Err().Error())
}

func (s *HealthChecker) status(ctx context.Context) grpc_health_v1.HealthCheckResponse_ServingStatus {

	if s.probe == nil {
		return grpc_health_v1.HealthCheckResponse_SERVING
	}

	if err := s.probe(ctx); err != nil {
		log.WithField("service", s.service).Warnf("Health probe failed: %v", err)
		return grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}

	return grpc_health_v1.HealthCheckResponse_SERVING
}

// Always verify that we implement the interface
var _ grpc_health_v1.HealthServer = &HealthChecker{}
