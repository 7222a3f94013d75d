package system

import (
	"github.com/KevinKickass/OpenPoolCore/internal/controller"
	"github.com/KevinKickass/OpenPoolCore/internal/procon"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service of the whole process. Each
// controller is reported as ServiceName + "/" + controller name.
const ServiceName = "openpoolcore.v1.PoolService"

func controllerService(name string) string {
	return ServiceName + "/" + name
}

// healthListener mirrors controller reachability into the gRPC health
// server.
type healthListener struct {
	server *health.Server
}

func (h healthListener) SnapshotUpdated(c *controller.Controller, s *procon.Snapshot) {
	h.server.SetServingStatus(controllerService(c.Name), healthpb.HealthCheckResponse_SERVING)
}

func (h healthListener) RefreshFailed(c *controller.Controller, err error) {
	h.server.SetServingStatus(controllerService(c.Name), healthpb.HealthCheckResponse_NOT_SERVING)
}

func (h healthListener) CommandExecuted(c *controller.Controller, ev controller.CommandEvent) {}
