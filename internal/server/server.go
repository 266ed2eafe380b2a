package server

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"dovakin0007.com/editorial-grid/internal/config"
	"dovakin0007.com/editorial-grid/internal/grid"
)

// Server is a long running component. Run blocks until the component stops
// and reports a failure on errs; End asks it to stop.
type Server interface {
	Run(errs chan<- error)
	End(ctx context.Context) error
}

const shutdownTimeout = 10 * time.Second

// CreateAndStartServer runs the gRPC and HTTP transports, and the Consul
// registration when enabled, until ctx is done or one of them fails.
func CreateAndStartServer(ctx context.Context, cfg *config.Configuration, handler *grid.Handler) error {
	logger := logrus.NewEntry(cfg.Logger())

	servers := []Server{
		NewGrpcServer(cfg.GrpcPort, handler, logger),
		NewHTTPServer(cfg.HTTPPort, handler, logger),
	}
	if cfg.Consul.Enabled {
		reg, err := NewRegisterServer(cfg.Consul, cfg.GrpcPort, logger)
		if err != nil {
			return err
		}
		servers = append(servers, reg)
	}

	errs := make(chan error, len(servers))
	for _, s := range servers {
		go s.Run(errs)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errs:
		runErr = err
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for i := len(servers) - 1; i >= 0; i-- {
		if err := servers[i].End(stopCtx); err != nil {
			logger.WithError(err).Warn("shutdown step failed")
		}
	}
	if runErr != nil {
		return errors.Wrap(runErr, "server stopped")
	}
	return nil
}
