package server

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	capi "github.com/hashicorp/consul/api"
	"github.com/sirupsen/logrus"

	"dovakin0007.com/editorial-grid/internal/config"
)

// RegisterServer announces the gRPC endpoint to Consul with a gRPC health
// check and withdraws it on shutdown.
type RegisterServer struct {
	ServiceID   string
	ServiceName string
	Addr        string
	Port        int
	client      *capi.Client
	logger      *logrus.Entry
}

func NewRegisterServer(opts config.ConsulOptions, grpcPort int, logger *logrus.Entry) (*RegisterServer, error) {
	cfg := capi.DefaultConfig()
	if opts.Address != "" {
		cfg.Address = opts.Address
	}
	client, err := capi.NewClient(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create consul client")
	}
	return &RegisterServer{
		ServiceID:   opts.ServiceID,
		ServiceName: opts.ServiceName,
		Addr:        opts.ServiceHost,
		Port:        grpcPort,
		client:      client,
		logger:      logger.WithField("component", "consul"),
	}, nil
}

func (r *RegisterServer) Registration() *capi.AgentServiceRegistration {
	return &capi.AgentServiceRegistration{
		ID:      r.ServiceID,
		Name:    r.ServiceName,
		Address: r.Addr,
		Port:    r.Port,
		Tags:    []string{"grpc", ServiceName},
		Check: &capi.AgentServiceCheck{
			GRPC:                           fmt.Sprintf("%s:%d/%s", r.Addr, r.Port, HealthService),
			Interval:                       "10s",
			Timeout:                        "1s",
			DeregisterCriticalServiceAfter: "1m",
		},
	}
}

// Run registers once; the registration lives until End or the critical
// check timeout.
func (r *RegisterServer) Run(errs chan<- error) {
	if err := r.client.Agent().ServiceRegister(r.Registration()); err != nil {
		errs <- errors.Wrap(err, "failed to register service")
		return
	}
	r.logger.Infof("registered %s in Consul", r.ServiceID)
}

func (r *RegisterServer) End(context.Context) error {
	if err := r.client.Agent().ServiceDeregister(r.ServiceID); err != nil {
		r.logger.WithError(err).Warn("failed to deregister")
		return err
	}
	r.logger.Infof("deregistered %s from Consul", r.ServiceID)
	return nil
}
