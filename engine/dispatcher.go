package engine

import (
	"context"

	"github.com/solbot/core/log"
)

// Dispatcher is the single goroutine per cluster that drains
// ClusterRuntime.Notifications() and hands each one to Router.Route,
// preserving the per-cluster, single-consumer ordering that Session's
// epoch-based cancellation scheme depends on.
type Dispatcher struct {
	cluster *ClusterRuntime
	router  *Router
	logger  log.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewDispatcher(cluster *ClusterRuntime, router *Router) *Dispatcher {
	return &Dispatcher{
		cluster: cluster,
		router:  router,
		logger:  log.NewModuleLogger(log.ClusterStream).With("cluster", string(cluster.cluster), "component", "dispatcher"),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	go d.run(ctx)
}

func (d *Dispatcher) Stop() {
	close(d.stopCh)
	<-d.doneCh
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case notif := <-d.cluster.Notifications():
			d.router.Route(ctx, d.cluster, notif)
		}
	}
}
