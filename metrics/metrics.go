package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/lunfardo314/dagcore/global"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const DefaultPort = 14000

type Environment interface {
	global.NodeGlobal
}

// Start exposes the registry of the environment on /metrics. The server is shut down with the environment context
func Start(env Environment, port int) {
	if port == 0 {
		env.Log().Warnf("metrics port not specified. Will use %d for Prometheus metrics exposure", DefaultPort)
		port = DefaultPort
	}
	env.MetricsRegistry().MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		env.MetricsRegistry(),
		promhttp.HandlerOpts{
			Registry: env.MetricsRegistry(),
		},
	))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			env.Log().Errorf("metrics server: %v", err)
		}
	}()
	go func() {
		<-env.Ctx().Done()
		_ = srv.Close()
	}()
	env.Log().Infof("Prometheus metrics exposed on port %d", port)
}
