package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes operational counters for the ACSI/GEMDOS/floppy stack
// over a standard Prometheus scrape endpoint.
type Metrics struct {
	acsiInterrupts prometheus.Counter
	acsiCommands   *prometheus.CounterVec
	dmaChunks      *prometheus.CounterVec
	gemdosCalls    *prometheus.CounterVec
	floppyEvents   prometheus.Counter
	floppyDropped  prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		acsiInterrupts: factory.NewCounter(prometheus.CounterOpts{
			Name: "zest_acsi_interrupts_total",
			Help: "Fabric interrupts serviced by the ACSI/GEMDOS/floppy pump.",
		}),
		acsiCommands: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "zest_acsi_commands_total",
			Help: "ACSI commands handled, by opcode.",
		}, []string{"opcode"}),
		dmaChunks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "zest_dma_chunks_total",
			Help: "DMA chunks transferred, by direction.",
		}, []string{"direction"}),
		gemdosCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "zest_gemdos_calls_total",
			Help: "GEMDOS calls tunneled through the redirector, by opcode.",
		}, []string{"opcode"}),
		floppyEvents: factory.NewCounter(prometheus.CounterOpts{
			Name: "zest_floppy_events_total",
			Help: "Floppy controller status events posted to the pump.",
		}),
		floppyDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "zest_floppy_events_dropped_total",
			Help: "Read-active floppy controller cycles that found no mounted image to stage from.",
		}),
	}
}

// Serve starts a blocking HTTP server exposing /metrics on addr.
func Serve(addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return http.ListenAndServe(addr, mux)
}
