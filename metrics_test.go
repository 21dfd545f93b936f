package main

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewMetricsRegistersAllCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.acsiInterrupts.Inc()
	m.acsiCommands.WithLabelValues("0x08").Inc()
	m.dmaChunks.WithLabelValues("read").Inc()
	m.gemdosCalls.WithLabelValues("0x3f").Inc()
	m.floppyEvents.Inc()
	m.floppyDropped.Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	want := []string{
		"zest_acsi_interrupts_total",
		"zest_acsi_commands_total",
		"zest_dma_chunks_total",
		"zest_gemdos_calls_total",
		"zest_floppy_events_total",
		"zest_floppy_events_dropped_total",
	}
	for _, name := range want {
		if !names[name] {
			t.Errorf("metric %s was not registered", name)
		}
	}
}

func TestMetricsCounterValue(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.acsiInterrupts.Inc()
	m.acsiInterrupts.Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	var got float64
	for _, f := range families {
		if f.GetName() == "zest_acsi_interrupts_total" {
			metrics := f.GetMetric()
			if len(metrics) != 1 {
				t.Fatalf("expected exactly one metric series, got %d", len(metrics))
			}
			got = metrics[0].GetCounter().GetValue()
		}
	}
	if got != 2 {
		t.Errorf("acsiInterrupts counter = %v, want 2", got)
	}
}
