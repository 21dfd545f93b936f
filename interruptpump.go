package main

import (
	"context"
	"fmt"
	"os"
)

// InterruptPump is the single real-time thread servicing every pending
// status bit - ACSI, the GEMDOS tunnel, and the floppy controller - on
// each fabric wakeup before re-arming, mirroring the original firmware's
// single interrupt-driven dispatch loop rather than one goroutine per
// subsystem.
type InterruptPump struct {
	reg       *RegisterWindow
	transport *ACSITransport
	fdc       *FloppyController
	metrics   *Metrics
	verbose   bool
}

func NewInterruptPump(reg *RegisterWindow, transport *ACSITransport, fdc *FloppyController, metrics *Metrics, verbose bool) *InterruptPump {
	return &InterruptPump{reg: reg, transport: transport, fdc: fdc, metrics: metrics, verbose: verbose}
}

func (p *InterruptPump) tracef(format string, args ...interface{}) {
	if p.verbose {
		fmt.Fprintf(os.Stderr, "pump: "+format+"\n", args...)
	}
}

// Run blocks servicing fabric wakeups until ctx is cancelled. Each
// iteration drains the ACSI/GEMDOS transport and any outstanding floppy
// controller events before re-arming the interrupt line, so a single
// wakeup that happens to coincide with multiple pending sources never
// leaves one of them waiting for a second interrupt that isn't coming.
func (p *InterruptPump) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// AwaitInterrupt blocks on the UIO fd (or forever, in offline
		// mode); run it on its own goroutine so cancellation here still
		// works even when the fd side never wakes up on its own.
		done := make(chan error, 1)
		go func() {
			_, err := p.reg.AwaitInterrupt()
			done <- err
		}()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-done:
			if err != nil {
				return fmt.Errorf("interruptpump: await: %w", err)
			}
		}

		p.transport.HandleInterrupt()
		if p.metrics != nil {
			p.metrics.acsiInterrupts.Inc()
		}

		droppedBefore := p.fdc.Dropped()
		p.fdc.Service(p.reg)
		if p.metrics != nil {
			p.metrics.floppyEvents.Inc()
			if d := p.fdc.Dropped() - droppedBefore; d > 0 {
				p.metrics.floppyDropped.Add(float64(d))
			}
		}

		if err := p.reg.Rearm(); err != nil {
			return fmt.Errorf("interruptpump: rearm: %w", err)
		}
	}
}
