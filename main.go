package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"
)

// cliContext is the context struct required by kong's command line parser.
type cliContext struct{}

type runCmd struct {
	UIOPath     string   `flag:"" optional:"" name:"uio" help:"UIO device exposing the fabric register window; empty runs in offline/simulation mode"`
	GEMDOSRoot  string   `flag:"" optional:"" name:"gemdos-root" default:"." help:"Host directory redirected as the logical GEMDOS drive"`
	Timezone    int      `flag:"" optional:"" name:"timezone" help:"UTC offset in hours applied to GEMDOS file timestamps"`
	ACSIImage   []string `flag:"" optional:"" name:"acsi" help:"ACSI slot image, repeatable as slot=path, e.g. 0=disk.img"`
	FloppyA     string   `flag:"" optional:"" name:"floppy-a" help:"Image file for floppy drive A:"`
	FloppyB     string   `flag:"" optional:"" name:"floppy-b" help:"Image file for floppy drive B:"`
	MetricsAddr string   `flag:"" optional:"" name:"metrics-addr" default:":9110" help:"Address to serve Prometheus metrics on"`
	Console     bool     `flag:"" optional:"" name:"console" help:"Start the interactive debug console on stdin"`
	Verbose     bool     `flag:"" optional:"" short:"v" help:"Enable verbose protocol tracing"`
}

type versionCmd struct{}

func (v *versionCmd) Run(ctx *cliContext) error {
	printFeatures()
	return nil
}

// cli is the main command line interface struct required by kong.
var cli struct {
	Run     runCmd     `cmd:"" default:"1" help:"Run the ACSI/GEMDOS/floppy host"`
	Version versionCmd `cmd:"" help:"Print version and compiled features"`
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("zesthost"),
		kong.Description("Host-side ACSI, GEMDOS redirector and floppy emulation for the zeST fabric."),
		kong.UsageOnError())
	err := kctx.Run(&cliContext{})
	kctx.FatalIfErrorf(err)
}

// Run wires every subsystem together and blocks until SIGINT/SIGTERM, a
// cold_reset or warm_reset request on the control socket, or an error from
// the interrupt pump. The control socket's "exit" command stops only the
// socket; it does not end Run.
func (r *runCmd) Run(cctx *cliContext) error {
	cfg := DefaultConfig()
	cfg.GEMDOSRoot = r.GEMDOSRoot
	cfg.Timezone = r.Timezone
	cfg.Verbose = r.Verbose
	if r.FloppyA != "" {
		cfg.FloppyA = r.FloppyA
		cfg.FloppyAEnabled = true
	}
	if r.FloppyB != "" {
		cfg.FloppyB = r.FloppyB
		cfg.FloppyBEnabled = true
	}
	for _, spec := range r.ACSIImage {
		slot, path, err := parseSlotSpec(spec)
		if err != nil {
			return err
		}
		cfg.ACSIImage[slot] = path
	}

	reg, err := OpenRegisterWindow(r.UIOPath)
	if err != nil {
		return fmt.Errorf("main: %w", err)
	}
	defer reg.Close()

	reg1 := prometheus.NewRegistry()
	metrics := NewMetrics(reg1)
	go func() {
		if err := Serve(r.MetricsAddr, reg1); err != nil {
			fmt.Fprintf(os.Stderr, "main: metrics server: %v\n", err)
		}
	}()

	fs := NewGemdosFS(cfg.GEMDOSRoot, cfg.Timezone, cfg.Verbose)
	gemdos := NewGemdosRedirector(nil, fs, gemdosBootImage(), cfg.Verbose)
	gemdos.metrics = metrics
	transport := NewACSITransport(reg, cfg.Verbose)
	transport.metrics = metrics
	transport.gemdos = gemdos
	gemdos.transport = transport
	gemdos.Start()
	defer gemdos.Stop()

	for slot, path := range cfg.ACSIImage {
		if path == "" {
			continue
		}
		if err := transport.MountImage(slot, path); err != nil {
			return fmt.Errorf("main: mount slot %d: %w", slot, err)
		}
	}

	floppy := NewFloppyEngine(cfg.Verbose, cfg.FloppySkew, cfg.FloppyInterleave)
	if cfg.FloppyAEnabled {
		if err := floppy.Insert(0, cfg.FloppyA, cfg.FloppyAWriteProtect); err != nil {
			return fmt.Errorf("main: insert floppy A: %w", err)
		}
	}
	if cfg.FloppyBEnabled {
		if err := floppy.Insert(1, cfg.FloppyB, cfg.FloppyBWriteProtect); err != nil {
			return fmt.Errorf("main: insert floppy B: %w", err)
		}
	}
	defer floppy.FlushAll()

	fdc := NewFloppyController(floppy, cfg.Verbose)

	pump := NewInterruptPump(reg, transport, fdc, metrics, cfg.Verbose)

	resetRequested := make(chan bool, 1)
	onReset := func(warm bool) {
		select {
		case resetRequested <- warm:
		default:
		}
	}

	ctrl, err := NewControlSocket(transport, floppy, onReset)
	if err != nil {
		return fmt.Errorf("main: %w", err)
	}
	ctrl.Start()
	defer ctrl.Stop()

	var console *DebugConsole
	if r.Console {
		console = NewDebugConsole(transport, floppy)
		console.Start()
		defer console.Stop()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pumpErr := make(chan error, 1)
	go func() { pumpErr <- pump.Run(runCtx) }()

	select {
	case <-sigCh:
		cancel()
	case <-resetRequested:
		cancel()
	case err := <-pumpErr:
		return err
	}
	return nil
}

func parseSlotSpec(spec string) (int, string, error) {
	for i, c := range spec {
		if c == '=' {
			var slot int
			if _, err := fmt.Sscanf(spec[:i], "%d", &slot); err != nil {
				return 0, "", fmt.Errorf("main: invalid ACSI slot spec %q", spec)
			}
			if slot < 0 || slot > 7 {
				return 0, "", fmt.Errorf("main: ACSI slot %d out of range", slot)
			}
			return slot, spec[i+1:], nil
		}
	}
	return 0, "", fmt.Errorf("main: ACSI slot spec must be slot=path, got %q", spec)
}

// gemdosBootImage returns the bootstrap payload served for ACSI read
// command 8 against the logical GEMDOS slot. The actual bootstrap
// assembly is supplied by build tooling outside this repository's
// scope; this host ships a correctly sized, inert placeholder so the
// protocol handshake itself can be exercised end to end.
func gemdosBootImage() []byte {
	return make([]byte, 4*512)
}
