package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
	"syscall"

	"github.com/davecgh/go-spew/spew"
	"golang.org/x/term"
)

// DebugConsole reads raw stdin and dispatches operator commands against
// the running transport/engine.
type DebugConsole struct {
	transport *ACSITransport
	floppy    *FloppyEngine

	stopCh  chan struct{}
	done    chan struct{}
	stopped sync.Once

	fd           int
	oldTermState *term.State
}

func NewDebugConsole(transport *ACSITransport, floppy *FloppyEngine) *DebugConsole {
	return &DebugConsole{
		transport: transport,
		floppy:    floppy,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start puts stdin into raw mode and begins reading commands line by
// line in a goroutine. Call Stop to restore stdin.
func (c *DebugConsole) Start() {
	c.fd = int(os.Stdin.Fd())

	oldState, err := term.MakeRaw(c.fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "debugconsole: failed to set raw mode: %v\n", err)
		close(c.done)
		return
	}
	c.oldTermState = oldState

	go func() {
		defer close(c.done)
		reader := bufio.NewReader(os.Stdin)
		var line strings.Builder
		for {
			select {
			case <-c.stopCh:
				return
			default:
			}
			b, err := reader.ReadByte()
			if err == syscall.EAGAIN {
				continue
			}
			if err != nil {
				return
			}
			switch b {
			case '\r', '\n':
				c.runCommand(line.String())
				line.Reset()
			case 0x7f, 0x08:
				s := line.String()
				if len(s) > 0 {
					line.Reset()
					line.WriteString(s[:len(s)-1])
				}
			default:
				line.WriteByte(b)
			}
		}
	}()
}

func (c *DebugConsole) Stop() {
	c.stopped.Do(func() {
		close(c.stopCh)
	})
	<-c.done
	if c.oldTermState != nil {
		_ = term.Restore(c.fd, c.oldTermState)
		c.oldTermState = nil
	}
}

func (c *DebugConsole) runCommand(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	switch fields[0] {
	case "status":
		for i := range c.transport.devices {
			fmt.Printf("\r\nslot %d: mounted=%v\n", i, c.transport.devices[i].Mounted())
		}
	case "mount":
		if len(fields) < 3 {
			fmt.Print("\r\nusage: mount <slot> <path>\n")
			return
		}
		var slot int
		fmt.Sscanf(fields[1], "%d", &slot)
		if err := c.transport.MountImage(slot, fields[2]); err != nil {
			fmt.Printf("\r\nmount failed: %v\n", err)
		}
	case "eject":
		if len(fields) < 2 {
			fmt.Print("\r\nusage: eject <slot>\n")
			return
		}
		var slot int
		fmt.Sscanf(fields[1], "%d", &slot)
		if err := c.transport.MountImage(slot, ""); err != nil {
			fmt.Printf("\r\neject failed: %v\n", err)
		}
	case "floppy":
		if len(fields) < 3 {
			fmt.Print("\r\nusage: floppy <drive> <path>\n")
			return
		}
		var drv int
		fmt.Sscanf(fields[1], "%d", &drv)
		if err := c.floppy.Insert(drv, fields[2], false); err != nil {
			fmt.Printf("\r\nfloppy insert failed: %v\n", err)
		}
	case "dump":
		if len(fields) < 2 {
			fmt.Print("\r\nusage: dump <slot>\n")
			return
		}
		var slot int
		fmt.Sscanf(fields[1], "%d", &slot)
		if slot < 0 || slot >= len(c.transport.devices) {
			fmt.Printf("\r\ndump: slot %d out of range\n", slot)
			return
		}
		spew.Dump(c.transport.devices[slot])
	case "help":
		fmt.Print("\r\ncommands: status, mount <slot> <path>, eject <slot>, floppy <drive> <path>, dump <slot>\n")
	default:
		fmt.Printf("\r\nunknown command %q\n", fields[0])
	}
}
