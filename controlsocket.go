package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
)

const controlMaxRequestSize = 4096

type controlRequest struct {
	Cmd   string `json:"cmd"`
	Slot  int    `json:"slot,omitempty"`
	Drive int    `json:"drive,omitempty"`
	Path  string `json:"path,omitempty"`
}

type controlResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ControlSocket implements the operator-facing Unix socket interface:
// init/exit/change_image/change_floppy/cold_reset/warm_reset. Grounded on
// runtime_ipc.go's stale-socket-cleanup single-instance listener,
// generalized from a single "open a file" command to the full reset/
// media-change vocabulary this host needs.
type ControlSocket struct {
	listener  net.Listener
	transport *ACSITransport
	floppy    *FloppyEngine
	onReset   func(warm bool)
	done      chan struct{}
	sockPath  string
	conns     errgroup.Group
}

func resolveControlSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "zest-host.sock")
	}
	return "/tmp/zest-host.sock"
}

// NewControlSocket binds the default control socket path, removing a
// stale one left behind by a crashed previous instance.
func NewControlSocket(transport *ACSITransport, floppy *FloppyEngine, onReset func(warm bool)) (*ControlSocket, error) {
	return newControlSocketAt(resolveControlSocketPath(), transport, floppy, onReset)
}

func newControlSocketAt(sockPath string, transport *ACSITransport, floppy *FloppyEngine, onReset func(warm bool)) (*ControlSocket, error) {
	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		conn, dialErr := net.DialTimeout("unix", sockPath, 2*time.Second)
		if dialErr != nil {
			os.Remove(sockPath)
			ln, err = net.Listen("unix", sockPath)
			if err != nil {
				return nil, fmt.Errorf("controlsocket: bind failed: %w", err)
			}
		} else {
			conn.Close()
			return nil, fmt.Errorf("controlsocket: another instance is already running")
		}
	}
	return &ControlSocket{
		listener:  ln,
		transport: transport,
		floppy:    floppy,
		onReset:   onReset,
		done:      make(chan struct{}),
		sockPath:  sockPath,
	}, nil
}

func (s *ControlSocket) Start() { go s.acceptLoop() }

func (s *ControlSocket) Stop() {
	s.listener.Close()
	<-s.done
	s.conns.Wait()
	os.Remove(s.sockPath)
}

func (s *ControlSocket) acceptLoop() {
	defer close(s.done)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.conns.Go(func() error {
			s.handleConn(conn)
			return nil
		})
	}
}

func (s *ControlSocket) handleConn(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	buf := make([]byte, controlMaxRequestSize)
	n, err := conn.Read(buf)
	if err != nil || n == 0 {
		return
	}

	var req controlRequest
	if err := json.Unmarshal(buf[:n], &req); err != nil {
		s.reply(conn, controlResponse{Status: "err", Message: "invalid json"})
		return
	}

	switch req.Cmd {
	case "init":
		s.reply(conn, controlResponse{Status: "ok"})
	case "exit":
		s.reply(conn, controlResponse{Status: "ok"})
		go s.Stop()
	case "change_image":
		if err := s.transport.MountImage(req.Slot, req.Path); err != nil {
			s.reply(conn, controlResponse{Status: "err", Message: err.Error()})
			return
		}
		s.reply(conn, controlResponse{Status: "ok"})
	case "change_floppy":
		if err := s.floppy.Insert(req.Drive, req.Path, false); err != nil {
			s.reply(conn, controlResponse{Status: "err", Message: err.Error()})
			return
		}
		s.reply(conn, controlResponse{Status: "ok"})
	case "cold_reset":
		if s.onReset != nil {
			s.onReset(false)
		}
		s.reply(conn, controlResponse{Status: "ok"})
	case "warm_reset":
		if s.onReset != nil {
			s.onReset(true)
		}
		s.reply(conn, controlResponse{Status: "ok"})
	default:
		s.reply(conn, controlResponse{Status: "err", Message: "unknown command"})
	}
}

func (s *ControlSocket) reply(conn net.Conn, resp controlResponse) {
	data, _ := json.Marshal(resp)
	conn.Write(data)
}

// SendControlCommand is a client-side helper that sends one request to a
// running instance's control socket and returns its reply. The CLI in
// main.go has only the run and version commands and does not call it.
func SendControlCommand(req controlRequest) (controlResponse, error) {
	conn, err := net.DialTimeout("unix", resolveControlSocketPath(), 10*time.Second)
	if err != nil {
		return controlResponse{}, fmt.Errorf("controlsocket: connect: %w", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	data, _ := json.Marshal(req)
	if _, err := conn.Write(data); err != nil {
		return controlResponse{}, fmt.Errorf("controlsocket: send: %w", err)
	}
	buf := make([]byte, controlMaxRequestSize)
	n, err := conn.Read(buf)
	if err != nil {
		return controlResponse{}, fmt.Errorf("controlsocket: read: %w", err)
	}
	var resp controlResponse
	if err := json.Unmarshal(buf[:n], &resp); err != nil {
		return controlResponse{}, fmt.Errorf("controlsocket: invalid response: %w", err)
	}
	return resp, nil
}
