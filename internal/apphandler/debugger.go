package apphandler

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"go.uber.org/zap"

	"github.com/bgrzesik/programatorus-server/internal/message"
)

// Notifier sends a one-way envelope to whichever peer owns this
// debugger session -- Session.Notify satisfies it without apphandler
// needing to import the session package.
type Notifier interface {
	Notify(payload message.Payload)
}

// debuggerProc owns one running gdb-multiarch/openocd pair, grounded
// on the original Debugger actor: there a select.poll loop watched
// both pipes on a background thread, here one goroutine per pipe
// scans lines and forwards them, which is the idiomatic Go
// equivalent.
type debuggerProc struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	wg    sync.WaitGroup
}

// DebuggerManager runs at most one debug session at a time for the
// Session it is attached to -- the original kept a map keyed by
// session id because one service instance multiplexed many client
// sessions; here each gateway Session gets its own DebuggerManager, so
// there is only ever one debugger to track.
type DebuggerManager struct {
	gdbPath     string
	openocdPath string
	notifier    Notifier
	log         *zap.Logger

	mu      sync.Mutex
	proc    *debuggerProc
	ordinal int
}

func NewDebuggerManager(gdbPath, openocdPath string, notifier Notifier, log *zap.Logger) *DebuggerManager {
	if log == nil {
		log = zap.NewNop()
	}
	if gdbPath == "" {
		gdbPath = "gdb-multiarch"
	}
	if openocdPath == "" {
		openocdPath = "openocd"
	}
	return &DebuggerManager{gdbPath: gdbPath, openocdPath: openocdPath, notifier: notifier, log: log.Named("debugger")}
}

// StartResponder returns TagDebuggerStart's Responder.
func (m *DebuggerManager) StartResponder() debuggerStartResponder {
	return debuggerStartResponder{m: m}
}

// StopResponder returns TagDebuggerStop's Responder.
func (m *DebuggerManager) StopResponder() debuggerStopResponder {
	return debuggerStopResponder{m: m}
}

func (m *DebuggerManager) start(ctx context.Context, req *message.DebuggerStart) (*message.DebuggerStarted, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.proc != nil {
		return nil, fmt.Errorf("apphandler: a debugger session is already running")
	}

	target := fmt.Sprintf("target extended-remote | %s -c 'gdb_port pipe' -f interface/raspberrypi-swd.cfg -f target/%s.cfg", m.openocdPath, req.BoardID)
	cmd := exec.Command(m.gdbPath, "-ex", target, "-batch")

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("apphandler: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("apphandler: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("apphandler: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("apphandler: starting debugger: %w", err)
	}

	proc := &debuggerProc{cmd: cmd, stdin: stdin}
	proc.wg.Add(2)
	go m.pump(proc, stdout)
	go m.pump(proc, stderr)

	m.proc = proc
	return &message.DebuggerStarted{Port: 0}, nil
}

func (m *DebuggerManager) pump(proc *debuggerProc, r io.Reader) {
	defer proc.wg.Done()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		m.mu.Lock()
		active := m.proc == proc
		if active {
			m.ordinal++
		}
		m.mu.Unlock()
		if !active {
			return
		}
		m.notifier.Notify(&message.DebuggerLine{Line: scanner.Text()})
	}
}

func (m *DebuggerManager) sendLine(line string) error {
	m.mu.Lock()
	proc := m.proc
	m.mu.Unlock()
	if proc == nil {
		return fmt.Errorf("apphandler: no debugger session running")
	}
	_, err := io.WriteString(proc.stdin, line)
	return err
}

func (m *DebuggerManager) stop(ctx context.Context) (*message.Ok, error) {
	m.mu.Lock()
	proc := m.proc
	m.proc = nil
	m.mu.Unlock()

	if proc == nil {
		return nil, fmt.Errorf("apphandler: no debugger session running")
	}

	io.WriteString(proc.stdin, "set confirm off\nexit\n")
	proc.stdin.Close()
	if err := proc.cmd.Process.Kill(); err != nil {
		m.log.Warn("failed to kill debugger process", zap.Error(err))
	}
	proc.wg.Wait()
	return &message.Ok{}, nil
}

type debuggerStartResponder struct{ m *DebuggerManager }

func (debuggerStartResponder) RequestTag() string { return message.TagDebuggerStart }

func (r debuggerStartResponder) UnpackRequest(req message.Payload) (any, error) {
	start, ok := req.(*message.DebuggerStart)
	if !ok {
		return nil, fmt.Errorf("apphandler: expected DebuggerStart, got %T", req)
	}
	return start, nil
}

func (r debuggerStartResponder) OnRequest(ctx context.Context, req any) (any, error) {
	return r.m.start(ctx, req.(*message.DebuggerStart))
}

func (r debuggerStartResponder) PrepareResponse(resp any) message.Payload {
	return resp.(*message.DebuggerStarted)
}

type debuggerStopResponder struct{ m *DebuggerManager }

func (debuggerStopResponder) RequestTag() string { return message.TagDebuggerStop }

func (r debuggerStopResponder) UnpackRequest(req message.Payload) (any, error) {
	stop, ok := req.(*message.DebuggerStop)
	if !ok {
		return nil, fmt.Errorf("apphandler: expected DebuggerStop, got %T", req)
	}
	return stop, nil
}

func (r debuggerStopResponder) OnRequest(ctx context.Context, req any) (any, error) {
	return r.m.stop(ctx)
}

func (r debuggerStopResponder) PrepareResponse(resp any) message.Payload {
	return resp.(*message.Ok)
}

// SendLine writes line verbatim to the running debugger's stdin, or
// returns an error if no debugger session is running. No Responder in
// this package calls it, so an inbound DebuggerLine does not reach it
// through the router.
func (m *DebuggerManager) SendLine(line string) error { return m.sendLine(line) }
