// Command gatewayd is the network-facing gateway daemon: it accepts
// one TCP connection per mobile client, speaks the frame/codec/
// messenger/session protocol stack over it, and dispatches application
// requests (board/firmware catalogs, file uploads, flashing, debugger
// sessions) through the router.
//
// This is the Go translation of main.py's ListenerClient/MobileClient
// wiring, minus the OLED menu and GPIO buttons -- those drove a
// physical front panel on the original Raspberry Pi deployment and
// have no equivalent in a headless gateway process.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bgrzesik/programatorus-server/internal/apphandler"
	"github.com/bgrzesik/programatorus-server/internal/codec"
	"github.com/bgrzesik/programatorus-server/internal/fleet"
	"github.com/bgrzesik/programatorus-server/internal/message"
	"github.com/bgrzesik/programatorus-server/internal/middleware"
	"github.com/bgrzesik/programatorus-server/internal/router"
	"github.com/bgrzesik/programatorus-server/internal/session"
	"github.com/bgrzesik/programatorus-server/internal/transport"
)

func buildLogger(level string) *zap.Logger {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	log, err := cfg.Build()
	if err != nil {
		log = zap.NewNop()
	}
	return log
}

func main() {
	cfg := parseConfig(os.Args[1:])
	log := buildLogger(cfg.logLevel)
	defer log.Sync()

	if err := os.MkdirAll(cfg.firmwareDir, 0o755); err != nil {
		log.Fatal("failed to prepare firmware directory", zap.Error(err))
	}

	boards := apphandler.NewBoardCatalog(nil)
	firmware := apphandler.NewFirmwareCatalog()
	fileStore := apphandler.NewFileStore(cfg.firmwareDir, log)
	flashResponder := apphandler.NewFlashResponder(boards, firmware, cfg.openocdPath, cfg.configDir, log)

	var fleetReg fleet.Registry
	if len(cfg.etcdEndpoints) > 0 {
		reg, err := fleet.NewEtcdRegistry(cfg.etcdEndpoints)
		if err != nil {
			log.Warn("failed to connect to etcd, fleet telemetry disabled", zap.Error(err))
		} else {
			fleetReg = reg
		}
	}

	listener := transport.NewTCPListener(cfg.listenAddr, log)
	if err := listener.Listen(); err != nil {
		log.Fatal("failed to listen", zap.Error(err), zap.String("addr", cfg.listenAddr))
	}
	log.Info("gatewayd listening", zap.Stringer("addr", listener.Addr()))

	ctx, cancel := context.WithCancel(context.Background())
	sessions := newSessionTable()

	handler := func(conn net.Conn) {
		acceptOneSession(conn, sessionDeps{
			log:       log,
			boards:    boards,
			firmware:  firmware,
			fileStore: fileStore,
			flash:     flashResponder,
			fleet:     fleetReg,
			gatewayID: cfg.gatewayID,
			gdbPath:   cfg.gdbPath,
			openocd:   cfg.openocdPath,
		}, sessions)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- listener.Serve(ctx, handler) }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil {
			log.Error("listener stopped", zap.Error(err))
		}
	case <-sig:
		log.Info("shutting down")
		cancel()
		<-serveErr
	}

	sessions.closeAll()
}

// sessionDeps bundles the dependencies every accepted connection's
// Session/Router wiring needs, shared across all of them except where
// noted (DebuggerManager is built fresh per session).
type sessionDeps struct {
	log       *zap.Logger
	boards    *apphandler.BoardCatalog
	firmware  *apphandler.FirmwareCatalog
	fileStore *apphandler.FileStore
	flash     *apphandler.FlashResponder
	fleet     fleet.Registry
	gatewayID string
	gdbPath   string
	openocd   string
}

func acceptOneSession(conn net.Conn, deps sessionDeps, sessions *sessionTable) {
	remote := conn.RemoteAddr().String()
	dialer := transport.NewAcceptedConnDialer(conn)

	client := &gatewayClient{log: deps.log, fleet: deps.fleet, gatewayID: deps.gatewayID, remoteAddr: remote}
	sess := session.New("gateway", dialer, codec.Get(codec.TypeJSON), session.RoleServer, client, deps.log)
	client.session = sess

	r := router.New(deps.log,
		middleware.LoggingMiddleware(deps.log),
		middleware.TimeoutMiddleware(10*time.Second),
		middleware.RateLimitMiddleware(50, 100),
	)
	r.Register(deps.boards)
	r.Register(deps.firmware)
	r.Register(apphandler.NewFileUploadStartResponder(deps.fileStore))
	r.Register(apphandler.NewFileUploadPartResponder(deps.fileStore))
	r.Register(apphandler.NewFileUploadFinishResponder(deps.fileStore))
	r.Register(deps.flash)

	debuggers := apphandler.NewDebuggerManager(deps.gdbPath, deps.openocd, sess, deps.log)
	r.Register(debuggers.StartResponder())
	r.Register(debuggers.StopResponder())
	client.router = r

	sessions.add(sess)
	sess.Connect()
}

// gatewayClient implements session.Client: it routes inbound requests
// through the Router on a separate goroutine (so a slow handler, e.g.
// flashing, never blocks the session actor's heartbeat/timeout loop)
// and publishes fleet telemetry once the session is ready. The fleet
// entry is not deregistered when the session is lost.
type gatewayClient struct {
	log        *zap.Logger
	router     *router.Router
	session    *session.Session
	fleet      fleet.Registry
	gatewayID  string
	remoteAddr string
}

func (c *gatewayClient) OnRequest(env *message.Envelope) {
	go func() {
		resp, err := c.router.Route(context.Background(), env)
		if !env.IsRequest() {
			if err != nil {
				c.log.Warn("notification handling failed", zap.Error(err), zap.String("tag", env.Payload.Tag()))
			}
			return
		}
		if err != nil {
			c.session.Respond(*env.RequestID, &message.Error{Code: "internal", Message: err.Error()})
			return
		}
		c.session.Respond(*env.RequestID, resp)
	}()
}

func (c *gatewayClient) OnSessionReady(sessionID uint64) {
	c.log.Info("session ready", zap.Uint64("session_id", sessionID), zap.String("remote", c.remoteAddr))
	if c.fleet == nil {
		return
	}
	info := fleet.SessionInfo{SessionID: strconv.FormatUint(sessionID, 10), RemoteAddr: c.remoteAddr, ConnectedAt: time.Now()}
	if err := c.fleet.Register(c.gatewayID, info, 30); err != nil {
		c.log.Warn("fleet registration failed", zap.Error(err))
	}
}

func (c *gatewayClient) OnSessionLost(err error) {
	c.log.Info("session lost", zap.Error(err), zap.String("remote", c.remoteAddr))
}

// sessionTable tracks every live Session so main can close them all on
// shutdown instead of abandoning their goroutines.
type sessionTable struct {
	sessions chan *session.Session
}

func newSessionTable() *sessionTable {
	return &sessionTable{sessions: make(chan *session.Session, 4096)}
}

func (t *sessionTable) add(s *session.Session) {
	select {
	case t.sessions <- s:
	default:
	}
}

func (t *sessionTable) closeAll() {
	for {
		select {
		case s := <-t.sessions:
			s.Close()
		default:
			return
		}
	}
}
