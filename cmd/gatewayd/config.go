package main

import (
	"flag"
	"os"
	"strings"
)

// config holds every flag/env-tunable knob the gateway daemon needs.
// It is assembled from flag.Parse() plus a handful of env var
// fallbacks, the same two-source approach main.py used (command-line
// switches plus hardcoded defaults) -- no example repo in the corpus
// pulls in a richer config/flags library (e.g. viper, cobra) for a
// single-binary daemon this small, so this stays on the standard
// library rather than inventing a dependency with nothing to ground
// it on.
type config struct {
	listenAddr string
	logLevel   string

	etcdEndpoints []string
	gatewayID     string

	openocdPath string
	gdbPath     string
	configDir   string
	firmwareDir string
}

func parseConfig(args []string) *config {
	fs := flag.NewFlagSet("gatewayd", flag.ExitOnError)

	listenAddr := fs.String("listen", envOr("GATEWAYD_LISTEN", ":7777"), "TCP address to accept mobile-client connections on")
	logLevel := fs.String("log-level", envOr("GATEWAYD_LOG_LEVEL", "info"), "zap log level: debug, info, warn, error")
	etcdEndpoints := fs.String("etcd-endpoints", envOr("GATEWAYD_ETCD_ENDPOINTS", ""), "comma-separated etcd endpoints for fleet telemetry; empty disables it")
	gatewayID := fs.String("gateway-id", envOr("GATEWAYD_GATEWAY_ID", "gateway-1"), "identifier this gateway publishes its sessions under")
	openocdPath := fs.String("openocd", envOr("GATEWAYD_OPENOCD", "openocd"), "path to the openocd binary")
	gdbPath := fs.String("gdb", envOr("GATEWAYD_GDB", "gdb-multiarch"), "path to the gdb-multiarch binary")
	configDir := fs.String("openocd-config-dir", envOr("GATEWAYD_OPENOCD_CONFIG_DIR", "/etc/gatewayd/openocd"), "directory containing openocd interface/target config files")
	firmwareDir := fs.String("firmware-dir", envOr("GATEWAYD_FIRMWARE_DIR", "/var/lib/gatewayd/firmware"), "directory uploaded firmware images are written to")

	fs.Parse(args)

	var endpoints []string
	if *etcdEndpoints != "" {
		endpoints = strings.Split(*etcdEndpoints, ",")
	}

	return &config{
		listenAddr:    *listenAddr,
		logLevel:      *logLevel,
		etcdEndpoints: endpoints,
		gatewayID:     *gatewayID,
		openocdPath:   *openocdPath,
		gdbPath:       *gdbPath,
		configDir:     *configDir,
		firmwareDir:   *firmwareDir,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
