package observability

import (
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"

	"github.com/disputekit/disputekit/internal/appid"
)

var (
	// CLILogger is used by CLI commands.
	CLILogger *logging.Logger

	// ServerLogger is used by the HTTP server and batch workers.
	ServerLogger *logging.Logger
)

// InitCLILogger initializes the CLI logger. Verbose lowers the level to DEBUG.
func InitCLILogger(verbose bool) {
	logger, err := logging.NewCLI(appid.BinaryName)
	if err != nil {
		exitWithCodeStderr(foundry.ExitConfigInvalid, "Failed to initialize CLI logger", err)
	}
	if verbose {
		logger.SetLevel(logging.DEBUG)
	}
	CLILogger = logger
}

// InitServerLogger initializes the server logger from the configured level
// and profile. SIMPLE writes console lines; anything else writes JSON with
// request correlation.
func InitServerLogger(level, profile string) {
	logger, err := logging.New(serverLoggerConfig(level, profile))
	if err != nil {
		exitWithCodeStderr(foundry.ExitConfigInvalid, "Failed to initialize server logger", err)
	}
	ServerLogger = logger
}

// SetServerLevel changes the server logger level in place.
func SetServerLevel(level string) {
	if ServerLogger == nil {
		return
	}
	switch parseLogLevel(level) {
	case "TRACE":
		ServerLogger.SetLevel(logging.TRACE)
	case "DEBUG":
		ServerLogger.SetLevel(logging.DEBUG)
	case "WARN":
		ServerLogger.SetLevel(logging.WARN)
	case "ERROR":
		ServerLogger.SetLevel(logging.ERROR)
	default:
		ServerLogger.SetLevel(logging.INFO)
	}
}

func serverLoggerConfig(level, profile string) *logging.LoggerConfig {
	cfg := &logging.LoggerConfig{
		Profile:      logging.ProfileStructured,
		DefaultLevel: parseLogLevel(level),
		Service:      appid.BinaryName,
		Environment:  "production",
		StaticFields: map[string]any{"namespace": appid.TelemetryNamespace},
		Middleware: []logging.MiddlewareConfig{
			{
				Name:    "correlation",
				Enabled: true,
				Order:   100,
				Config:  make(map[string]any),
			},
		},
		Sinks: []logging.SinkConfig{
			{
				Type:    "console",
				Format:  "json",
				Console: &logging.ConsoleSinkConfig{Stream: "stderr"},
			},
		},
		EnableCaller:     true,
		EnableStacktrace: true,
	}

	if strings.EqualFold(strings.TrimSpace(profile), "SIMPLE") {
		cfg.Profile = logging.ProfileSimple
		cfg.Middleware = nil
		cfg.Sinks[0].Format = "console"
		cfg.EnableStacktrace = false
	}
	return cfg
}

// parseLogLevel maps config level names to gofulmen severities.
func parseLogLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return "TRACE"
	case "debug":
		return "DEBUG"
	case "warn", "warning":
		return "WARN"
	case "error":
		return "ERROR"
	default:
		return "INFO"
	}
}

// exitWithCodeStderr is used before any logger exists.
func exitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "FATAL: %s\n", msg)
	}

	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		os.Exit(int(exitCode))
	}
	fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
	os.Exit(info.Code)
}
