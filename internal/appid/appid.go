// Package appid holds the application identity used for config paths,
// environment prefixes and telemetry namespaces.
package appid

const (
	// BinaryName is the CLI executable name.
	BinaryName = "disputekit"

	// ConfigName is the XDG config/data directory name.
	ConfigName = "disputekit"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "DISPUTEKIT_"

	// Description is the one-line summary shown in help output.
	Description = "Batch dispute letter generation and submission"

	// TelemetryNamespace prefixes exported metric names.
	TelemetryNamespace = "disputekit"
)

// Identity describes the running application.
type Identity struct {
	BinaryName  string
	ConfigName  string
	EnvPrefix   string
	Description string
	Namespace   string
}

// Get returns the application identity.
func Get() Identity {
	return Identity{
		BinaryName:  BinaryName,
		ConfigName:  ConfigName,
		EnvPrefix:   EnvPrefix,
		Description: Description,
		Namespace:   TelemetryNamespace,
	}
}
