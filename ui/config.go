package ui

import "time"

// Config contains TUI-specific configuration.
type Config struct {
	// Source file path, empty when the code came from stdin.
	Path string

	// Name of the explanation model, shown in the header.
	Model string

	GlamourMaxWidth uint
	GlamourStyle    string `env:"GLAMOUR_STYLE"`
	EnableMouse     bool

	// Re-analyze when the source file changes.
	Watch bool

	// How long a single analysis may take.
	FetchTimeout time.Duration

	// For debugging the UI
	GlamourEnabled bool `env:"CODEXPLAIN_ENABLE_GLAMOUR" envDefault:"true"`
}
