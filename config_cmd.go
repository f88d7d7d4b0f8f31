package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# log level: debug, info, warn or error
log_level: "info"

# glamour style used for the code block (default "auto")
style: "auto"
# word-wrap code at width, 0 disables wrapping
width: 0

# explanation model, any OpenAI-compatible chat completions endpoint.
# The endpoint and key can also come from IBM_ENDPOINT and IBM_KEY.
model:
  # endpoint: "https://us-south.ml.cloud.ibm.com/v1"
  name: "ibm/granite-3.3-8b-instruct"
  temperature: 0
  timeout: "2m"

# speech proxy the explanations are played from
speech:
  url: "http://127.0.0.1:3000/aiVoice"
  timeout: "30s"

# downloaded clips
cache:
  # dir: "~/.cache/codexplain/clips"
  memory_size: "16MB"
  disk_size: "100MB"
  # zstd level for clips on disk, 0 stores them as-is
  compression: 3
  ttl: "168h"

playback:
  # give up on a clip that neither ends nor fails in time
  safety_timeout: "100s"
  # play a clip anyway if it isn't ready after this long
  ready_timeout: "2s"
  # pause between two explanations
  advance_delay: "500ms"
  # pause before skipping a clip that failed
  error_delay: "100ms"
  # stop after this many failed clips in a row, 0 never stops
  max_failures: 0
  # 0.0 to 1.0
  volume: 1.0

# the speech proxy started by "codexplain serve"
server:
  addr: "0.0.0.0:3000"
  # openai or mock
  provider: "openai"
  # endpoint: "https://api.openai.com/v1"
  # model: "gpt-4o-mini-tts"
  voice: "alloy"
  # instructions: "Speak like a patient tutor."
  # upstream requests per minute, 0 for unlimited
  requests_per_minute: 0
  metrics: true
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the codexplain config file",
	Long:    paragraph(fmt.Sprintf("\n%s the codexplain config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("codexplain config\ncodexplain config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("codexplain", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
