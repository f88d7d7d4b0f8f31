package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/log"
	"github.com/codexplain/codexplain/internal/explain"
	"github.com/codexplain/codexplain/internal/playback"
	"github.com/codexplain/codexplain/ui"
	"github.com/codexplain/codexplain/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// msgEmptyInput is shown instead of contacting the model.
const msgEmptyInput = "Please select some code to explain"

var (
	jsonOutput bool
	headless   bool
	watch      bool
	mute       bool
	style      string
	width      uint
	mouse      bool

	explainCmd = &cobra.Command{
		Use:   "explain [FILE|-]",
		Short: "Explain a piece of code out loud",
		Long: paragraph(fmt.Sprintf("\n%s the code in FILE, or on stdin, and play the explanation of every token. "+
			"Without flags an interactive player is started.", keyword("Explain"))),
		Example: paragraph("codexplain explain main.go\npbpaste | codexplain explain --json\ncodexplain explain --headless --mute loop.py"),
		Args:    cobra.MaximumNArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return nil, cobra.ShellCompDirectiveDefault
		},
		RunE: runExplain,
	}
)

// jsonToken is one entry of the --json output.
type jsonToken struct {
	Index       int    `json:"index"`
	Token       string `json:"token"`
	Explanation string `json:"explanation"`
	AudioURL    string `json:"audio_url"`
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

// readSource returns the code to explain and the file it came from.
func readSource(args []string) (string, string, error) {
	if len(args) == 0 || args[0] == "-" {
		if len(args) == 0 {
			yes, err := stdinIsPipe()
			if err != nil {
				return "", "", err
			}
			if !yes {
				return "", "", errors.New("missing source: pass a file or pipe code on stdin")
			}
		}

		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", "", fmt.Errorf("unable to read from stdin: %w", err)
		}
		return string(b), "", nil
	}

	path, err := filepath.Abs(args[0])
	if err != nil {
		return "", "", fmt.Errorf("unable to get absolute path: %w", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("unable to open file: %w", err)
	}
	return string(b), path, nil
}

// validateStyle checks if the style is a default style, if not, checks that
// the custom style exists.
func validateStyle(style string) error {
	if style != "auto" && styles.DefaultStyles[style] == nil {
		style = utils.ExpandPath(style)
		if _, err := os.Stat(style); errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("specified style does not exist: %s", style)
		} else if err != nil {
			return fmt.Errorf("unable to stat file: %w", err)
		}
	}
	return nil
}

func runExplain(cmd *cobra.Command, args []string) error {
	// grab config values from Viper
	style = viper.GetString("style")
	width = viper.GetUint("width")
	mouse = viper.GetBool("mouse")

	if err := validateStyle(style); err != nil {
		return err
	}
	if jsonOutput && headless {
		return errors.New("cannot use both --json and --headless")
	}
	if watch && (jsonOutput || headless) {
		return errors.New("--watch only works with the interactive player")
	}

	code, path, err := readSource(args)
	if err != nil {
		return err
	}
	if watch && path == "" {
		return errors.New("--watch needs a file")
	}

	// Nothing to explain, so don't bother the model.
	if strings.TrimSpace(code) == "" {
		fmt.Fprintln(cmd.OutOrStdout(), msgEmptyInput)
		return nil
	}

	sec, err := loadSecrets()
	if err != nil {
		return err
	}
	fetcher, err := newFetcher(sec)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if jsonOutput {
		return explainJSON(ctx, fetcher, code, cmd.OutOrStdout())
	}

	st, err := newStack(mute)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error("Could not release audio", "error", err)
		}
	}()

	if headless {
		return explainHeadless(ctx, fetcher, st, code, cmd.OutOrStdout())
	}
	return runTUI(cmd, fetcher, st, code, path)
}

// explainJSON prints the tokens and their clip URLs.
func explainJSON(ctx context.Context, fetcher explain.Fetcher, code string, w io.Writer) error {
	tokens, err := fetch(ctx, fetcher, code)
	if err != nil {
		return err
	}

	resolver := newSpeechClient(nil)
	out := make([]jsonToken, 0, len(tokens))
	for _, tok := range tokens {
		u, err := resolver.Resolve(tok.Explanation)
		if err != nil {
			return fmt.Errorf("unable to resolve audio for %q: %w", tok.Token, err)
		}
		out = append(out, jsonToken{
			Index:       tok.Index,
			Token:       tok.Token,
			Explanation: tok.Explanation,
			AudioURL:    u,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("unable to write to writer: %w", err)
	}
	return nil
}

// explainHeadless plays every explanation once and prints the status
// changes until the sequence ends or ctx is cancelled.
func explainHeadless(ctx context.Context, fetcher explain.Fetcher, st *stack, code string, w io.Writer) error {
	tokens, err := fetch(ctx, fetcher, code)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		fmt.Fprintln(w, playback.StatusNoTokens)
		return nil
	}

	c, err := st.newController(tokens)
	if err != nil {
		return err
	}
	defer c.Close() //nolint:errcheck

	return followSession(ctx, c, w)
}

// followSession starts c and prints its status changes until it is idle.
func followSession(ctx context.Context, c *playback.Controller, w io.Writer) error {
	c.Start()

	var last string
	report := func(s string) {
		if s != "" && s != last {
			fmt.Fprintln(w, s)
			last = s
		}
	}

	started := false
	for {
		select {
		case <-ctx.Done():
			c.Stop()
			if snap, err := c.Snapshot(); err == nil {
				report(snap.Status)
			}
			return nil

		case ev, ok := <-c.Events():
			if !ok {
				return nil
			}

			switch ev := ev.(type) {
			case playback.StatusEvent:
				report(ev.Text)
			case playback.SlotEvent:
				if ev.Err != nil {
					log.Warn("Explanation failed", "index", ev.Index, "error", ev.Err)
				}
			case playback.PlayingEvent:
				if ev.Playing {
					started = true
					continue
				}
				if !started {
					continue
				}
				// The closing status is set right after the sequence halts.
				if snap, err := c.Snapshot(); err == nil {
					report(snap.Status)
				}
				return nil
			}
		}
	}
}

func fetch(ctx context.Context, fetcher explain.Fetcher, code string) ([]explain.Token, error) {
	tokens, err := fetcher.Fetch(ctx, code)
	switch {
	case errors.Is(err, explain.ErrEmptyInput):
		return nil, errors.New(msgEmptyInput)
	case err != nil:
		return nil, fmt.Errorf("error analyzing code: %w", err)
	}
	return tokens, nil
}

func runTUI(cmd *cobra.Command, fetcher *explain.Client, st *stack, code, path string) error {
	// Read environment to get debugging stuff
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}

	// use style set in env, or the flag if unset
	if cfg.GlamourStyle == "" || validateStyle(cfg.GlamourStyle) != nil {
		cfg.GlamourStyle = style
	}
	if !term.IsTerminal(int(os.Stdout.Fd())) && !cmd.Flags().Changed("style") { //nolint:gosec
		cfg.GlamourStyle = styles.NoTTYStyle
	}

	cfg.Path = path
	cfg.Model = fetcher.Model()
	cfg.GlamourMaxWidth = width
	cfg.EnableMouse = mouse
	cfg.Watch = watch
	cfg.FetchTimeout = viper.GetDuration("model.timeout")

	// Run Bubble Tea program
	if _, err := ui.NewProgram(cfg, code, fetcher, st.sessionFactory()).Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

func init() {
	explainCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the explanation as JSON and exit")
	explainCmd.Flags().BoolVar(&headless, "headless", false, "play the whole explanation without the interactive player")
	explainCmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-analyze when FILE changes")
	explainCmd.Flags().BoolVar(&mute, "mute", false, "run without audio output")
	explainCmd.Flags().StringVarP(&style, "style", "s", styles.AutoStyle, "style name or JSON path")
	explainCmd.Flags().UintVar(&width, "width", 0, "word-wrap code at width (set to 0 to disable)")
	explainCmd.Flags().BoolVarP(&mouse, "mouse", "m", false, "enable mouse support")
	_ = explainCmd.Flags().MarkHidden("mouse")

	_ = viper.BindPFlag("style", explainCmd.Flags().Lookup("style"))
	_ = viper.BindPFlag("width", explainCmd.Flags().Lookup("width"))
	_ = viper.BindPFlag("mouse", explainCmd.Flags().Lookup("mouse"))
	viper.SetDefault("style", styles.AutoStyle)
	viper.SetDefault("width", 0)
}
