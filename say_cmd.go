package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/codexplain/codexplain/internal/audio"
	"github.com/codexplain/codexplain/internal/cache"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	sayOutput string

	sayCmd = &cobra.Command{
		Use:     "say TEXT...",
		Short:   "Speak a text through the speech proxy",
		Long:    paragraph(fmt.Sprintf("\n%s TEXT with the configured speech proxy, the same way explanations are played.", keyword("Speak"))),
		Example: paragraph("codexplain say \"The loop runs three times\"\ncodexplain say --output hello.mp3 hello world"),
		Args:    cobra.MinimumNArgs(1),
		RunE:    runSay,
	}
)

func runSay(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	if strings.TrimSpace(text) == "" {
		return errors.New("nothing to say")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ccfg, err := cacheConfig()
	if err != nil {
		return err
	}
	store, err := cache.NewStore(ccfg)
	if err != nil {
		return fmt.Errorf("unable to open clip cache: %w", err)
	}
	defer store.Close() //nolint:errcheck

	client := newSpeechClient(store)
	data, err := client.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("unable to synthesize speech: %w", err)
	}

	if sayOutput != "" {
		if err := os.WriteFile(sayOutput, data, 0o644); err != nil { //nolint:gosec
			return fmt.Errorf("unable to write audio: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Wrote audio to:", sayOutput)
		return nil
	}

	clip, err := audio.Decode(data)
	if err != nil {
		return err
	}

	player, err := newPlayer(false)
	if err != nil {
		return err
	}
	defer player.Close() //nolint:errcheck

	done, err := player.Play(clip)
	if err != nil {
		return fmt.Errorf("unable to play audio: %w", err)
	}
	log.Debug("Speaking", "chars", len(text), "duration", clip.Duration(), "volume", viper.GetFloat64("playback.volume"))

	select {
	case <-done:
	case <-ctx.Done():
		_ = player.Stop()
	}
	return nil
}

func init() {
	sayCmd.Flags().StringVarP(&sayOutput, "output", "o", "", "write the MP3 to a file instead of playing it")
}
