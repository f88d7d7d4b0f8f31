package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/codexplain/codexplain/internal/proxy"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the speech proxy",
	Long: paragraph(fmt.Sprintf("\n%s the HTTP speech proxy the explanations are played from. "+
		"GET or POST %s with a text and it streams back MP3 audio.", keyword("Serve"), proxy.VoicePath)),
	Example: paragraph("codexplain serve\ncodexplain serve --addr 127.0.0.1:3000 --provider mock"),
	Args:    cobra.NoArgs,
	RunE:    runServe,
}

func newSynthesizer(sec secrets) (proxy.Synthesizer, error) {
	var synth proxy.Synthesizer

	switch provider := viper.GetString("server.provider"); provider {
	case "openai":
		key := sec.speechKey()
		if key == "" {
			return nil, errors.New("no speech key configured: set CODEXPLAIN_SPEECH_KEY or OPENAI_API_KEY")
		}
		synth = proxy.NewOpenAI(proxy.OpenAIConfig{
			URL:          viper.GetString("server.endpoint"),
			Token:        key,
			Model:        viper.GetString("server.model"),
			Voice:        viper.GetString("server.voice"),
			Instructions: viper.GetString("server.instructions"),
			Client:       &http.Client{Timeout: viper.GetDuration("speech.timeout")},
		})
	case "mock":
		synth = proxy.MockSynthesizer{}
	default:
		return nil, fmt.Errorf("unknown speech provider %q: use openai or mock", provider)
	}

	return proxy.Limited(synth, viper.GetInt("server.requests_per_minute")), nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	sec, err := loadSecrets()
	if err != nil {
		return err
	}
	synth, err := newSynthesizer(sec)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var options []proxy.Option
	if viper.GetBool("server.metrics") {
		m, err := proxy.NewMetrics(ctx, appName)
		if err != nil {
			return fmt.Errorf("unable to set up metrics: %w", err)
		}
		options = append(options, proxy.WithMetrics(m))
	}

	srv, err := proxy.New(proxy.Config{Addr: viper.GetString("server.addr")}, synth, options...)
	if err != nil {
		return err
	}

	log.Info("Starting speech proxy",
		"addr", viper.GetString("server.addr"),
		"provider", viper.GetString("server.provider"),
		"metrics", viper.GetBool("server.metrics"))

	return srv.ListenAndServe(ctx)
}

func init() {
	serveCmd.Flags().String("addr", proxy.DefaultAddr, "address to listen on")
	serveCmd.Flags().String("provider", "openai", "speech provider (openai or mock)")
	serveCmd.Flags().String("voice", proxy.DefaultVoice, "voice to speak with")
	serveCmd.Flags().Int("rpm", 0, "upstream requests per minute (0 for unlimited)")
	serveCmd.Flags().Bool("metrics", true, "serve Prometheus metrics on /metrics")

	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	_ = viper.BindPFlag("server.provider", serveCmd.Flags().Lookup("provider"))
	_ = viper.BindPFlag("server.voice", serveCmd.Flags().Lookup("voice"))
	_ = viper.BindPFlag("server.requests_per_minute", serveCmd.Flags().Lookup("rpm"))
	_ = viper.BindPFlag("server.metrics", serveCmd.Flags().Lookup("metrics"))
}
