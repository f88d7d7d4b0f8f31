package proxy

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const (
	// DefaultAddr is the listen address of the proxy.
	DefaultAddr = "0.0.0.0:3000"

	// VoicePath is the speech endpoint.
	VoicePath = "/aiVoice"

	chunkSize = 16 * 1024
)

// Messages returned to clients in {"error": ...} bodies.
const (
	MsgMissingText    = "Missing required text parameter"
	MsgSynthesisError = "Failed to generate speech"
)

//go:embed static
var static embed.FS

// Config holds the server settings.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Server is the speech proxy.
type Server struct {
	cfg     Config
	synth   Synthesizer
	metrics *Metrics
	inst    *instruments
	handler http.Handler
	logger  *log.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records request and synthesis metrics in m and serves them
// on /metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a proxy serving speech from synth.
func New(cfg Config, synth Synthesizer, options ...Option) (*Server, error) {
	if synth == nil {
		return nil, errors.New("no synthesizer configured")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		cfg:    cfg,
		synth:  synth,
		logger: log.Default().WithPrefix("proxy"),
	}

	for _, option := range options {
		option(s)
	}

	var mp metric.MeterProvider = noop.NewMeterProvider()
	if s.metrics != nil {
		mp = s.metrics.Provider
	}

	inst, err := newInstruments(mp)
	if err != nil {
		return nil, fmt.Errorf("unable to create instruments: %w", err)
	}
	s.inst = inst

	s.handler = otelhttp.NewHandler(s.routes(), "proxy", otelhttp.WithMeterProvider(mp))
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(withRequestID)
	r.Use(withLogging(s.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{RequestIDHeader},
	}))

	r.Get("/", s.handleIndex)
	r.Get("/healthz", s.handleHealth)
	r.Get(VoicePath, s.handleVoice)
	r.Post(VoicePath, s.handleVoice)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler)
	}

	return r
}

// Handler returns the proxy's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("unable to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("Listening", "addr", ln.Addr().String())
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if merr := s.metrics.Shutdown(shutdownCtx); err == nil {
		err = merr
	}
	return err
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	http.ServeFileFS(w, r, static, "static/index.html")
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJson(w, map[string]string{"status": "ok"})
}

type voiceRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("text")

	if r.Method == http.MethodPost && text == "" {
		var req voiceRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			s.logger.Debug("Invalid request body", "err", err)
		}
		text = req.Text
	}

	if text == "" {
		writeError(w, http.StatusBadRequest, MsgMissingText)
		return
	}

	logger := s.logger.With("request_id", RequestID(r.Context()))
	ctx := r.Context()

	stream, err := s.synth.Synthesize(ctx, text)
	if err != nil {
		logger.Error("Synthesis failed", "err", err)
		s.inst.synthesis(ctx, "error", 0)
		writeError(w, http.StatusInternalServerError, MsgSynthesisError)
		return
	}
	defer stream.Close() //nolint:errcheck

	buf := make([]byte, chunkSize)

	// Headers are only committed once audio arrives, so a synthesizer that
	// fails before its first byte still gets a JSON error.
	n, err := readChunk(stream, buf)
	if n == 0 {
		if err == nil || errors.Is(err, io.EOF) {
			err = errors.New("empty audio stream")
		}
		logger.Error("Synthesis failed", "err", err)
		s.inst.synthesis(ctx, "error", 0)
		writeError(w, http.StatusInternalServerError, MsgSynthesisError)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	total := int64(0)

	for n > 0 {
		if _, werr := w.Write(buf[:n]); werr != nil {
			logger.Debug("Client went away", "err", werr)
			s.inst.synthesis(ctx, "aborted", total)
			return
		}
		total += int64(n)
		if ferr := rc.Flush(); ferr != nil {
			logger.Debug("Could not flush", "err", ferr)
		}

		if err != nil {
			break
		}
		n, err = readChunk(stream, buf)
	}

	if err != nil && !errors.Is(err, io.EOF) {
		logger.Error("Audio stream failed", "err", err, "bytes", total)
		s.inst.synthesis(ctx, "truncated", total)
		return
	}

	logger.Debug("Streamed speech", "chars", len(text), "bytes", total)
	s.inst.synthesis(ctx, "ok", total)
}

// readChunk returns whatever the stream has ready, at least one byte
// unless it ended or failed.
func readChunk(r io.Reader, buf []byte) (int, error) {
	for {
		n, err := r.Read(buf)
		if n > 0 || err != nil {
			return n, err
		}
	}
}

func writeJson(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	enc.Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	enc.Encode(map[string]string{"error": message}) //nolint:errcheck
}
