package explain

import (
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3/option"
)

// Config holds the connection settings of a Client.
type Config struct {
	url   string
	token string
	model string

	temperature float64
	prompt      string

	client *http.Client
}

// Option configures a Client.
type Option func(*Config)

// WithToken sets the API key sent to the endpoint.
func WithToken(token string) Option {
	return func(c *Config) {
		c.token = token
	}
}

// WithClient sets the HTTP client used for requests.
func WithClient(client *http.Client) Option {
	return func(c *Config) {
		c.client = client
	}
}

// WithTemperature sets the sampling temperature. Zero leaves the
// endpoint's default in place.
func WithTemperature(t float64) Option {
	return func(c *Config) {
		c.temperature = t
	}
}

// WithPrompt replaces the system prompt.
func WithPrompt(prompt string) Option {
	return func(c *Config) {
		c.prompt = prompt
	}
}

// Options converts the config into openai request options.
func (c *Config) Options() []option.RequestOption {
	if c.url == "" {
		c.url = "https://api.openai.com/v1/"
	}

	if c.client == nil {
		c.client = http.DefaultClient
	}

	c.url = strings.TrimRight(c.url, "/") + "/"

	options := []option.RequestOption{
		option.WithBaseURL(c.url),
		option.WithHTTPClient(c.client),
		option.WithMaxRetries(1),
	}

	if c.token != "" {
		options = append(options, option.WithAPIKey(c.token))
	}

	return options
}
