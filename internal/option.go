package internal

import (
	"io"

	"github.com/starford/basket/internal/optimizer"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config     *Config
	configPath string
	optimizer  optimizer.Client
	logOutput  io.Writer
	version    string
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithConfigPath enables log level hot reload from the given config file.
func WithConfigPath(path string) Option {
	return func(a *application) {
		a.configPath = path
	}
}

// WithOptimizer replaces the HTTP optimizer client built from config.
func WithOptimizer(c optimizer.Client) Option {
	return func(a *application) {
		a.optimizer = c
	}
}

// WithLogOutput redirects logs. The MCP command sends them to stderr so stdout
// stays free for the protocol.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOutput = w
	}
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *application) {
		a.version = v
	}
}
