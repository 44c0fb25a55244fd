package reactors

import (
	base "github.com/DhrumilPanchal10/Reactors-GU-CzLab/pkg/reactorlog"
)

// Re-exported errors for convenience.
var (
	ErrAlreadyRunning      = base.ErrAlreadyRunning
	ErrNotRunning          = base.ErrNotRunning
	ErrExperimentClosed    = base.ErrExperimentClosed
	ErrReactorDisabled     = base.ErrReactorDisabled
	ErrTimestampRegression = base.ErrTimestampRegression
)

// Type aliases so consumers can import the module root directly.
type (
	Config  = base.Config
	Runtime = base.Runtime
	Option  = base.Option
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

// Runtime construction and options.
func New(cfg *Config, opts ...Option) (*Runtime, error) {
	return base.New(cfg, opts...)
}

func WithClient(c base.ProtocolClient) Option {
	return base.WithClient(c)
}

func WithStore(s base.Store) Option {
	return base.WithStore(s)
}

func WithObservability(obs base.Observability) Option {
	return base.WithObservability(obs)
}
