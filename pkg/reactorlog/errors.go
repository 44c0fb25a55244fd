package reactorlog

import "github.com/DhrumilPanchal10/Reactors-GU-CzLab/internal/domain"

// Re-exported sentinels so embedders can branch with errors.Is without
// reaching into internal packages.
var (
	ErrAlreadyRunning      = domain.ErrAlreadyRunning
	ErrNotRunning          = domain.ErrNotRunning
	ErrExperimentClosed    = domain.ErrExperimentClosed
	ErrReactorDisabled     = domain.ErrReactorDisabled
	ErrTimestampRegression = domain.ErrTimestampRegression
)
