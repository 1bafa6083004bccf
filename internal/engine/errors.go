package engine

import "github.com/rotisserie/eris"

// Validation and admission errors, surfaced synchronously before any
// stream is opened. Everything else the engine encounters is contained
// at unit scope and reported as events, not errors.
var (
	ErrInvalidDomain = eris.New("engine: domain not found")
	ErrNoPhrases     = eris.New("engine: no selected phrases for domain")
	ErrTooManyUnits  = eris.New("engine: unit count exceeds run ceiling")
	ErrRateLimited   = eris.New("engine: domain concurrency limit reached")
)
