package yunas

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownChain is matched by errors for dispatches to unregistered chains
	ErrUnknownChain = errors.New("yunas: unknown chain")
	// ErrEngineSealed is returned when registering after the build phase
	ErrEngineSealed = errors.New("yunas: engine is sealed")
	// ErrDuplicateChain is returned when a chain name is registered twice
	ErrDuplicateChain = errors.New("yunas: chain already registered")
	// ErrInvalidChainName is returned for an empty chain name
	ErrInvalidChainName = errors.New("yunas: invalid chain name")
	// ErrNilChain is returned when registering a nil chain
	ErrNilChain = errors.New("yunas: nil chain")
	// ErrNilInterceptor is returned when a registration list contains nil
	ErrNilInterceptor = errors.New("yunas: nil interceptor")
)

// UnknownChainError is returned by Invoke when no chain is registered under
// the requested name
type UnknownChainError struct {
	Chain string
}

func (e *UnknownChainError) Error() string {
	return fmt.Sprintf("yunas: unknown chain %q", e.Chain)
}

// Is matches ErrUnknownChain
func (e *UnknownChainError) Is(target error) bool {
	return target == ErrUnknownChain
}
