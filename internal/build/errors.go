package build

import (
	"errors"

	ferrors "git.home.luguber.info/inful/buildmesh/internal/foundation/errors"
)

// ErrNotFound is returned by stores when a row does not exist.
var ErrNotFound = ferrors.NotFoundError("build record not found").Build()

// ErrConflict means a conditional update lost against a concurrent or replayed change.
var ErrConflict = ferrors.BuildError("build changed concurrently").Build()

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err wraps ErrConflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
