package eventstore

import (
	"git.home.luguber.info/inful/buildmesh/internal/foundation/errors"
)

var (
	// ErrDatabaseOpenFailed indicates the SQLite database could not be opened.
	ErrDatabaseOpenFailed = errors.StoreError("could not open transition history database").Build()

	// ErrInitializeSchemaFailed indicates the history table could not be created.
	ErrInitializeSchemaFailed = errors.StoreError("failed to initialize transition history schema").Build()

	// ErrEventAppendFailed indicates appending a transition failed.
	ErrEventAppendFailed = errors.StoreError("failed to append transition").Build()

	// ErrEventQueryFailed indicates querying or scanning transitions failed.
	ErrEventQueryFailed = errors.StoreError("failed to query transitions").Build()

	// ErrMarshalPayloadFailed indicates JSON marshaling of a transition failed.
	ErrMarshalPayloadFailed = errors.StoreError("failed to marshal transition").Build()
)
