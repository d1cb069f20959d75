package bus

import (
	pkgerrors "github.com/chris-alexander-pop/agentfabric/pkg/errors"
)

// TransportUnavailable wraps a failed publish/read so callers (the gateway
// in particular) can map it to a 503 regardless of which adapter produced
// it.
func TransportUnavailable(message string, cause error) *pkgerrors.AppError {
	return pkgerrors.Unavailable(message, cause)
}

// InvalidTopic reports a malformed or empty topic name.
func InvalidTopic(message string) *pkgerrors.AppError {
	return pkgerrors.InvalidArgument(message, nil)
}
