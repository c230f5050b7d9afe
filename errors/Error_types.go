package errors

var (
	ErrUnknown            = New(ERR_UNKNOWN, "unknown error")
	ErrInvalidArgument    = New(ERR_INVALID_ARGUMENT, "invalid argument")
	ErrNotFound           = New(ERR_NOT_FOUND, "not found")
	ErrProcessing         = New(ERR_PROCESSING, "error processing")
	ErrConfiguration      = New(ERR_CONFIGURATION, "configuration error")
	ErrContext            = New(ERR_CONTEXT, "context error")
	ErrContextCanceled    = New(ERR_CONTEXT_CANCELED, "context canceled")
	ErrError              = New(ERR_ERROR, "generic error")
	ErrQuery              = New(ERR_QUERY, "status query failed")
	ErrTimeout            = New(ERR_TIMEOUT, "timed out")
	ErrCluster            = New(ERR_CLUSTER, "cluster error")
	ErrServiceUnavailable = New(ERR_SERVICE_UNAVAILABLE, "service unavailable")
	ErrNetworkTimeout     = New(ERR_NETWORK_TIMEOUT, "network timeout")
	ErrServiceError       = New(ERR_SERVICE_ERROR, "service error")
)

// errors initialization functions

func NewUnknownError(message string, params ...interface{}) error {
	return New(ERR_UNKNOWN, message, params...)
}
func NewInvalidArgumentError(message string, params ...interface{}) error {
	return New(ERR_INVALID_ARGUMENT, message, params...)
}
func NewNotFoundError(message string, params ...interface{}) error {
	return New(ERR_NOT_FOUND, message, params...)
}
func NewProcessingError(message string, params ...interface{}) error {
	return New(ERR_PROCESSING, message, params...)
}
func NewConfigurationError(message string, params ...interface{}) error {
	return New(ERR_CONFIGURATION, message, params...)
}
func NewContextError(message string, params ...interface{}) error {
	return New(ERR_CONTEXT, message, params...)
}
func NewContextCanceledError(message string, params ...interface{}) error {
	return New(ERR_CONTEXT_CANCELED, message, params...)
}
func NewError(message string, params ...interface{}) error {
	return New(ERR_ERROR, message, params...)
}

// NewQueryError is returned when a node status query could not be completed:
// the node is unreachable or its response is malformed.
func NewQueryError(message string, params ...interface{}) error {
	return New(ERR_QUERY, message, params...)
}

// NewTimeoutError is returned when a bounded wait elapsed before its condition held.
func NewTimeoutError(message string, params ...interface{}) error {
	return New(ERR_TIMEOUT, message, params...)
}

// NewClusterError is returned by cluster collaborators for lifecycle failures.
func NewClusterError(message string, params ...interface{}) error {
	return New(ERR_CLUSTER, message, params...)
}
func NewServiceUnavailableError(message string, params ...interface{}) error {
	return New(ERR_SERVICE_UNAVAILABLE, message, params...)
}

// NewNetworkTimeoutError is returned when a transport operation ran out of time. It is
// not a TimeoutError: a slow node is reported as a failed query, not as a missed deadline.
func NewNetworkTimeoutError(message string, params ...interface{}) error {
	return New(ERR_NETWORK_TIMEOUT, message, params...)
}
func NewServiceError(message string, params ...interface{}) error {
	return New(ERR_SERVICE_ERROR, message, params...)
}
