/*
Package errs provides custom error types and application-level error code constants.

These error codes classify every failure the chat client can surface: input validation,
configuration, authentication, session/transport and backend fetch errors.
*/
package errs

// 1xxx: Validation Errors (rejected before any network call)
const (
	// ErrInvalidParams indicates that a required argument was missing or malformed.
	ErrInvalidParams = 1001

	// ErrEmptyMessage indicates that the message content was empty or whitespace only.
	ErrEmptyMessage = 1002

	// ErrMessageContentTooLong indicates that the message content exceeded the maximum length.
	ErrMessageContentTooLong = 1003

	// ErrInvalidHandle indicates that the user handle is empty or out of bounds.
	ErrInvalidHandle = 1004

	// ErrInvalidFullName indicates that the display name is empty or out of bounds.
	ErrInvalidFullName = 1005

	// ErrInvalidPassword indicates that the password does not satisfy the backend rules.
	ErrInvalidPassword = 1006

	// ErrInvalidEmail indicates that the optional email address is malformed.
	ErrInvalidEmail = 1007

	// ErrRateLimitExceeded indicates that outgoing messages are being sent too fast.
	ErrRateLimitExceeded = 1008
)

// 2xxx: Configuration Errors (fatal, surfaced synchronously)
const (
	// ErrConfigMissingAPIURL indicates that the REST base URL is not configured.
	ErrConfigMissingAPIURL = 2001

	// ErrConfigInvalid indicates that a configuration value could not be parsed.
	ErrConfigInvalid = 2002
)

// 3xxx: Authentication Errors
const (
	// ErrMissingToken indicates that a bearer token is required but was not supplied.
	ErrMissingToken = 3001

	// ErrInvalidCredentials indicates that the backend rejected the username/password pair.
	ErrInvalidCredentials = 3002

	// ErrUnauthorized indicates that the backend rejected the bearer token.
	ErrUnauthorized = 3003

	// ErrRegistrationFailed indicates that the backend refused to create the account.
	ErrRegistrationFailed = 3004

	// ErrSessionNotFound indicates that no cached login session exists.
	ErrSessionNotFound = 3005

	// ErrTokenRefreshFailed indicates that the access token could not be refreshed.
	ErrTokenRefreshFailed = 3006
)

// 4xxx: Session and Transport Errors
const (
	// ErrNotConnected indicates that the operation requires an open chat connection.
	ErrNotConnected = 4001

	// ErrConnectInProgress indicates a second connect attempt while one is pending.
	ErrConnectInProgress = 4002

	// ErrAlreadyConnected indicates a connect attempt on an already connected session.
	ErrAlreadyConnected = 4003

	// ErrTransportFailed indicates a WebSocket or STOMP protocol failure.
	ErrTransportFailed = 4004

	// ErrConnectTimeout indicates that the broker never confirmed the connection in time.
	ErrConnectTimeout = 4005

	// ErrNoActivePeer indicates that no conversation partner is selected.
	ErrNoActivePeer = 4006

	// ErrSessionClosed indicates that the session coordinator has been shut down.
	ErrSessionClosed = 4007
)

// 5xxx: Fetch and Internal Errors
const (
	// ErrUnknown represents an unclassified internal error.
	ErrUnknown = 5000

	// ErrFetchFailed indicates that a REST call to the backend failed.
	ErrFetchFailed = 5001

	// ErrDecodeFailed indicates that a backend response could not be decoded.
	ErrDecodeFailed = 5002

	// ErrStorageFailed indicates that the local session cache could not be read or written.
	ErrStorageFailed = 5003
)
