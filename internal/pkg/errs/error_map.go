/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError template returned to callers.
*/
package errs

// errorMap stores the CustomError template for every application error code.
// Status is left at zero; it is filled in from the HTTP response when one exists.
var errorMap = map[int]CustomError{
	// 1xxx: Validation Errors
	ErrInvalidParams:         {Code: ErrInvalidParams, Message: "Invalid parameters."},
	ErrEmptyMessage:          {Code: ErrEmptyMessage, Message: "Message is empty."},
	ErrMessageContentTooLong: {Code: ErrMessageContentTooLong, Message: "Message is too long (max %d bytes)."},
	ErrInvalidHandle:         {Code: ErrInvalidHandle, Message: "Invalid username."},
	ErrInvalidFullName:       {Code: ErrInvalidFullName, Message: "Invalid full name."},
	ErrInvalidPassword:       {Code: ErrInvalidPassword, Message: "Password is too short."},
	ErrInvalidEmail:          {Code: ErrInvalidEmail, Message: "Email address is not valid."},
	ErrRateLimitExceeded:     {Code: ErrRateLimitExceeded, Message: "Sending too fast. Please slow down."},

	// 2xxx: Configuration Errors
	ErrConfigMissingAPIURL: {Code: ErrConfigMissingAPIURL, Message: "CHAT_API_URL is not configured."},
	ErrConfigInvalid:       {Code: ErrConfigInvalid, Message: "Invalid configuration: %s"},

	// 3xxx: Authentication Errors
	ErrMissingToken:       {Code: ErrMissingToken, Message: "An access token is required. Please sign in."},
	ErrInvalidCredentials: {Code: ErrInvalidCredentials, Message: "Incorrect username or password."},
	ErrUnauthorized:       {Code: ErrUnauthorized, Message: "Please sign in to continue."},
	ErrRegistrationFailed: {Code: ErrRegistrationFailed, Message: "Sign-up failed: %s"},
	ErrSessionNotFound:    {Code: ErrSessionNotFound, Message: "Not signed in. Run the login command first."},
	ErrTokenRefreshFailed: {Code: ErrTokenRefreshFailed, Message: "Your session expired. Please sign in again."},

	// 4xxx: Session and Transport Errors
	ErrNotConnected:      {Code: ErrNotConnected, Message: "Not connected to the chat service."},
	ErrConnectInProgress: {Code: ErrConnectInProgress, Message: "A connection attempt is already in progress."},
	ErrAlreadyConnected:  {Code: ErrAlreadyConnected, Message: "Already connected."},
	ErrTransportFailed:   {Code: ErrTransportFailed, Message: "Failed to connect to chat service."},
	ErrConnectTimeout:    {Code: ErrConnectTimeout, Message: "Timed out connecting to chat service."},
	ErrNoActivePeer:      {Code: ErrNoActivePeer, Message: "Select a user to chat with first."},
	ErrSessionClosed:     {Code: ErrSessionClosed, Message: "Chat session is closed."},

	// 5xxx: Fetch and Internal Errors
	ErrUnknown:       {Code: ErrUnknown, Message: "Something went wrong. Please try again."},
	ErrFetchFailed:   {Code: ErrFetchFailed, Message: "Failed to fetch data: %s"},
	ErrDecodeFailed:  {Code: ErrDecodeFailed, Message: "Unexpected response from the chat service."},
	ErrStorageFailed: {Code: ErrStorageFailed, Message: "Failed to access the local session cache: %s"},
}
