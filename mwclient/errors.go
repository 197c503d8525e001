package mwclient

import "fmt"

// LowLevelKind classifies transient failures of the wire layer.
type LowLevelKind string

const (
	LowLevelNetwork     LowLevelKind = "network"
	LowLevelHTTP        LowLevelKind = "http"
	LowLevelJSON        LowLevelKind = "json"
	LowLevelReadOnly    LowLevelKind = "readonly"
	LowLevelUnspecified LowLevelKind = "unspecified"
)

// LowLevelError is a transport, decoding or wiki-readonly failure. All
// of its kinds are retryable.
type LowLevelError struct {
	Kind LowLevelKind
	Err  error
}

func (e *LowLevelError) Error() string {
	return fmt.Sprintf("low-level %s error: %v", e.Kind, e.Err)
}

func (e *LowLevelError) Unwrap() error { return e.Err }

// APIError is an error object returned by the MediaWiki API that maps
// to no more specific kind.
type APIError struct {
	Code string
	Info string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error [%s]: %s", e.Code, e.Info)
}

// UnexpectedAPIResponseError reports a response the client cannot make
// sense of (missing keys, wrong shapes, a pager looping on itself).
type UnexpectedAPIResponseError struct {
	Message string
}

func (e *UnexpectedAPIResponseError) Error() string {
	return "unexpected API response: " + e.Message
}

// InvalidParameterError reports caller-provided arguments the API
// or the client rejects.
type InvalidParameterError struct {
	Message string
}

func (e *InvalidParameterError) Error() string {
	return "invalid parameter: " + e.Message
}

// InvalidStateError reports programmer misuse, such as writing before
// logging in.
type InvalidStateError struct {
	Message string
}

func (e *InvalidStateError) Error() string {
	return "invalid state: " + e.Message
}

// PageNotFoundError reports a missing page or revision.
type PageNotFoundError struct {
	Title string
}

func (e *PageNotFoundError) Error() string {
	return fmt.Sprintf("page not found: %s", e.Title)
}

// PageAlreadyExistsError reports a create on an existing page.
type PageAlreadyExistsError struct {
	Title string
}

func (e *PageAlreadyExistsError) Error() string {
	return fmt.Sprintf("page already exists: %s", e.Title)
}

// ProtectedPageError reports an edit rejected by page protection.
type ProtectedPageError struct {
	Title string
	Code  string
}

func (e *ProtectedPageError) Error() string {
	return fmt.Sprintf("page is protected [%s]: %s", e.Code, e.Title)
}

// EditConflictError reports a base-revision conflict during a write.
type EditConflictError struct {
	Title string
}

func (e *EditConflictError) Error() string {
	return fmt.Sprintf("edit conflict on: %s", e.Title)
}

// EmergencyStopError aborts all writes when the emergency-stop
// predicate fires.
type EmergencyStopError struct{}

func (e *EmergencyStopError) Error() string {
	return "emergency stop triggered"
}

// BotExclusionError reports a page whose {{nobots}}/{{bots}} markup
// excludes this bot.
type BotExclusionError struct {
	Title string
}

func (e *BotExclusionError) Error() string {
	return fmt.Sprintf("bot excluded from: %s", e.Title)
}

// ParseError reports malformed textual input: a session file, a
// serialized WriteToken, a continue token.
type ParseError struct {
	Message string
}

func (e *ParseError) Error() string {
	return "parse error: " + e.Message
}

// wrapMessage prepends caller context to an error message while
// preserving the error's concrete kind for errors.As.
type wrappedError struct {
	context string
	err     error
}

func (e *wrappedError) Error() string { return e.context + ": " + e.err.Error() }
func (e *wrappedError) Unwrap() error { return e.err }

// annotate adds a context prefix to err; nil stays nil.
func annotate(context string, err error) error {
	if err == nil {
		return nil
	}
	return &wrappedError{context: context, err: err}
}
