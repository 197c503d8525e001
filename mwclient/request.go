package mwclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/orlodrim/wikibot/httpx"
	"github.com/orlodrim/wikibot/jsonv"
	"github.com/orlodrim/wikibot/metrics"
	"github.com/orlodrim/wikibot/wikidate"
)

// Method selects how a request is dispatched and whether the retry
// budget applies.
type Method int

const (
	// MethodGet is a plain GET; always retryable.
	MethodGet Method = iota
	// MethodPostNoSideEffect is a POST whose effect is idempotent or
	// absent (large queries); retryable.
	MethodPostNoSideEffect
	// MethodPost is a content-changing POST; never retried blindly.
	MethodPost
)

// Request accumulates API parameters through typed setters.
type Request struct {
	Method Method
	params url.Values
}

// NewRequest starts a request for the given action.
func NewRequest(action string) *Request {
	r := &Request{params: url.Values{}}
	r.Set("action", action)
	return r
}

// Set stores a string parameter.
func (r *Request) Set(name, value string) { r.params.Set(name, value) }

// SetInt stores an integer parameter.
func (r *Request) SetInt(name string, value int64) {
	r.params.Set(name, strconv.FormatInt(value, 10))
}

// SetRevID stores a revision id; unset ids are skipped.
func (r *Request) SetRevID(name string, revid int64) {
	if revid != RevIDUnset && revid != RevIDMissing {
		r.SetInt(name, revid)
	}
}

// SetDate stores a date in ISO-8601; null dates are skipped.
func (r *Request) SetDate(name string, d wikidate.Date) {
	if !d.IsNull() {
		r.params.Set(name, d.ISO8601())
	}
}

// SetTokens stores a "|"-joined token list, for flag bitsets and
// multi-title parameters.
func (r *Request) SetTokens(name string, tokens []string) {
	r.params.Set(name, strings.Join(tokens, "|"))
}

// Has reports whether the parameter is set.
func (r *Request) Has(name string) bool { return r.params.Has(name) }

// encode produces the deterministic query string of the request, with
// the ambient parameters the client appends to every call.
func (r *Request) encode(ambient url.Values) string {
	merged := url.Values{}
	for name, values := range r.params {
		merged[name] = values
	}
	for name, values := range ambient {
		if !merged.Has(name) {
			merged[name] = values
		}
	}
	return merged.Encode()
}

// Retry policy of the wire layer.
const (
	maxAttempts       = 5
	retryDelayInitial = 30 * time.Second
	retryDelayStep    = 30 * time.Second
	retryDelayMax     = 600 * time.Second
)

// DefaultMaxLag is the maxlag value sent with every request.
const DefaultMaxLag = 5

// Client talks to one MediaWiki installation. All methods are meant to
// be called from a single goroutine; bots are independent processes
// and a session never runs two requests concurrently.
type Client struct {
	apiURL    string
	transport httpx.Transport
	logger    *slog.Logger
	clock     wikidate.Clock

	maxLag     int
	assertUser bool

	internalUser string // name@botpassword as sent to the API
	externalUser string // name as it appears in page histories
	loginParams  *LoginParams
	siteInfo     *SiteInfo
	tokens       map[string]string

	titlesLimit int // 50, or 500 with the apihighlimits right
	pagerLimit  int

	lastEdit          time.Time
	delayBetweenEdits time.Duration
	delayBeforeReq    time.Duration

	// emergencyStop is consulted before every write.
	emergencyStop func(ctx context.Context) bool

	// sleep is a test hook around waiting.
	sleep func(ctx context.Context, d time.Duration) error

	sessionFile string
}

// ClientOptions configures a Client. Zero values pick defaults.
type ClientOptions struct {
	Transport httpx.Transport
	Logger    *slog.Logger
	Clock     wikidate.Clock
	// MaxLag overrides the default maxlag of 5; negative disables it.
	MaxLag int
	// DelayBetweenEdits overrides the default 12 s between writes.
	DelayBetweenEdits time.Duration
	// EmergencyStop aborts writes with EmergencyStopError when true.
	EmergencyStop func(ctx context.Context) bool
	// SessionFile enables session persistence (see LoadSession).
	SessionFile string
}

// NewClient builds a client for the wiki whose api.php lives at
// apiURL.
func NewClient(apiURL string, opts ClientOptions) *Client {
	if opts.Transport == nil {
		opts.Transport = httpx.NewClient(httpx.Options{})
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = wikidate.RealClock{}
	}
	maxLag := opts.MaxLag
	if maxLag == 0 {
		maxLag = DefaultMaxLag
	}
	delay := opts.DelayBetweenEdits
	if delay == 0 {
		delay = 12 * time.Second
	}
	return &Client{
		apiURL:            apiURL,
		transport:         opts.Transport,
		logger:            opts.Logger,
		clock:             opts.Clock,
		maxLag:            maxLag,
		tokens:            make(map[string]string),
		titlesLimit:       50,
		pagerLimit:        500,
		delayBetweenEdits: delay,
		emergencyStop:     opts.EmergencyStop,
		sleep:             sleepContext,
		sessionFile:       opts.SessionFile,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExternalUserName returns the user name as it appears in histories,
// or "" when not logged in.
func (c *Client) ExternalUserName() string { return c.externalUser }

// SiteInfo returns the cached site info; LoadSiteInfo fetches it.
func (c *Client) SiteInfo() *SiteInfo { return c.siteInfo }

// TitlesLimit returns the per-request batch limit for title lists.
func (c *Client) TitlesLimit() int { return c.titlesLimit }

func (c *Client) ambientParams() url.Values {
	ambient := url.Values{}
	ambient.Set("format", "json")
	ambient.Set("formatversion", "2")
	if c.maxLag > 0 {
		ambient.Set("maxlag", strconv.Itoa(c.maxLag))
	}
	if c.assertUser {
		ambient.Set("assert", "user")
	}
	return ambient
}

// Do dispatches the request through the retry policy and returns the
// decoded JSON envelope.
func (c *Client) Do(ctx context.Context, r *Request) (*jsonv.Value, error) {
	if c.delayBeforeReq > 0 {
		if err := c.sleep(ctx, c.delayBeforeReq); err != nil {
			return nil, err
		}
	}
	canRetry := r.Method != MethodPost
	attempts := maxAttempts
	if !canRetry {
		attempts = 1
	}
	action := r.params.Get("action")

	relogged := false
	delay := retryDelayInitial
	var lastErr error
	for attempt := 0; attempt < attempts; {
		if lastErr != nil {
			c.logger.Warn("retrying API request",
				"action", action,
				"attempt", attempt+1,
				"delay", delay,
				"error", lastErr)
			metrics.APIRetries.WithLabelValues(action).Inc()
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
			delay += retryDelayStep
			if delay > retryDelayMax {
				delay = retryDelayMax
			}
		}

		result, err := c.doOnce(ctx, r)
		if err == nil {
			metrics.APIRequests.WithLabelValues(action, "success").Inc()
			return result, nil
		}

		var apiErr *APIError
		switch {
		case errors.As(err, &apiErr) && apiErr.Code == "maxlag":
			// Replication lag: wait and retry without consuming the
			// attempt budget.
			lastErr = err
			continue
		case errors.As(err, &apiErr) && apiErr.Code == "assertuserfailed" && !relogged:
			relogged = true
			c.logger.Warn("session expired, logging in again")
			if loginErr := c.relogin(ctx); loginErr != nil {
				return nil, annotate("re-login after assertuserfailed", loginErr)
			}
			lastErr = err
			continue
		}

		var lowErr *LowLevelError
		if errors.As(err, &lowErr) && canRetry {
			lastErr = err
			attempt++
			continue
		}

		metrics.APIRequests.WithLabelValues(action, "error").Inc()
		return nil, err
	}
	metrics.APIRequests.WithLabelValues(action, "error").Inc()
	return nil, lastErr
}

// doOnce performs a single exchange and classifies the failure.
func (c *Client) doOnce(ctx context.Context, r *Request) (*jsonv.Value, error) {
	query := r.encode(c.ambientParams())

	var body []byte
	var err error
	start := time.Now()
	if r.Method == MethodGet {
		body, err = c.transport.Get(ctx, c.apiURL+"?"+query)
	} else {
		body, err = c.transport.Post(ctx, c.apiURL, query)
	}
	metrics.APILatency.WithLabelValues(r.params.Get("action")).Observe(time.Since(start).Seconds())

	if err != nil {
		var httpErr *httpx.HTTPError
		if errors.As(err, &httpErr) {
			return nil, &LowLevelError{Kind: LowLevelHTTP, Err: err}
		}
		var netErr *httpx.NetworkError
		if errors.As(err, &netErr) {
			return nil, &LowLevelError{Kind: LowLevelNetwork, Err: err}
		}
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, &LowLevelError{Kind: LowLevelUnspecified, Err: err}
	}

	result, err := jsonv.Parse(string(body))
	if err != nil {
		return nil, &LowLevelError{Kind: LowLevelJSON, Err: err}
	}
	if result.Has("error") {
		return nil, classifyAPIError(result.Get("error"))
	}
	return result, nil
}

// classifyAPIError maps the API error envelope to a typed error.
func classifyAPIError(errObj *jsonv.Value) error {
	code := errObj.Get("code").Str()
	info := errObj.Get("info").Str()
	title := errObj.Get("title").Str()
	switch code {
	case "readonly":
		return &LowLevelError{Kind: LowLevelReadOnly, Err: &APIError{Code: code, Info: info}}
	case "editconflict":
		return &EditConflictError{Title: title}
	case "articleexists":
		return &PageAlreadyExistsError{Title: title}
	case "missingtitle", "nosuchrevid":
		return &PageNotFoundError{Title: title}
	case "invalidtitle":
		return &InvalidParameterError{Message: info}
	case "protectedpage", "protectednamespace", "protectednamespace-interface",
		"cascadeprotected", "customcssjsprotected", "customcssprotected", "customjsprotected":
		return &ProtectedPageError{Title: title, Code: code}
	}
	return &APIError{Code: code, Info: info}
}

// queryResult digs the "query" object out of a response, failing with
// UnexpectedAPIResponseError when absent.
func queryResult(result *jsonv.Value) (*jsonv.Value, error) {
	if !result.Has("query") {
		return nil, &UnexpectedAPIResponseError{Message: "no query object in response"}
	}
	return result.Get("query"), nil
}

// SetDelayBeforeRequests inserts a fixed wait before every request,
// for bots that must throttle reads.
func (c *Client) SetDelayBeforeRequests(d time.Duration) { c.delayBeforeReq = d }

// waitBeforeEdit blocks until delayBetweenEdits has elapsed since the
// last edit from this process. A lastEdit in the future (clock skew)
// is treated as now.
func (c *Client) waitBeforeEdit(ctx context.Context) error {
	now := time.Now()
	if c.lastEdit.After(now) {
		c.lastEdit = now
	}
	if !c.lastEdit.IsZero() {
		if wait := c.delayBetweenEdits - now.Sub(c.lastEdit); wait > 0 {
			c.logger.Debug("waiting before edit", "wait", wait)
			metrics.EditWaits.Add(wait.Seconds())
			if err := c.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	c.lastEdit = time.Now()
	return nil
}

// checkEmergencyStop consults the emergency-stop predicate.
func (c *Client) checkEmergencyStop(ctx context.Context) error {
	if c.emergencyStop != nil && c.emergencyStop(ctx) {
		return &EmergencyStopError{}
	}
	return nil
}

func quoteList(items []string, max int) string {
	if len(items) > max {
		items = items[:max]
	}
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = fmt.Sprintf("%q", item)
	}
	return strings.Join(quoted, ", ")
}
