package mwclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"github.com/orlodrim/wikibot/httpx"
	"github.com/orlodrim/wikibot/metrics"
)

// Token kinds cached on the client. Login tokens are fetched fresh
// every time.
const (
	TokenCSRF  = "csrf"
	TokenWatch = "watch"
	tokenLogin = "login"
)

// LoginParams configures Login.
type LoginParams struct {
	// UserName is "Name" or "Name@BotPasswordName".
	UserName string
	Password string
	// UseLegacyLogin selects action=login instead of clientlogin.
	// Required for bot passwords, which clientlogin rejects.
	UseLegacyLogin bool
	// OTPPrompt supplies the one-time code when the wiki asks for a
	// second factor; TerminalOTPPrompt reads it from the terminal.
	OTPPrompt func() (string, error)
}

// externalName strips the bot-password suffix from an internal user
// name.
func externalName(internal string) string {
	if i := strings.IndexByte(internal, '@'); i >= 0 {
		return internal[:i]
	}
	return internal
}

// TerminalOTPPrompt reads a one-time code from the controlling
// terminal without echo.
func TerminalOTPPrompt() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", &InvalidStateError{Message: "two-factor code required but stdin is not a terminal"}
	}
	fmt.Fprint(os.Stderr, "One-time code: ")
	code, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(code)), nil
}

// fetchToken requests a fresh token of the given kind.
func (c *Client) fetchToken(ctx context.Context, kind string) (string, error) {
	req := NewRequest("query")
	req.Set("meta", "tokens")
	req.Set("type", kind)
	req.Method = MethodPostNoSideEffect
	result, err := c.Do(ctx, req)
	if err != nil {
		return "", annotate("fetching "+kind+" token", err)
	}
	query, err := queryResult(result)
	if err != nil {
		return "", err
	}
	token := query.Get("tokens").Get(kind + "token").Str()
	if token == "" {
		return "", &UnexpectedAPIResponseError{Message: "no " + kind + " token in response"}
	}
	return token, nil
}

// getToken returns a cached CSRF or watch token, fetching on a miss.
func (c *Client) getToken(ctx context.Context, kind string) (string, error) {
	if kind != tokenLogin {
		if token, ok := c.tokens[kind]; ok {
			return token, nil
		}
	}
	token, err := c.fetchToken(ctx, kind)
	if err != nil {
		return "", err
	}
	if kind != tokenLogin {
		c.tokens[kind] = token
	}
	return token, nil
}

// invalidateTokens drops every cached token, after a badtoken error.
func (c *Client) invalidateTokens() {
	c.tokens = make(map[string]string)
	metrics.TokenInvalidations.Inc()
}

// Login authenticates and loads site info. With a SessionFile
// configured, a persisted session matching the parameters is reused
// and a fresh login is persisted for the next run.
func (c *Client) Login(ctx context.Context, params LoginParams) error {
	if c.sessionFile != "" && c.loadSession(ctx, params) {
		return nil
	}
	if err := c.loginFresh(ctx, params); err != nil {
		metrics.AuthFailures.WithLabelValues("login").Inc()
		return err
	}
	if c.siteInfo == nil {
		if err := c.LoadSiteInfo(ctx); err != nil {
			return err
		}
	}
	if c.sessionFile != "" {
		if err := c.saveSession(); err != nil {
			c.logger.Warn("saving session failed", "file", c.sessionFile, "error", err)
		}
	}
	return nil
}

func (c *Client) loginFresh(ctx context.Context, params LoginParams) error {
	loginToken, err := c.getToken(ctx, tokenLogin)
	if err != nil {
		return err
	}
	if params.UseLegacyLogin {
		err = c.legacyLogin(ctx, params, loginToken)
	} else {
		err = c.clientLogin(ctx, params, loginToken)
	}
	if err != nil {
		return err
	}

	c.internalUser = params.UserName
	c.externalUser = externalName(params.UserName)
	c.loginParams = &params
	c.assertUser = true
	c.invalidateTokens()
	if err := c.loadLimits(ctx); err != nil {
		return err
	}
	c.logger.Info("logged in", "user", c.externalUser, "titles_limit", c.titlesLimit)
	return nil
}

func (c *Client) clientLogin(ctx context.Context, params LoginParams, loginToken string) error {
	req := NewRequest("clientlogin")
	req.Method = MethodPost
	req.Set("username", params.UserName)
	req.Set("password", params.Password)
	req.Set("logintoken", loginToken)
	req.Set("loginreturnurl", c.apiURL)

	result, err := c.Do(ctx, req)
	if err != nil {
		return annotate("clientlogin", err)
	}
	status := result.Get("clientlogin").Get("status").Str()
	if status == "UI" {
		// Two-factor step: re-POST with the one-time code.
		if params.OTPPrompt == nil {
			return &InvalidStateError{Message: "wiki requires a two-factor code but no OTP prompt is configured"}
		}
		code, err := params.OTPPrompt()
		if err != nil {
			return annotate("reading one-time code", err)
		}
		req = NewRequest("clientlogin")
		req.Method = MethodPost
		req.Set("logintoken", loginToken)
		req.Set("logincontinue", "1")
		req.Set("OATHToken", code)
		result, err = c.Do(ctx, req)
		if err != nil {
			return annotate("clientlogin continue", err)
		}
		status = result.Get("clientlogin").Get("status").Str()
	}
	if status != "PASS" {
		message := result.Get("clientlogin").Get("message").Str()
		return &APIError{Code: "loginfailed", Info: strings.TrimSpace(status + " " + message)}
	}
	return nil
}

func (c *Client) legacyLogin(ctx context.Context, params LoginParams, loginToken string) error {
	req := NewRequest("login")
	req.Method = MethodPost
	req.Set("lgname", params.UserName)
	req.Set("lgpassword", params.Password)
	req.Set("lgtoken", loginToken)

	result, err := c.Do(ctx, req)
	if err != nil {
		return annotate("login", err)
	}
	login := result.Get("login")
	if r := login.Get("result").Str(); r != "Success" {
		return &APIError{Code: "loginfailed", Info: strings.TrimSpace(r + " " + login.Get("reason").Str())}
	}
	return nil
}

// relogin re-authenticates with the stored parameters after
// assertuserfailed. Only password-less re-login through the session
// cookie refresh is possible here, so it re-runs the legacy login with
// cached parameters when available.
func (c *Client) relogin(ctx context.Context) error {
	if c.loginParams == nil {
		return &InvalidStateError{Message: "session expired and no login parameters are stored"}
	}
	c.invalidateTokens()
	return c.loginFresh(ctx, *c.loginParams)
}

// loadLimits reads the logged-in user's rights to pick batch limits:
// apihighlimits raises title batches from 50 to 500 and pager pages
// from 500 to 5000.
func (c *Client) loadLimits(ctx context.Context) error {
	req := NewRequest("query")
	req.Set("meta", "userinfo")
	req.Set("uiprop", "rights|groups")
	result, err := c.Do(ctx, req)
	if err != nil {
		return annotate("loading user info", err)
	}
	query, err := queryResult(result)
	if err != nil {
		return err
	}
	rights := query.Get("userinfo").Get("rights")
	for i := 0; i < rights.Len(); i++ {
		if rights.Index(i).Str() == "apihighlimits" {
			c.titlesLimit = 500
			c.pagerLimit = 5000
			break
		}
	}
	return nil
}

// Session file format: one key per line, url=, user=, session=,
// siteinfo=.
func (c *Client) saveSession() error {
	jarClient, ok := c.transport.(*httpx.Client)
	if !ok {
		return &InvalidStateError{Message: "session persistence needs the cookie-jar transport"}
	}
	host, err := apiHost(c.apiURL)
	if err != nil {
		return err
	}
	siteInfoJSON, err := json.Marshal(c.siteInfo)
	if err != nil {
		return err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "url=%s\n", c.apiURL)
	fmt.Fprintf(&sb, "user=%s\n", c.internalUser)
	fmt.Fprintf(&sb, "session=%s\n", jarClient.Jar().Serialize(host))
	fmt.Fprintf(&sb, "siteinfo=%s\n", siteInfoJSON)

	tmp := c.sessionFile + ".tmp"
	if err := os.WriteFile(tmp, []byte(sb.String()), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, c.sessionFile)
}

// loadSession restores a persisted session when it matches the login
// parameters and the cookies still authenticate. Returns false to fall
// back to a fresh login.
func (c *Client) loadSession(ctx context.Context, params LoginParams) bool {
	data, err := os.ReadFile(c.sessionFile)
	if err != nil {
		return false
	}
	fields := map[string]string{}
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			c.logger.Warn("malformed session file", "file", c.sessionFile)
			return false
		}
		fields[key] = value
	}
	if fields["url"] != c.apiURL || fields["user"] != params.UserName {
		return false
	}
	jarClient, ok := c.transport.(*httpx.Client)
	if !ok {
		return false
	}
	host, err := apiHost(c.apiURL)
	if err != nil {
		return false
	}
	jarClient.Jar().Restore(host, fields["session"])
	si := &SiteInfo{}
	if err := json.Unmarshal([]byte(fields["siteinfo"]), si); err != nil {
		return false
	}

	c.internalUser = params.UserName
	c.externalUser = externalName(params.UserName)
	c.siteInfo = si
	c.assertUser = true
	c.loginParams = &params
	if err := c.loadLimits(ctx); err != nil {
		c.logger.Warn("persisted session rejected", "error", err)
		c.assertUser = false
		c.internalUser = ""
		c.externalUser = ""
		return false
	}
	c.logger.Info("session restored", "user", c.externalUser, "file", filepath.Base(c.sessionFile))
	return true
}

func apiHost(apiURL string) (string, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return "", err
	}
	return u.Hostname(), nil
}
