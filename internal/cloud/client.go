package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Client constants.
const (
	// DefaultBaseURL is the host serving the Klafs sauna app.
	DefaultBaseURL = "https://sauna-app-19.klafs.com"

	// DefaultTimeout bounds every HTTP exchange.
	DefaultTimeout = 42 * time.Second

	// AuthCookieName is the forms-authentication cookie of the web app.
	AuthCookieName = ".ASPXAUTH"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/59.0.3071.71 Safari/537.36"

	// maxBodySize caps how much of a response is read.
	maxBodySize = 1 << 20
)

// Endpoint paths relative to the base URL.
const (
	pathLogin             = "/Account/Login"
	pathGetData           = "/SaunaApp/GetData"
	pathStartCabin        = "/SaunaApp/StartCabin"
	pathStopCabin         = "/SaunaApp/StopCabin"
	pathChangeTemperature = "/SaunaApp/ChangeTemperature"
	pathChangeHumLevel    = "/SaunaApp/ChangeHumLevel"
	pathSetMode           = "/SaunaApp/SetMode"
	pathFavoriteSelected  = "/SaunaApp/FavoriteSelected"
)

// Logger is the structured logger used by the client.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Options configures a Client.
type Options struct {
	BaseURL  string
	Username string
	Password string

	// PIN is sent with StartCabin. Without it the cloud refuses power-on.
	PIN string

	// SaunaID is the appliance identifier used in every call.
	SaunaID string

	Timeout time.Duration

	// AuthCookie seeds the jar with a previously persisted session.
	AuthCookie string

	// OnSession is called with the new cookie value after every successful login.
	OnSession func(cookie string)

	Logger Logger

	// Transport overrides the HTTP transport (tests).
	Transport http.RoundTripper
}

// Client talks to the Klafs sauna web app.
//
// Thread Safety: All methods are safe for concurrent use. Logins are
// serialised.
type Client struct {
	base     *url.URL
	username string
	password string
	pin      string
	saunaID  string

	http *http.Client
	jar  *cookiejar.Jar

	onSession func(string)
	logger    Logger

	loginMu           sync.Mutex
	verificationToken string
}

// New creates a Client. It performs no network I/O.
//
// Parameters:
//   - opts: Account, appliance and transport settings
//
// Returns:
//   - *Client: Ready to use; call ValidateSession to check a persisted cookie
//   - error: If the base URL is invalid or mandatory fields are missing
func New(opts Options) (*Client, error) {
	if opts.Username == "" || opts.Password == "" {
		return nil, fmt.Errorf("username and password are required")
	}
	if opts.SaunaID == "" {
		return nil, fmt.Errorf("sauna id is required")
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c := &Client{
		base:      base,
		username:  opts.Username,
		password:  opts.Password,
		pin:       opts.PIN,
		saunaID:   opts.SaunaID,
		jar:       jar,
		onSession: opts.OnSession,
		logger:    opts.Logger,
		http: &http.Client{
			Timeout:   timeout,
			Jar:       jar,
			Transport: opts.Transport,
		},
	}

	if opts.AuthCookie != "" {
		c.setAuthCookie(opts.AuthCookie)
	}

	return c, nil
}

// SaunaID returns the appliance identifier the client is bound to.
func (c *Client) SaunaID() string {
	return c.saunaID
}

// AuthCookie returns the current session cookie value, or "" if none.
func (c *Client) AuthCookie() string {
	for _, ck := range c.jar.Cookies(c.base) {
		if ck.Name == AuthCookieName {
			return ck.Value
		}
	}
	return ""
}

// VerificationToken returns the anti-forgery token captured at the last login.
func (c *Client) VerificationToken() string {
	c.loginMu.Lock()
	defer c.loginMu.Unlock()
	return c.verificationToken
}

func (c *Client) setAuthCookie(value string) {
	c.jar.SetCookies(c.base, []*http.Cookie{{
		Name:  AuthCookieName,
		Value: value,
		Path:  "/",
	}})
}

// Login exchanges username and password for a session cookie.
//
// Returns:
//   - error: ErrLoginFailed (wrapping the cause) if no session was obtained
func (c *Client) Login(ctx context.Context) error {
	c.loginMu.Lock()
	defer c.loginMu.Unlock()

	form := url.Values{}
	form.Set("UserName", c.username)
	form.Set("Password", c.password)

	body, err := c.send(ctx, http.MethodPost, pathLogin, nil,
		strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}

	if token := extractVerificationToken(body); token != "" {
		c.verificationToken = token
	}

	cookie := c.AuthCookie()
	if cookie == "" {
		return fmt.Errorf("%w: no %s cookie in response", ErrLoginFailed, AuthCookieName)
	}

	c.logInfo("klafs login succeeded")
	if c.onSession != nil {
		c.onSession(cookie)
	}
	return nil
}

// ValidateSession issues one status request with the current cookie and
// logs in again if the cloud asks for it. Without any cookie it logs in
// directly.
func (c *Client) ValidateSession(ctx context.Context) error {
	if c.AuthCookie() == "" {
		return c.Login(ctx)
	}
	_, err := c.GetStatus(ctx)
	return err
}

// GetStatus reads the appliance status as a flat JSON object.
//
// Returns:
//   - map[string]any: Decoded top-level fields (numbers are float64)
//   - error: ErrTransport, ErrAuthRequired or ErrParse
func (c *Client) GetStatus(ctx context.Context) (map[string]any, error) {
	query := url.Values{}
	query.Set("id", c.saunaID)

	body, err := c.call(ctx, func() ([]byte, error) {
		return c.send(ctx, http.MethodGet, pathGetData, query, nil, "")
	})
	if err != nil {
		return nil, err
	}

	var status map[string]any
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	if status == nil {
		return nil, fmt.Errorf("%w: empty status", ErrParse)
	}
	return status, nil
}

// StartCabin powers the appliance on immediately using the configured PIN.
func (c *Client) StartCabin(ctx context.Context) error {
	return c.postJSON(ctx, pathStartCabin, map[string]any{
		"id":            c.saunaID,
		"pin":           c.pin,
		"time_selected": "false",
		"sel_hour":      0,
		"sel_min":       0,
	})
}

// StopCabin powers the appliance off.
func (c *Client) StopCabin(ctx context.Context) error {
	form := url.Values{}
	form.Set("id", c.saunaID)
	encoded := form.Encode()

	return c.command(ctx, func() ([]byte, error) {
		return c.send(ctx, http.MethodPost, pathStopCabin, nil,
			strings.NewReader(encoded), "application/x-www-form-urlencoded")
	})
}

// ChangeTemperature sets the target temperature of the active mode.
func (c *Client) ChangeTemperature(ctx context.Context, temperature int) error {
	return c.postJSON(ctx, pathChangeTemperature, map[string]any{
		"id":          c.saunaID,
		"temperature": temperature,
	})
}

// ChangeHumidity sets the sanarium humidity level.
func (c *Client) ChangeHumidity(ctx context.Context, level int) error {
	return c.postJSON(ctx, pathChangeHumLevel, map[string]any{
		"id":    c.saunaID,
		"level": level,
	})
}

// SetMode selects the operating mode (1 sauna, 2 sanarium, 3 infrared).
func (c *Client) SetMode(ctx context.Context, mode int) error {
	return c.postJSON(ctx, pathSetMode, map[string]any{
		"id":            c.saunaID,
		"selected_mode": mode,
	})
}

// FavoriteSelected applies temperature, humidity and IR level in one call.
func (c *Client) FavoriteSelected(ctx context.Context, temperature, humLevel, irLevel int) error {
	return c.postJSON(ctx, pathFavoriteSelected, map[string]any{
		"id":        c.saunaID,
		"temp":      temperature,
		"hum_level": humLevel,
		"ir_level":  irLevel,
	})
}

func (c *Client) postJSON(ctx context.Context, path string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	return c.command(ctx, func() ([]byte, error) {
		return c.send(ctx, http.MethodPost, path, nil, bytes.NewReader(data), "application/json")
	})
}

// command runs a configuration change and maps the safety-check notice.
func (c *Client) command(ctx context.Context, do func() ([]byte, error)) error {
	body, err := c.call(ctx, do)
	if err != nil {
		return err
	}
	if IsSecurityCheckNotice(body) {
		c.logInfo("security check on sauna not done, remote change refused")
		return ErrSecurityCheckRequired
	}
	return nil
}

// call performs do and, when the server demands a login, logs in and
// retries exactly once.
func (c *Client) call(ctx context.Context, do func() ([]byte, error)) ([]byte, error) {
	body, err := do()
	if err == nil && !loginRequired(body) {
		return body, nil
	}
	if err != nil {
		return nil, err
	}

	c.logInfo("klafs session expired, logging in again")
	if err := c.Login(ctx); err != nil {
		return nil, err
	}

	body, err = do()
	if err != nil {
		return nil, err
	}
	if loginRequired(body) {
		return nil, ErrAuthRequired
	}
	return body, nil
}

// send performs one HTTP exchange and returns the body of a 2xx response.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) ([]byte, error) {
	u := c.base.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrTransport, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logWarn("klafs server error response", "path", path, "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: %s returned HTTP %d", ErrTransport, path, resp.StatusCode)
	}

	return data, nil
}

func (c *Client) logInfo(msg string, keysAndValues ...any) {
	if c.logger != nil {
		c.logger.Info(msg, keysAndValues...)
	}
}

func (c *Client) logWarn(msg string, keysAndValues ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, keysAndValues...)
	}
}
