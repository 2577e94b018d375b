package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// SSO endpoint paths, relative to the configured base URL. The login flow is
// a stock CAS deployment; these paths have been stable across the portal's
// upgrades.
const (
	loginPath       = "/authserver/login"
	needCaptchaPath = "/authserver/needCaptcha.html"
	captchaPath     = "/authserver/captcha.html"
	indexPath       = "/authserver/index.do"

	maxLoginRedirects = 5
)

var (
	// ErrSaltNotFound means the login page no longer publishes the
	// password encryption salt where we expect it.
	ErrSaltNotFound = errors.New("encryption salt not found on login page")
	// ErrTokenNotFound means the hidden lt form token is missing.
	ErrTokenNotFound = errors.New("login token not found on login page")
)

// saltPattern matches the inline JS assignment carrying the AES salt. The
// extraction is a hard dependency on the page's current markup.
var saltPattern = regexp.MustCompile(`var pwdDefaultEncryptSalt = "([^"]+)"`)

// Credential is one user's portal login. It is built per attempt and
// dropped as soon as the attempt resolves; nothing in this package persists
// it.
type Credential struct {
	Account  string
	Password string
}

// IndexParameters are the per-visit values extracted from the login page:
// the AES salt and the hidden lt form token. Both are consumed immediately
// by the following form submission.
type IndexParameters struct {
	Salt string
	LT   string
}

// LoginError carries the remote portal's own rejection text.
type LoginError struct {
	Message string
}

func (e *LoginError) Error() string {
	if e.Message == "" {
		return "login failed"
	}
	return "login failed: " + e.Message
}

// Options configures a Portal.
type Options struct {
	// BaseURL is the SSO server origin, e.g. https://sso.example.edu.
	BaseURL string
	// OCREndpoint is the captcha recognition service URL. Optional; logins
	// that hit a captcha fail without it.
	OCREndpoint string
	UserAgent   string
	// Timeout bounds each individual HTTP call in the login flow.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Portal drives the multi-step SSO login protocol over one Session. A Portal
// serves exactly one login attempt chain; it is not safe for concurrent use
// and is not reused across users.
type Portal struct {
	base    *url.URL
	session *Session
	ocr     *ocrClient
	logger  *slog.Logger
}

// New builds a Portal with a fresh session.
func New(opts Options) (*Portal, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("portal base URL is required")
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse portal base URL: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	p := &Portal{
		base:    base,
		session: NewSession(opts.UserAgent, opts.Timeout),
		logger:  opts.Logger,
	}
	if opts.OCREndpoint != "" {
		p.ocr = newOCRClient(opts.OCREndpoint, opts.Timeout)
	}
	return p, nil
}

// Session returns the underlying session. After a successful login the
// caller owns the authenticated session and its cookies.
func (p *Portal) Session() *Session { return p.session }

func (p *Portal) endpoint(path string) string {
	ref := &url.URL{Path: path}
	return p.base.ResolveReference(ref).String()
}

// InitialParameters clears the cookie jar and fetches the login page,
// extracting the AES salt and the hidden lt token.
func (p *Portal) InitialParameters(ctx context.Context) (*IndexParameters, error) {
	p.session.Jar().Clear()

	resp, err := p.session.Get(ctx, p.endpoint(loginPath))
	if err != nil {
		return nil, err
	}

	m := saltPattern.FindSubmatch(resp.Body)
	if m == nil {
		return nil, ErrSaltNotFound
	}

	doc, err := parseHTML(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse login page: %w", err)
	}
	lt, ok := hiddenInputValue(doc, "lt")
	if !ok {
		return nil, ErrTokenNotFound
	}

	return &IndexParameters{Salt: string(m[1]), LT: lt}, nil
}

// NeedCaptcha asks the portal whether this account must solve a captcha.
// The endpoint answers with a bare boolean literal in the body.
func (p *Portal) NeedCaptcha(ctx context.Context, account string) (bool, error) {
	u := p.endpoint(needCaptchaPath) + "?username=" + url.QueryEscape(account)
	resp, err := p.session.Get(ctx, u)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(strings.TrimSpace(string(resp.Body)), "true"), nil
}

// FetchCaptcha downloads the current captcha image.
func (p *Portal) FetchCaptcha(ctx context.Context) ([]byte, error) {
	resp, err := p.session.Get(ctx, p.endpoint(captchaPath))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("captcha fetch returned status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// RecognizeCaptcha solves image through the external OCR service.
func (p *Portal) RecognizeCaptcha(ctx context.Context, image []byte) (string, error) {
	if p.ocr == nil {
		return "", errors.New("no OCR endpoint configured")
	}
	return p.ocr.recognize(ctx, image)
}

// TryLogin runs the full login protocol for cred. On success the session
// holds an authenticated cookie set. Failure surfaces the portal's own
// error text as a LoginError where the page provides one.
func (p *Portal) TryLogin(ctx context.Context, cred Credential) error {
	params, err := p.InitialParameters(ctx)
	if err != nil {
		return err
	}

	captcha := ""
	need, err := p.NeedCaptcha(ctx, cred.Account)
	if err != nil {
		return err
	}
	if need {
		image, err := p.FetchCaptcha(ctx)
		if err != nil {
			return err
		}
		captcha, err = p.RecognizeCaptcha(ctx, image)
		if err != nil {
			return err
		}
		p.logger.Debug("captcha solved", "account", cred.Account)
	}

	encrypted, err := EncryptPassword(cred.Password, params.Salt)
	if err != nil {
		return err
	}

	form := url.Values{
		"username":        {cred.Account},
		"password":        {encrypted},
		"dllt":            {"userNamePasswordLogin"},
		"execution":       {"e1s1"},
		"_eventId":        {"submit"},
		"rmShown":         {"1"},
		"captchaResponse": {captcha},
		"lt":              {params.LT},
	}
	resp, err := p.session.PostForm(ctx, p.endpoint(loginPath), form)
	if err != nil {
		return err
	}

	if resp.StatusCode == http.StatusFound {
		p.logger.Info("login succeeded", "account", cred.Account)
		return nil
	}

	doc, perr := parseHTML(resp.Body)
	if perr != nil {
		return &LoginError{}
	}
	return &LoginError{Message: elementTextByID(doc, "msg")}
}

// PersonName follows the post-login redirect chain to the portal home page
// and extracts the user's display name. Returns "" without error when the
// page does not carry one.
func (p *Portal) PersonName(ctx context.Context) (string, error) {
	resp, err := p.session.GetWithRedirection(ctx, p.endpoint(indexPath), maxLoginRedirects)
	if err != nil {
		return "", err
	}
	doc, err := parseHTML(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse home page: %w", err)
	}
	return elementTextByClass(doc, "auth_username"), nil
}

// Login runs TryLogin and, on success, hands the authenticated session to
// the caller.
func (p *Portal) Login(ctx context.Context, cred Credential) (*Session, error) {
	if err := p.TryLogin(ctx, cred); err != nil {
		return nil, err
	}
	return p.session, nil
}
