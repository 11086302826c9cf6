package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"oi-tracker/internal/api"
	"oi-tracker/internal/interfaces"
	"oi-tracker/internal/logger"
	"oi-tracker/internal/types"
)

// Options configures a Manager. Zero durations mean "no pause".
type Options struct {
	BaseURL        string
	UserAgents     []string
	BlockedTitles  []string
	TTL            time.Duration
	StepDelay      time.Duration
	RedirectDelay  time.Duration
	RequestTimeout time.Duration
	AcquirePolicy  api.RetryPolicy
	Limiter        *rate.Limiter
	Store          Store
}

var errBlocked = errors.New("blocked by upstream")

var _ interfaces.SessionProvider = (*Manager)(nil)

// Manager owns the single upstream session: the shared cookie jar, the
// User-Agent chosen at acquisition, and the expiry.
type Manager struct {
	opts  Options
	base  *url.URL
	jar   *Jar
	nav   *Navigator
	probe *api.Client
	store Store

	// acquireMu serializes handshakes; mu guards the fields below it.
	acquireMu  sync.Mutex
	mu         sync.RWMutex
	id         string
	userAgent  string
	acquiredAt time.Time
	expiry     time.Time

	now  func() time.Time
	pick func(n int) int
}

func NewManager(opts Options) (*Manager, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", opts.BaseURL)
	}
	if len(opts.UserAgents) == 0 {
		return nil, errors.New("at least one user agent is required")
	}
	if opts.Store == nil {
		opts.Store = NopStore{}
	}
	opts.BaseURL = base.String()

	jar := NewJar()
	m := &Manager{
		opts:  opts,
		base:  base,
		jar:   jar,
		nav:   NewNavigator(jar, opts.RequestTimeout, opts.Limiter),
		store: opts.Store,
		now:   time.Now,
		pick:  rand.Intn,
	}

	clientOpts := []api.ClientOption{
		api.WithBaseURL(opts.BaseURL),
		api.WithCookieJar(jar),
		api.WithoutRedirects(),
	}
	if opts.RequestTimeout > 0 {
		clientOpts = append(clientOpts, api.WithTimeout(opts.RequestTimeout))
	}
	if opts.Limiter != nil {
		clientOpts = append(clientOpts, api.WithRateLimiter(opts.Limiter))
	}
	m.probe = api.NewClient(clientOpts...)

	return m, nil
}

// Jar is shared with every client that talks to the upstream on behalf of this session.
func (m *Manager) Jar() http.CookieJar {
	return m.jar
}

func (m *Manager) BaseURL() string {
	return m.opts.BaseURL
}

// UserAgent returns the identity fixed at the last acquisition.
func (m *Manager) UserAgent() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.userAgent
}

func (m *Manager) valid() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.expiry.IsZero() && m.now().Before(m.expiry)
}

// Acquire runs the navigation handshake. It reports success and never
// returns an error; failures leave the session invalid.
func (m *Manager) Acquire(ctx context.Context) bool {
	m.acquireMu.Lock()
	defer m.acquireMu.Unlock()
	return m.acquireLocked(ctx)
}

// EnsureValid returns true without side effects while the session is
// unexpired, and acquires a new one otherwise.
func (m *Manager) EnsureValid(ctx context.Context) bool {
	if m.valid() {
		return true
	}

	m.acquireMu.Lock()
	defer m.acquireMu.Unlock()

	// Another caller may have finished a handshake while we waited.
	if m.valid() {
		return true
	}
	logger.Info(ctx, "Session expired or not established, creating new session")
	return m.acquireLocked(ctx)
}

// Invalidate forces the next EnsureValid to re-acquire.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expiry = time.Time{}
}

func (m *Manager) Status() types.SessionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := types.SessionStatus{
		Valid:     !m.expiry.IsZero() && m.now().Before(m.expiry),
		ID:        m.id,
		UserAgent: m.userAgent,
	}
	if !m.acquiredAt.IsZero() {
		t := m.acquiredAt
		s.AcquiredAt = &t
	}
	if !m.expiry.IsZero() {
		t := m.expiry
		s.Expiry = &t
	}
	return s
}

func (m *Manager) acquireLocked(ctx context.Context) bool {
	err := m.opts.AcquirePolicy.Run(ctx, func(ctx context.Context, attempt int) error {
		return m.handshake(ctx)
	}, func(ctx context.Context, attempt int, err error) {
		logger.Warn(ctx, "Session handshake failed, retrying", "attempt", attempt, "error", err)
	})
	if err != nil {
		logger.ErrorWithErr(ctx, "Error establishing NSE session", err)
		return false
	}
	return true
}

func (m *Manager) handshake(ctx context.Context) error {
	ua := m.opts.UserAgents[m.pick(len(m.opts.UserAgents))]

	m.Invalidate()
	m.jar.Reset()

	base := m.opts.BaseURL
	landing := api.NavigationHeaders(ua)
	landing["Sec-Fetch-User"] = "?1"

	logger.Debug(ctx, "Step 1: visiting landing page", "url", base+"/")
	page, err := m.navigate(ctx, base+"/", landing)
	if err != nil {
		return fmt.Errorf("landing page: %w", err)
	}
	if page.IsRedirect() {
		logger.Debug(ctx, "Following landing redirect", "location", page.Location)
		if err := api.Sleep(ctx, m.opts.RedirectDelay); err != nil {
			return err
		}
		if _, err := m.navigate(ctx, page.Location, api.NavigationHeaders(ua)); err != nil {
			return fmt.Errorf("landing redirect: %w", err)
		}
	}

	if err := api.Sleep(ctx, m.opts.StepDelay); err != nil {
		return err
	}

	chainPage := api.NavigationHeaders(ua)
	chainPage["Referer"] = base + "/"
	logger.Debug(ctx, "Step 2: visiting option chain page")
	if _, err := m.navigate(ctx, base+"/option-chain", chainPage); err != nil {
		return fmt.Errorf("option chain page: %w", err)
	}

	if err := api.Sleep(ctx, m.opts.StepDelay); err != nil {
		return err
	}

	logger.Debug(ctx, "Step 3: probing market status")
	resp, err := m.probe.GET(ctx, "/api/marketStatus", api.NSEHeaders(ua, base))
	if err != nil {
		return fmt.Errorf("market status probe: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("market status probe returned status %d", resp.StatusCode)
	}

	now := m.now()
	m.mu.Lock()
	m.id = uuid.NewString()
	m.userAgent = ua
	m.acquiredAt = now
	m.expiry = now.Add(m.opts.TTL)
	id, expiry := m.id, m.expiry
	m.mu.Unlock()

	logger.Session(ctx, id, "acquired", "userAgent", ua, "expiry", expiry)
	m.persist(ctx)
	return nil
}

// navigate fails on transport errors, 5xx statuses and block pages.
func (m *Manager) navigate(ctx context.Context, pageURL string, headers map[string]string) (*Page, error) {
	page, err := m.nav.Visit(ctx, pageURL, headers)
	if err != nil {
		return nil, err
	}
	if page.StatusCode >= 500 {
		return nil, fmt.Errorf("%s returned status %d", pageURL, page.StatusCode)
	}
	if m.isBlocked(page.Title) {
		return nil, fmt.Errorf("%s: %w (title %q)", pageURL, errBlocked, page.Title)
	}
	return page, nil
}

func (m *Manager) isBlocked(title string) bool {
	if title == "" {
		return false
	}
	lower := strings.ToLower(title)
	for _, marker := range m.opts.BlockedTitles {
		if marker != "" && strings.Contains(lower, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

func (m *Manager) persist(ctx context.Context) {
	m.mu.RLock()
	p := &Persisted{
		ID:        m.id,
		UserAgent: m.userAgent,
		Acquired:  m.acquiredAt,
		Expiry:    m.expiry,
		SavedAt:   m.now(),
	}
	m.mu.RUnlock()

	for _, c := range m.jar.Cookies(m.base) {
		p.Cookies = append(p.Cookies, StoredCookie{Name: c.Name, Value: c.Value})
	}

	if err := m.store.Save(p); err != nil {
		logger.ErrorWithErr(ctx, "Failed to persist session", err)
		return
	}
	logger.Debug(ctx, "Session persisted", "cookies", len(p.Cookies))
}

// Restore loads the persisted session. Cookies and identity are always
// restored; the expiry only when it is still in the future. Missing or
// corrupt records leave the session invalid.
func (m *Manager) Restore(ctx context.Context) bool {
	p, err := m.store.Load()
	if errors.Is(err, ErrNotFound) {
		logger.Info(ctx, "No persisted session found")
		return false
	}
	if err != nil {
		logger.ErrorWithErr(ctx, "Error loading persisted session", err)
		return false
	}

	m.acquireMu.Lock()
	defer m.acquireMu.Unlock()

	m.jar.Reset()
	cookies := make([]*http.Cookie, 0, len(p.Cookies))
	for _, c := range p.Cookies {
		path := c.Path
		if path == "" {
			path = "/"
		}
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value, Path: path})
	}
	m.jar.SetCookies(m.base, cookies)

	m.mu.Lock()
	m.id = p.ID
	m.userAgent = p.UserAgent
	m.acquiredAt = p.Acquired
	m.expiry = time.Time{}
	if !p.Expiry.IsZero() && m.now().Before(p.Expiry) && p.UserAgent != "" {
		m.expiry = p.Expiry
	}
	valid := !m.expiry.IsZero()
	m.mu.Unlock()

	logger.Session(ctx, p.ID, "restored", "cookies", len(cookies), "valid", valid)
	return valid
}
