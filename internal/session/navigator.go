package session

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"
)

// Page is what a single navigation step observed.
type Page struct {
	URL        string
	StatusCode int
	Location   string // resolved redirect target for 3xx responses
	Title      string
	Body       []byte
}

// IsRedirect reports a 301/302 with a usable Location.
func (p *Page) IsRedirect() bool {
	return (p.StatusCode == http.StatusMovedPermanently || p.StatusCode == http.StatusFound) && p.Location != ""
}

// Navigator performs browser-style page loads that share one cookie jar.
// Redirects are never followed automatically.
type Navigator struct {
	jar     http.CookieJar
	timeout time.Duration
	limiter *rate.Limiter
}

func NewNavigator(jar http.CookieJar, timeout time.Duration, limiter *rate.Limiter) *Navigator {
	return &Navigator{jar: jar, timeout: timeout, limiter: limiter}
}

// Visit loads pageURL with the given headers. Transport failures are
// returned as errors; HTTP statuses of any value are reported on the Page.
func (n *Navigator) Visit(ctx context.Context, pageURL string, headers map[string]string) (*Page, error) {
	if n.limiter != nil {
		if err := n.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.StdlibContext(ctx),
	)
	c.SetCookieJar(n.jar)
	if n.timeout > 0 {
		c.SetRequestTimeout(n.timeout)
	}
	c.SetRedirectHandler(func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	})

	c.OnRequest(func(r *colly.Request) {
		for k, v := range headers {
			r.Headers.Set(k, v)
		}
	})

	page := &Page{URL: pageURL}
	c.OnResponse(func(r *colly.Response) {
		page.StatusCode = r.StatusCode
		page.Body = r.Body
		if loc := r.Headers.Get("Location"); loc != "" {
			page.Location = r.Request.AbsoluteURL(loc)
		}
		page.Title = pageTitle(r.Body)
	})

	if err := c.Visit(pageURL); err != nil {
		return nil, fmt.Errorf("visit %s: %w", pageURL, err)
	}
	if page.StatusCode == 0 {
		return nil, fmt.Errorf("visit %s: no response", pageURL)
	}
	return page, nil
}

func pageTitle(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}
