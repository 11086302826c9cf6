package session

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"

	"golang.org/x/net/publicsuffix"
)

// Jar is an http.CookieJar whose contents can be dropped in place. The
// navigator and the API client hold the same *Jar, so a Reset is seen by both.
type Jar struct {
	mu    sync.RWMutex
	inner *cookiejar.Jar
}

func NewJar() *Jar {
	j := &Jar{}
	j.Reset()
	return j
}

// Reset discards every stored cookie.
func (j *Jar) Reset() {
	inner, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	j.mu.Lock()
	j.inner = inner
	j.mu.Unlock()
}

func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.RLock()
	inner := j.inner
	j.mu.RUnlock()
	inner.SetCookies(u, cookies)
}

func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	inner := j.inner
	j.mu.RUnlock()
	return inner.Cookies(u)
}

var _ http.CookieJar = (*Jar)(nil)
