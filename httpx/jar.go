package httpx

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// Jar is a cookie jar that remembers whether each cookie was installed
// by the client (restored from a session file) or set by the server.
// Only server-set cookies carry session state worth persisting, but
// both kinds are sent on requests.
type Jar struct {
	mu      sync.Mutex
	cookies map[string]map[string]jarEntry // host -> name -> entry
}

type jarEntry struct {
	value     string
	serverSet bool
}

// NewJar returns an empty jar.
func NewJar() *Jar {
	return &Jar{cookies: make(map[string]map[string]jarEntry)}
}

// SetCookies implements http.CookieJar; cookies arriving through it are
// marked server-set.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	host := j.hostMap(u.Hostname())
	for _, c := range cookies {
		if c.MaxAge < 0 {
			delete(host, c.Name)
			continue
		}
		host[c.Name] = jarEntry{value: c.Value, serverSet: true}
	}
}

// Cookies implements http.CookieJar.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	host := j.cookies[u.Hostname()]
	names := make([]string, 0, len(host))
	for name := range host {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*http.Cookie, 0, len(names))
	for _, name := range names {
		out = append(out, &http.Cookie{Name: name, Value: host[name].value})
	}
	return out
}

// SetClientCookie installs a cookie as if the caller had received it in
// a previous session. It is not marked server-set.
func (j *Jar) SetClientCookie(hostname, name, value string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.hostMap(hostname)[name] = jarEntry{value: value}
}

// Clear drops every cookie.
func (j *Jar) Clear() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cookies = make(map[string]map[string]jarEntry)
}

// Serialize renders the cookies for hostname as "name=value" pairs
// joined with "; ", in name order, suitable for a session file line.
func (j *Jar) Serialize(hostname string) string {
	j.mu.Lock()
	defer j.mu.Unlock()
	host := j.cookies[hostname]
	names := make([]string, 0, len(host))
	for name := range host {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+host[name].value)
	}
	return strings.Join(parts, "; ")
}

// Restore installs cookies from a Serialize string as client-set.
func (j *Jar) Restore(hostname, serialized string) {
	for _, part := range strings.Split(serialized, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		j.SetClientCookie(hostname, name, value)
	}
}

func (j *Jar) hostMap(hostname string) map[string]jarEntry {
	host, ok := j.cookies[hostname]
	if !ok {
		host = make(map[string]jarEntry)
		j.cookies[hostname] = host
	}
	return host
}
