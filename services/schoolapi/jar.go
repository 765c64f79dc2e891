package schoolapi

import (
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// PersistentJar is a cookie jar that mirrors the backend's credential cookies
// to disk, the way a browser persists its cookie store. Session state and
// credentials are persisted separately: the state record never contains
// tokens.
type PersistentJar struct {
	mu      sync.Mutex
	inner   *cookiejar.Jar
	path    string
	baseURL *url.URL
}

var _ http.CookieJar = (*PersistentJar)(nil)

func NewPersistentJar(path, baseURL string) (*PersistentJar, error) {
	inner, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating cookie jar")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parsing backend URL")
	}
	if err = os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "creating cookie dir")
	}

	jar := &PersistentJar{inner: inner, path: path, baseURL: u}
	jar.load()
	return jar, nil
}

func (j *PersistentJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.inner.SetCookies(u, cookies)
	j.save()
}

func (j *PersistentJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.inner.Cookies(u)
}

// Clear drops all cookies, in memory and on disk.
func (j *PersistentJar) Clear() {
	j.mu.Lock()
	defer j.mu.Unlock()
	inner, err := cookiejar.New(nil)
	if err != nil {
		return
	}
	j.inner = inner
	_ = os.Remove(j.path)
}

type storedCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (j *PersistentJar) load() {
	data, err := os.ReadFile(j.path)
	if err != nil {
		return
	}
	var stored []storedCookie
	if err = json.Unmarshal(data, &stored); err != nil {
		return
	}
	cookies := make([]*http.Cookie, 0, len(stored))
	for _, sc := range stored {
		cookies = append(cookies, &http.Cookie{Name: sc.Name, Value: sc.Value})
	}
	j.inner.SetCookies(j.baseURL, cookies)
}

func (j *PersistentJar) save() {
	cookies := j.inner.Cookies(j.baseURL)
	stored := make([]storedCookie, 0, len(cookies))
	for _, c := range cookies {
		stored = append(stored, storedCookie{Name: c.Name, Value: c.Value})
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return
	}
	tmp := j.path + ".tmp"
	if err = os.WriteFile(tmp, data, 0o600); err != nil {
		return
	}
	_ = os.Rename(tmp, j.path)
}
