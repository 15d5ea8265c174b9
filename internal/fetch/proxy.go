package fetch

import (
	"sync"

	"github.com/tulashvilimindia/batumi.work/internal/metrics"
)

// ProxyRotator hands out proxies round-robin, skipping ones marked failed.
// Once every proxy has failed the failed set is cleared so an outage does
// not blacklist the whole pool for good.
type ProxyRotator struct {
	mu      sync.Mutex
	proxies []string
	failed  map[string]struct{}
	next    int
}

// NewProxyRotator copies proxies; an empty list yields a rotator that never
// returns a proxy.
func NewProxyRotator(proxies []string) *ProxyRotator {
	list := make([]string, 0, len(proxies))
	for _, p := range proxies {
		if p != "" {
			list = append(list, p)
		}
	}
	return &ProxyRotator{proxies: list, failed: make(map[string]struct{})}
}

// Next returns the next healthy proxy.
func (r *ProxyRotator) Next() (string, bool) {
	if r == nil {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.proxies) == 0 {
		return "", false
	}
	if len(r.failed) >= len(r.proxies) {
		r.failed = make(map[string]struct{})
	}
	for range r.proxies {
		p := r.proxies[r.next%len(r.proxies)]
		r.next = (r.next + 1) % len(r.proxies)
		if _, bad := r.failed[p]; !bad {
			return p, true
		}
	}
	return "", false
}

// MarkFailed excludes proxy until the failed set is reset.
func (r *ProxyRotator) MarkFailed(proxy string) {
	if r == nil || proxy == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.failed[proxy]; !ok {
		r.failed[proxy] = struct{}{}
		metrics.ObserveProxyFailure()
	}
}

// Len is the pool size.
func (r *ProxyRotator) Len() int {
	if r == nil {
		return 0
	}
	return len(r.proxies)
}
