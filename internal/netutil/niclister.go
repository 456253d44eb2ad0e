// Package netutil lists bindable network interfaces for the UI's
// output-NIC selection.
package netutil

import (
	"context"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"
)

// NIC is one interface with its usable IPv4 address. Interfaces without
// a global IPv4 address are omitted: a multicast sender cannot bind
// them.
type NIC struct {
	Name string `json:"name"` // "eth0"
	Addr string `json:"addr"` // "192.168.1.10"
}

// NICListerOptions tunes the listing.
type NICListerOptions struct {
	TTL              time.Duration // cache TTL, default 15s
	IncludeLoopback  bool          // include 127.0.0.0/8
	IncludeLinkLocal bool          // include 169.254.0.0/16
}

func (o *NICListerOptions) setDefaults() {
	if o.TTL <= 0 {
		o.TTL = 15 * time.Second
	}
}

// NICLister exposes cached IPv4 interface listing. Read-heavy usage:
// the UI polls this for its dropdown, the kernel view rarely changes.
type NICLister struct {
	mu      sync.RWMutex
	cache   []NIC
	expires time.Time
	opts    NICListerOptions
	now     func() time.Time // for tests; default time.Now
}

// NewNICLister creates the lister with provided options.
func NewNICLister(opts NICListerOptions) *NICLister {
	opts.setDefaults()
	return &NICLister{
		opts: opts,
		now:  time.Now,
	}
}

// Invalidate clears the cache so the next call refetches immediately.
func (s *NICLister) Invalidate() {
	s.mu.Lock()
	s.cache = nil
	s.expires = time.Time{}
	s.mu.Unlock()
}

// fresh returns a copy of the cache, or nil when it is empty or expired.
// Callers hold at least a read lock. A copy escapes so callers cannot
// mutate the cached slice.
func (s *NICLister) fresh() []NIC {
	if s.cache == nil || !s.now().Before(s.expires) {
		return nil
	}
	return append([]NIC(nil), s.cache...)
}

// List returns the up interfaces carrying IPv4 addresses (cached).
func (s *NICLister) List(ctx context.Context) ([]NIC, error) {
	s.mu.RLock()
	out := s.fresh()
	s.mu.RUnlock()
	if out != nil {
		return out, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine could have refreshed while we waited for the lock.
	if out := s.fresh(); out != nil {
		return out, nil
	}
	if ctx != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	nics, err := enumerate(s.opts)
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	s.cache = nics
	s.expires = s.now().Add(s.opts.TTL)
	return append([]NIC(nil), nics...), nil
}

func enumerate(opts NICListerOptions) ([]NIC, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var out []NIC
	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := ifc.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipnet.IP.To4()
			if ip == nil {
				continue
			}
			if !opts.IncludeLoopback && ip.IsLoopback() {
				continue
			}
			if !opts.IncludeLinkLocal && ip.IsLinkLocalUnicast() {
				continue
			}
			out = append(out, NIC{Name: ifc.Name, Addr: ip.String()})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
