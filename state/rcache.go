package state

import (
	"fmt"
	"net/netip"
	"slices"
	"time"
)

// RouteCache stores complete source routes that start at the local node
type RouteCache interface {
	// Lookup returns the preferred route to dst, including the local node and dst
	Lookup(dst netip.Addr) ([]netip.Addr, bool)
	// AddRoute stores path and reports whether it was not already cached
	AddRoute(path []netip.Addr) (bool, error)
	// InvalidateLink removes every route traversing the link in either direction and returns how many were removed
	InvalidateLink(a, b netip.Addr) int
	InvalidateEntriesThrough(node netip.Addr) int
	// UseExtends extends the lifetime of a route that was confirmed to work
	UseExtends(path []netip.Addr)
	Purge() int
	Routes() []RouteCacheEntry
}

type RouteCacheEntry struct {
	Path   []netip.Addr
	Added  time.Time
	Expire time.Time
}

func (e RouteCacheEntry) Destination() netip.Addr {
	return e.Path[len(e.Path)-1]
}

func (e RouteCacheEntry) String() string {
	return fmt.Sprintf("%v (expires %s)", e.Path, e.Expire.Format(time.TimeOnly))
}

// PathCache keeps up to MaxEntriesEachDst full paths per destination, ordered by hop count.
// Among equally long paths the one learned first is preferred.
type PathCache struct {
	self    netip.Addr
	clk     TimeSource
	cfg     DsrCfg
	entries map[netip.Addr][]RouteCacheEntry
}

func NewPathCache(self netip.Addr, clk TimeSource, cfg DsrCfg) *PathCache {
	return &PathCache{
		self:    self,
		clk:     clk,
		cfg:     cfg,
		entries: make(map[netip.Addr][]RouteCacheEntry),
	}
}

// ValidatePath checks that path starts at self, has at least one hop, and visits no node twice
func ValidatePath(self netip.Addr, path []netip.Addr) error {
	if len(path) < 2 {
		return fmt.Errorf("route %v has no hops", path)
	}
	if path[0] != self {
		return fmt.Errorf("route %v does not start at %s", path, self)
	}
	seen := make(map[netip.Addr]struct{}, len(path))
	for _, n := range path {
		if _, ok := seen[n]; ok {
			return fmt.Errorf("route %v visits %s twice", path, n)
		}
		seen[n] = struct{}{}
	}
	return nil
}

func (c *PathCache) Lookup(dst netip.Addr) ([]netip.Addr, bool) {
	c.purgeDst(dst)
	routes := c.entries[dst]
	if len(routes) == 0 {
		return nil, false
	}
	return slices.Clone(routes[0].Path), true
}

func (c *PathCache) AddRoute(path []netip.Addr) (bool, error) {
	if err := ValidatePath(c.self, path); err != nil {
		return false, err
	}
	added := c.add(slices.Clone(path))
	if c.cfg.EnableSubRoute {
		for i := 2; i < len(path); i++ {
			c.add(slices.Clone(path[:i]))
		}
	}
	return added, nil
}

func (c *PathCache) add(path []netip.Addr) bool {
	now := c.clk.Now()
	dst := path[len(path)-1]
	c.purgeDst(dst)
	routes := c.entries[dst]
	for i, r := range routes {
		if slices.Equal(r.Path, path) {
			routes[i].Expire = later(r.Expire, now.Add(c.cfg.MaxCacheTime))
			return false
		}
	}
	if len(routes) == 0 && len(c.entries) >= c.cfg.MaxCacheLen {
		c.evictDestination()
	}
	routes = append(routes, RouteCacheEntry{
		Path:   path,
		Added:  now,
		Expire: now.Add(c.cfg.MaxCacheTime),
	})
	// stable, so ties keep arrival order
	slices.SortStableFunc(routes, func(a, b RouteCacheEntry) int {
		return len(a.Path) - len(b.Path)
	})
	if len(routes) > c.cfg.MaxEntriesEachDst {
		routes = routes[:c.cfg.MaxEntriesEachDst]
	}
	c.entries[dst] = routes
	return slices.ContainsFunc(routes, func(r RouteCacheEntry) bool {
		return slices.Equal(r.Path, path)
	})
}

// evictDestination drops the destination whose freshest route expires first
func (c *PathCache) evictDestination() {
	var victim netip.Addr
	var victimExpiry time.Time
	for dst, routes := range c.entries {
		exp := time.Time{}
		for _, r := range routes {
			exp = later(exp, r.Expire)
		}
		if !victim.IsValid() || exp.Before(victimExpiry) || (exp.Equal(victimExpiry) && dst.Less(victim)) {
			victim = dst
			victimExpiry = exp
		}
	}
	delete(c.entries, victim)
}

func (c *PathCache) InvalidateLink(a, b netip.Addr) int {
	removed := 0
	truncated := make([][]netip.Addr, 0)
	for dst, routes := range c.entries {
		kept := routes[:0]
		for _, r := range routes {
			idx := linkIndex(r.Path, a, b)
			if idx == -1 {
				kept = append(kept, r)
				continue
			}
			removed++
			if c.cfg.EnableSubRoute && idx >= 1 {
				truncated = append(truncated, slices.Clone(r.Path[:idx+1]))
			}
		}
		c.store(dst, kept)
	}
	for _, p := range truncated {
		c.add(p)
	}
	return removed
}

// linkIndex returns i such that path[i], path[i+1] is the link a-b in either direction
func linkIndex(path []netip.Addr, a, b netip.Addr) int {
	for i := 0; i+1 < len(path); i++ {
		if (path[i] == a && path[i+1] == b) || (path[i] == b && path[i+1] == a) {
			return i
		}
	}
	return -1
}

func (c *PathCache) InvalidateEntriesThrough(node netip.Addr) int {
	removed := 0
	for dst, routes := range c.entries {
		kept := routes[:0]
		for _, r := range routes {
			if slices.Contains(r.Path[1:], node) {
				removed++
				continue
			}
			kept = append(kept, r)
		}
		c.store(dst, kept)
	}
	return removed
}

func (c *PathCache) UseExtends(path []netip.Addr) {
	if len(path) == 0 {
		return
	}
	routes := c.entries[path[len(path)-1]]
	for i, r := range routes {
		if slices.Equal(r.Path, path) {
			routes[i].Expire = later(r.Expire, c.clk.Now().Add(c.cfg.UseExtends))
		}
	}
}

func (c *PathCache) Purge() int {
	removed := 0
	for dst := range c.entries {
		removed += c.purgeDst(dst)
	}
	return removed
}

func (c *PathCache) purgeDst(dst netip.Addr) int {
	routes, ok := c.entries[dst]
	if !ok {
		return 0
	}
	now := c.clk.Now()
	kept := routes[:0]
	for _, r := range routes {
		if now.Before(r.Expire) {
			kept = append(kept, r)
		}
	}
	removed := len(routes) - len(kept)
	c.store(dst, kept)
	return removed
}

func (c *PathCache) store(dst netip.Addr, routes []RouteCacheEntry) {
	if len(routes) == 0 {
		delete(c.entries, dst)
		return
	}
	c.entries[dst] = routes
}

// Routes returns every cached route, grouped by destination in preference order
func (c *PathCache) Routes() []RouteCacheEntry {
	dsts := make([]netip.Addr, 0, len(c.entries))
	for dst := range c.entries {
		dsts = append(dsts, dst)
	}
	slices.SortFunc(dsts, netip.Addr.Compare)
	out := make([]RouteCacheEntry, 0)
	for _, dst := range dsts {
		for _, r := range c.entries[dst] {
			r.Path = slices.Clone(r.Path)
			out = append(out, r)
		}
	}
	return out
}

func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
