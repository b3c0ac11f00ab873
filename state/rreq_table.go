package state

import (
	"net/netip"
	"slices"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// RouteRequestRecord tracks discovery for a single destination
type RouteRequestRecord struct {
	Id          uint16 // id of the last request sent
	Retries     int
	TTL         uint8
	LastAttempt time.Time
}

// RequestKey identifies a flooded route request
type RequestKey struct {
	Src netip.Addr
	Id  uint16
}

// RreqTable holds the local discovery state and the seen-request and blacklist filters.
// The ttlcaches bound memory; expiry decisions are made against the table's TimeSource.
type RreqTable struct {
	clk       TimeSource
	cfg       DsrCfg
	nextId    uint16
	records   map[netip.Addr]*RouteRequestRecord
	seen      *ttlcache.Cache[RequestKey, time.Time]
	blacklist *ttlcache.Cache[netip.Addr, time.Time]
}

func NewRreqTable(clk TimeSource, cfg DsrCfg) *RreqTable {
	return &RreqTable{
		clk:     clk,
		cfg:     cfg,
		records: make(map[netip.Addr]*RouteRequestRecord),
		seen: ttlcache.New[RequestKey, time.Time](
			ttlcache.WithTTL[RequestKey, time.Time](cfg.MaxRreqTime),
			ttlcache.WithCapacity[RequestKey, time.Time](uint64(cfg.RequestTableSize*cfg.RequestTableIds)),
			ttlcache.WithDisableTouchOnHit[RequestKey, time.Time](),
		),
		blacklist: ttlcache.New[netip.Addr, time.Time](
			ttlcache.WithTTL[netip.Addr, time.Time](cfg.BlacklistTimeout),
			ttlcache.WithDisableTouchOnHit[netip.Addr, time.Time](),
		),
	}
}

// NextId returns a fresh request id, wrapping at MaxRreqId
func (t *RreqTable) NextId() uint16 {
	id := t.nextId
	t.nextId = uint16((int(t.nextId) + 1) % int(t.cfg.MaxRreqId))
	return id
}

// RecordAttempt registers a new request for dst and returns its id and the number of attempts so far.
// When the table is full the destination with the oldest attempt is evicted and returned,
// otherwise evicted is the zero Addr.
func (t *RreqTable) RecordAttempt(dst netip.Addr, ttl uint8) (id uint16, attempts int, evicted netip.Addr) {
	rec, ok := t.records[dst]
	if !ok {
		if len(t.records) >= t.cfg.RequestTableSize {
			evicted = t.evictOldest()
		}
		rec = &RouteRequestRecord{}
		t.records[dst] = rec
	}
	rec.Id = t.NextId()
	rec.Retries++
	rec.TTL = ttl
	rec.LastAttempt = t.clk.Now()
	return rec.Id, rec.Retries, evicted
}

func (t *RreqTable) evictOldest() netip.Addr {
	var victim netip.Addr
	var oldest time.Time
	for dst, rec := range t.records {
		if !victim.IsValid() || rec.LastAttempt.Before(oldest) || (rec.LastAttempt.Equal(oldest) && dst.Less(victim)) {
			victim = dst
			oldest = rec.LastAttempt
		}
	}
	delete(t.records, victim)
	return victim
}

func (t *RreqTable) Get(dst netip.Addr) (RouteRequestRecord, bool) {
	rec, ok := t.records[dst]
	if !ok {
		return RouteRequestRecord{}, false
	}
	return *rec, true
}

func (t *RreqTable) Retries(dst netip.Addr) int {
	if rec, ok := t.records[dst]; ok {
		return rec.Retries
	}
	return 0
}

// Clear ends discovery for dst
func (t *RreqTable) Clear(dst netip.Addr) {
	delete(t.records, dst)
}

// Pending returns the destinations with discovery in progress, sorted
func (t *RreqTable) Pending() []netip.Addr {
	out := make([]netip.Addr, 0, len(t.records))
	for dst := range t.records {
		out = append(out, dst)
	}
	slices.SortFunc(out, netip.Addr.Compare)
	return out
}

func (t *RreqTable) HasSeen(src netip.Addr, id uint16) bool {
	item := t.seen.Get(RequestKey{src, id})
	if item == nil {
		return false
	}
	return t.clk.Now().Sub(item.Value()) < t.cfg.MaxRreqTime
}

func (t *RreqTable) MarkSeen(src netip.Addr, id uint16) {
	t.seen.Set(RequestKey{src, id}, t.clk.Now(), ttlcache.DefaultTTL)
}

// Blacklist ignores route requests transmitted by neighbour for BlacklistTimeout
func (t *RreqTable) Blacklist(neighbour netip.Addr) {
	t.blacklist.Set(neighbour, t.clk.Now().Add(t.cfg.BlacklistTimeout), ttlcache.DefaultTTL)
}

func (t *RreqTable) IsBlacklisted(neighbour netip.Addr) bool {
	item := t.blacklist.Get(neighbour)
	if item == nil {
		return false
	}
	if t.clk.Now().Before(item.Value()) {
		return true
	}
	t.blacklist.Delete(neighbour)
	return false
}

func (t *RreqTable) Gc() {
	t.seen.DeleteExpired()
	t.blacklist.DeleteExpired()
}
