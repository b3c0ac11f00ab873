package state

import (
	"net/netip"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

type graKey = Pair[netip.Addr, netip.Addr]

// GraReplyEntry records when a gratuitous reply was last sent to ReplyTo about HearFrom
type GraReplyEntry struct {
	ReplyTo  netip.Addr
	HearFrom netip.Addr
	Sent     time.Time
}

// GraReplyTable rate limits unsolicited replies per (reply target, overheard node)
type GraReplyTable struct {
	clk     TimeSource
	holdoff time.Duration
	sent    *ttlcache.Cache[graKey, GraReplyEntry]
}

func NewGraReplyTable(clk TimeSource, cfg DsrCfg) *GraReplyTable {
	return &GraReplyTable{
		clk:     clk,
		holdoff: cfg.GratReplyHoldoff,
		sent: ttlcache.New[graKey, GraReplyEntry](
			ttlcache.WithTTL[graKey, GraReplyEntry](cfg.GratReplyHoldoff),
			ttlcache.WithCapacity[graKey, GraReplyEntry](uint64(cfg.GraReplyTableSize)),
			ttlcache.WithDisableTouchOnHit[graKey, GraReplyEntry](),
		),
	}
}

// FindAndUpdate reports whether a reply to replyTo about hearFrom was sent within the holdoff.
// If not, it records a reply as sent now.
func (g *GraReplyTable) FindAndUpdate(replyTo, hearFrom netip.Addr) bool {
	key := graKey{replyTo, hearFrom}
	now := g.clk.Now()
	if item := g.sent.Get(key); item != nil && now.Sub(item.Value().Sent) < g.holdoff {
		return true
	}
	g.sent.Set(key, GraReplyEntry{ReplyTo: replyTo, HearFrom: hearFrom, Sent: now}, ttlcache.DefaultTTL)
	return false
}

func (g *GraReplyTable) Gc() {
	g.sent.DeleteExpired()
}
