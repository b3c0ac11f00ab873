package state

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

func newRreqTable(cfg DsrCfg) (*RreqTable, *clock.Mock) {
	clk := clock.NewMock()
	return NewRreqTable(clk, cfg.WithDefaults()), clk
}

func TestRreqTable_RecordAttempt(t *testing.T) {
	tbl, clk := newRreqTable(DsrCfg{})
	id1, n, evicted := tbl.RecordAttempt(ip(9), 1)
	assert.Equal(t, 1, n)
	assert.False(t, evicted.IsValid())
	clk.Add(time.Second)
	id2, n, _ := tbl.RecordAttempt(ip(9), 2)
	assert.Equal(t, 2, n)
	assert.Equal(t, id1+1, id2)

	rec, ok := tbl.Get(ip(9))
	assert.True(t, ok)
	assert.Equal(t, uint8(2), rec.TTL)
	assert.Equal(t, clk.Now(), rec.LastAttempt)
	assert.Equal(t, 2, tbl.Retries(ip(9)))

	tbl.Clear(ip(9))
	assert.Equal(t, 0, tbl.Retries(ip(9)))
	assert.Empty(t, tbl.Pending())
}

func TestRreqTable_IdWraps(t *testing.T) {
	tbl, _ := newRreqTable(DsrCfg{MaxRreqId: 3})
	ids := make([]uint16, 0)
	for range 5 {
		ids = append(ids, tbl.NextId())
	}
	assert.Equal(t, []uint16{0, 1, 2, 0, 1}, ids)
}

func TestRreqTable_Bounded(t *testing.T) {
	tbl, clk := newRreqTable(DsrCfg{RequestTableSize: 2})
	tbl.RecordAttempt(ip(7), 1)
	clk.Add(time.Millisecond)
	_, _, evicted := tbl.RecordAttempt(ip(8), 1)
	assert.False(t, evicted.IsValid())
	clk.Add(time.Millisecond)
	_, _, evicted = tbl.RecordAttempt(ip(9), 1)
	assert.Equal(t, ip(7), evicted)
	assert.Equal(t, addrPath(8, 9), tbl.Pending())

	// a retry for a tracked destination evicts nothing
	_, n, evicted := tbl.RecordAttempt(ip(8), 2)
	assert.Equal(t, 2, n)
	assert.False(t, evicted.IsValid())
}

func TestRreqTable_Seen(t *testing.T) {
	tbl, clk := newRreqTable(DsrCfg{MaxRreqTime: time.Hour})
	assert.False(t, tbl.HasSeen(ip(2), 5))
	tbl.MarkSeen(ip(2), 5)
	assert.True(t, tbl.HasSeen(ip(2), 5))
	assert.False(t, tbl.HasSeen(ip(3), 5))
	assert.False(t, tbl.HasSeen(ip(2), 6))

	clk.Add(2 * time.Hour)
	assert.False(t, tbl.HasSeen(ip(2), 5))
}

func TestRreqTable_Blacklist(t *testing.T) {
	tbl, clk := newRreqTable(DsrCfg{BlacklistTimeout: time.Minute})
	tbl.Blacklist(ip(4))
	assert.True(t, tbl.IsBlacklisted(ip(4)))
	assert.False(t, tbl.IsBlacklisted(ip(5)))
	clk.Add(time.Minute)
	assert.False(t, tbl.IsBlacklisted(ip(4)))
	tbl.Gc()
}

func TestGraReplyTable(t *testing.T) {
	clk := clock.NewMock()
	g := NewGraReplyTable(clk, DsrCfg{GratReplyHoldoff: time.Minute}.WithDefaults())
	assert.False(t, g.FindAndUpdate(ip(1), ip(2)))
	assert.True(t, g.FindAndUpdate(ip(1), ip(2)))
	assert.False(t, g.FindAndUpdate(ip(1), ip(3)))
	clk.Add(time.Minute)
	assert.False(t, g.FindAndUpdate(ip(1), ip(2)))
	g.Gc()
}
