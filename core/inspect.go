package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/encodeous/skein/state"
)

// Inspect renders the engine tables for operators
func (d *Dsr) Inspect() string {
	sb := strings.Builder{}
	now := d.sched.Now()

	sb.WriteString("Route Cache:\n")
	rt := make([]string, 0)
	for _, e := range d.cache.Routes() {
		rt = append(rt, fmt.Sprintf(" - %s: %s expires %.2fs",
			d.book.Name(e.Destination()), strings.Join(d.book.Names(e.Path), " -> "), e.Expire.Sub(now).Seconds()))
	}
	writeSection(&sb, rt)

	sb.WriteString("\n\nPending Discovery:\n")
	rt = make([]string, 0)
	for _, dst := range d.rreq.Pending() {
		rec, _ := d.rreq.Get(dst)
		rt = append(rt, fmt.Sprintf(" - %s: attempts=%d ttl=%d last=%.2fs ago",
			d.book.Name(dst), rec.Retries, rec.TTL, now.Sub(rec.LastAttempt).Seconds()))
	}
	writeSection(&sb, rt)

	sb.WriteString("\n\nSend Buffer:\n")
	rt = make([]string, 0)
	for _, dst := range d.sendBuf.Destinations() {
		rt = append(rt, fmt.Sprintf(" - %s", d.book.Name(dst)))
	}
	writeSection(&sb, rt)
	sb.WriteString(fmt.Sprintf("%d packets queued\n", d.sendBuf.Len()))

	sb.WriteString("\n\nMaintenance:\n")
	rt = make([]string, 0)
	for _, k := range d.maintBuf.Keys() {
		e, _ := d.maintBuf.Get(k)
		rt = append(rt, fmt.Sprintf(" - #%d %s -> %s via %s tx=%d netack=%t",
			k.AckId, d.book.Name(k.Source), d.book.Name(k.Destination), d.book.Name(k.NextHop), e.TxCount, e.NetworkAck))
	}
	writeSection(&sb, rt)
	return sb.String()
}

func writeSection(sb *strings.Builder, lines []string) {
	if len(lines) == 0 {
		lines = append(lines, " (none)")
	}
	slices.Sort(lines)
	sb.WriteString(strings.Join(lines, "\n") + "\n")
}

// Debug serves the expvar metrics and the inspect page on DebugAddr
type Debug struct {
	srv *http.Server
}

func (d *Debug) Init(s *state.State) error {
	if s.DebugAddr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/debug/", http.DefaultServeMux)
	mux.HandleFunc("/debug/inspect", func(w http.ResponseWriter, r *http.Request) {
		res, err := s.DispatchWait(func(s *state.State) (any, error) {
			return Get[*Node](s).Inspect(), nil
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(res.(string)))
	})
	d.srv = &http.Server{
		Addr:              s.DebugAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := d.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Log.Warn("debug server stopped", "error", err)
		}
	}()
	s.Log.Info("serving debug endpoints", "addr", s.DebugAddr)
	return nil
}

func (d *Debug) Cleanup(s *state.State) error {
	if d.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return d.srv.Shutdown(ctx)
}
