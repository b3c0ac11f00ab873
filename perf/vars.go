package perf

import (
	"expvar"
	"net/http"

	"github.com/encodeous/metric"
)

var (
	DispatchLatency = metric.NewHistogram("1m1s")
	SendBatchSize   = metric.NewHistogram("10s1s")
	RecvBatchSize   = metric.NewHistogram("10s1s")

	SentFramesPerSecond = metric.NewCounter("10s1s")
	RecvFramesPerSecond = metric.NewCounter("10s1s")
	SentBytesPerSecond  = metric.NewCounter("10s1s")
	RecvBytesPerSecond  = metric.NewCounter("10s1s")

	RequestsPerSecond    = metric.NewCounter("10s1s")
	RepliesPerSecond     = metric.NewCounter("10s1s")
	RouteErrorsPerSecond = metric.NewCounter("10s1s")
	AcksPerSecond        = metric.NewCounter("10s1s")
	RetransmitsPerSecond = metric.NewCounter("10s1s")
	SalvagesPerSecond    = metric.NewCounter("10s1s")
	DropsPerSecond       = metric.NewCounter("10s1s")
	DeliveredPerSecond   = metric.NewCounter("10s1s")
)

func init() {
	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	expvar.Publish("skein:SendBatchSize", SendBatchSize)
	expvar.Publish("skein:RecvBatchSize", RecvBatchSize)

	expvar.Publish("skein:SentFrames/s", SentFramesPerSecond)
	expvar.Publish("skein:RecvFrames/s", RecvFramesPerSecond)
	expvar.Publish("skein:SentBytes/s", SentBytesPerSecond)
	expvar.Publish("skein:RecvBytes/s", RecvBytesPerSecond)

	expvar.Publish("skein:Requests/s", RequestsPerSecond)
	expvar.Publish("skein:Replies/s", RepliesPerSecond)
	expvar.Publish("skein:RouteErrors/s", RouteErrorsPerSecond)
	expvar.Publish("skein:Acks/s", AcksPerSecond)
	expvar.Publish("skein:Retransmits/s", RetransmitsPerSecond)
	expvar.Publish("skein:Salvages/s", SalvagesPerSecond)
	expvar.Publish("skein:Drops/s", DropsPerSecond)
	expvar.Publish("skein:Delivered/s", DeliveredPerSecond)
	expvar.Publish("skein:DispatchLatency (µs)", DispatchLatency)
}
