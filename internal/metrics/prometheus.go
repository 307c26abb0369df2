package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RefreshAttemptsTotal prometheus.Counter
	RefreshDedupedTotal  prometheus.Counter
	RefreshFailuresTotal prometheus.Counter
	RetriesTotal         prometheus.Counter
	LoginsTotal          prometheus.Counter
	LogoutsTotal         prometheus.Counter
)

func init() {
	RefreshAttemptsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authflow_refresh_attempts_total",
		Help: "Total number of refresh network calls issued.",
	})
	RefreshDedupedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authflow_refresh_deduped_total",
		Help: "Total number of refresh requests served by an already in-flight call.",
	})
	RefreshFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authflow_refresh_failures_total",
		Help: "Total number of failed refresh cycles.",
	})
	RetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authflow_request_retries_total",
		Help: "Total number of requests resent after a corrective refresh.",
	})
	LoginsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authflow_logins_total",
		Help: "Total number of successful logins.",
	})
	LogoutsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authflow_logouts_total",
		Help: "Total number of logouts.",
	})
}

// Register registers the pipeline metrics with reg. Registration errors
// are returned so embedders can decide how strict to be about duplicate
// collectors.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		RefreshAttemptsTotal,
		RefreshDedupedTotal,
		RefreshFailuresTotal,
		RetriesTotal,
		LoginsTotal,
		LogoutsTotal,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
