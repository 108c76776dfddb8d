package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/agreements/internal/metrics"
	"github.com/roach88/agreements/internal/store"
)

const scrapeTimeout = 2 * time.Second

// countersCollector reports the store's record counters at scrape time.
type countersCollector struct {
	store *store.Store
	desc  *prometheus.Desc
	log   *slog.Logger
}

func newCountersCollector(st *store.Store, log *slog.Logger) *countersCollector {
	return &countersCollector{
		store: st,
		log:   log,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(metrics.DefaultNamespace, "ledger", "records"),
			"Records ever created, by kind",
			[]string{"kind"}, nil,
		),
	}
}

func (c *countersCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *countersCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), scrapeTimeout)
	defer cancel()

	counters, err := c.store.Counters(ctx)
	if err != nil {
		c.log.Warn("reading counters for metrics failed", "error", err)
		return
	}
	for kind, v := range map[string]int64{
		"accounts":   counters.Accounts,
		"contracts":  counters.Contracts,
		"agreements": counters.Agreements,
		"executions": counters.Executions,
	} {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(v), kind)
	}
}
