package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const scrapeTimeout = 2 * time.Second

func registerOutboxMetrics(reg prometheus.Registerer, count CountFunc, logger logrus.FieldLogger) {
	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "event_outbox_pending",
			Help: "Outbox records not yet delivered",
		},
		func() float64 {
			return queryCount(count, logger)
		},
	))
}

func queryCount(count CountFunc, logger logrus.FieldLogger) float64 {
	ctx, cancel := context.WithTimeout(context.Background(), scrapeTimeout)
	defer cancel()
	n, err := count(ctx)
	if err != nil {
		if logger != nil {
			logger.WithError(err).Warn("metrics query failed")
		}
		return 0
	}
	if n < 0 {
		return 0
	}
	return float64(n)
}
