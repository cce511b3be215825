package application

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type metricsGalaxy struct {
	once sync.Once

	pagesIngested prometheus.Counter
	linksIngested prometheus.Counter
	linksSkipped  prometheus.Counter
	ingestions    *prometheus.CounterVec

	groupsComputed *prometheus.CounterVec
	groupNodes     prometheus.Counter
	groupLinks     prometheus.Counter

	ingestDuration *prometheus.HistogramVec
	groupDuration  *prometheus.HistogramVec
}

var galaxyMetrics metricsGalaxy

func (m *metricsGalaxy) init() {
	m.once.Do(func() {
		m.pagesIngested = prometheus.NewCounter(prometheus.CounterOpts{Name: "galaxy_ingest_pages_total", Help: "Pages upserted from page details exports"})
		m.linksIngested = prometheus.NewCounter(prometheus.CounterOpts{Name: "galaxy_ingest_links_total", Help: "Internal links inserted from links exports"})
		m.linksSkipped = prometheus.NewCounter(prometheus.CounterOpts{Name: "galaxy_ingest_links_skipped_total", Help: "Non internal link rows skipped"})
		m.ingestions = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "galaxy_ingestions_total", Help: "Ingestion runs by result"}, []string{"result"})

		m.groupsComputed = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "galaxy_groups_computed_total", Help: "Group computations by result"}, []string{"result"})
		m.groupNodes = prometheus.NewCounter(prometheus.CounterOpts{Name: "galaxy_group_nodes_total", Help: "Group nodes produced"})
		m.groupLinks = prometheus.NewCounter(prometheus.CounterOpts{Name: "galaxy_group_links_total", Help: "Group links produced"})

		buckets := []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}
		m.ingestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "galaxy_ingest_stage_seconds", Help: "Ingestion duration per stage", Buckets: buckets}, []string{"stage"})
		m.groupDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "galaxy_group_phase_seconds", Help: "Group computation duration per phase", Buckets: buckets}, []string{"phase"})

		prometheus.MustRegister(
			m.pagesIngested, m.linksIngested, m.linksSkipped, m.ingestions,
			m.groupsComputed, m.groupNodes, m.groupLinks,
			m.ingestDuration, m.groupDuration,
		)
	})
}

func recordPages(n int) { galaxyMetrics.init(); galaxyMetrics.pagesIngested.Add(float64(n)) }

func recordLinks(kept, skipped int) {
	galaxyMetrics.init()
	galaxyMetrics.linksIngested.Add(float64(kept))
	galaxyMetrics.linksSkipped.Add(float64(skipped))
}

func recordIngestion(err error) {
	galaxyMetrics.init()
	galaxyMetrics.ingestions.WithLabelValues(resultLabel(err)).Inc()
}

func recordGroup(err error, nodes, links int) {
	galaxyMetrics.init()
	galaxyMetrics.groupsComputed.WithLabelValues(resultLabel(err)).Inc()
	galaxyMetrics.groupNodes.Add(float64(nodes))
	galaxyMetrics.groupLinks.Add(float64(links))
}

func observeStage(stage string, start time.Time) {
	galaxyMetrics.init()
	galaxyMetrics.ingestDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func observePhase(phase string, start time.Time) {
	galaxyMetrics.init()
	galaxyMetrics.groupDuration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
}

func resultLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
