// Package metrics exposes frame stream counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bryanchriswhite/cvmmap/internal/stream"
)

const (
	namespace = "cvmmap"
	subsystem = "stream"
)

// StatsSource returns the latest stream stats.
type StatsSource interface {
	Stats() stream.Stats
}

// Collector reads stream stats on every scrape.
type Collector struct {
	src StatsSource

	received     *prometheus.Desc
	malformed    *prometheus.Desc
	yielded      *prometheus.Desc
	gaps         *prometheus.Desc
	lastFrame    *prometheus.Desc
	segmentBytes *prometheus.Desc
	attached     *prometheus.Desc
}

// NewCollector returns a collector over src
func NewCollector(src StatsSource) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, nil, nil)
	}
	return &Collector{
		src:          src,
		received:     desc("notifications_received_total", "Count of datagrams taken from the notification channel"),
		malformed:    desc("notifications_malformed_total", "Count of datagrams dropped because the header was malformed"),
		yielded:      desc("frames_total", "Count of frames handed to the consumer"),
		gaps:         desc("frame_gaps_total", "Count of frames whose frame_count did not follow the previous frame"),
		lastFrame:    desc("last_frame_count", "frame_count of the most recent frame"),
		segmentBytes: desc("segment_bytes", "Mapped size of the shared-memory segment"),
		attached:     desc("attached", "1 when the shared-memory segment is attached"),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.received
	ch <- c.malformed
	ch <- c.yielded
	ch <- c.gaps
	ch <- c.lastFrame
	ch <- c.segmentBytes
	ch <- c.attached
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.src.Stats()

	attached := 0.0
	if st.Attach == stream.Attached && st.State != stream.StateClosed {
		attached = 1
	}

	ch <- prometheus.MustNewConstMetric(c.received, prometheus.CounterValue, float64(st.Received))
	ch <- prometheus.MustNewConstMetric(c.malformed, prometheus.CounterValue, float64(st.Malformed))
	ch <- prometheus.MustNewConstMetric(c.yielded, prometheus.CounterValue, float64(st.Yielded))
	ch <- prometheus.MustNewConstMetric(c.gaps, prometheus.CounterValue, float64(st.Gaps))
	ch <- prometheus.MustNewConstMetric(c.lastFrame, prometheus.GaugeValue, float64(st.LastFrameCount))
	ch <- prometheus.MustNewConstMetric(c.segmentBytes, prometheus.GaugeValue, float64(st.SegmentBytes))
	ch <- prometheus.MustNewConstMetric(c.attached, prometheus.GaugeValue, attached)
}
