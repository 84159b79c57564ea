// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package metrics exposes Prometheus collectors for indexing and search.
//
// All methods are safe to call on a nil *Metrics, so components can take an
// optional collector set without guarding every call site.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/poiesic/semindex/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "semindex"

// Metrics holds the collectors on a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	items          *prometheus.CounterVec
	documents      *prometheus.CounterVec
	embedDuration  prometheus.Histogram
	searches       *prometheus.CounterVec
	searchDuration prometheus.Histogram
	queryCache     *prometheus.CounterVec
	storeSize      prometheus.Gauge
	persists       *prometheus.CounterVec
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "items_total",
			Help:      "Total number of chunks processed by outcome",
		}, []string{"outcome"}),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "documents_total",
			Help:      "Total number of documents submitted by result",
		}, []string{"result"}),
		embedDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "embed",
			Name:      "duration_seconds",
			Help:      "Duration of embedding provider batch calls in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "queries_total",
			Help:      "Total number of search queries by result",
		}, []string{"result"}),
		searchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Duration of search queries in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		queryCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "query_cache_total",
			Help:      "Query embedding cache lookups by result",
		}, []string{"result"}),
		storeSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "store_size",
			Help:      "Number of vectors in the committed store",
		}),
		persists: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "persists_total",
			Help:      "Total number of store persists by result",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.items,
		m.documents,
		m.embedDuration,
		m.searches,
		m.searchDuration,
		m.queryCache,
		m.storeSize,
		m.persists,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordIndex adds an indexing summary to the item counters.
func (m *Metrics) RecordIndex(summary core.IndexSummary) {
	if m == nil {
		return
	}
	m.items.WithLabelValues("added").Add(float64(summary.Added))
	m.items.WithLabelValues("skipped_duplicate").Add(float64(summary.SkippedDuplicate))
	m.items.WithLabelValues("failed").Add(float64(summary.Failed))
}

// RecordDocument counts one submitted document.
func (m *Metrics) RecordDocument(err error) {
	if m == nil {
		return
	}
	m.documents.WithLabelValues(result(err)).Inc()
}

// ObserveEmbed records the duration of one provider batch call.
func (m *Metrics) ObserveEmbed(d time.Duration) {
	if m == nil {
		return
	}
	m.embedDuration.Observe(d.Seconds())
}

// ObserveSearch records one query and its duration.
func (m *Metrics) ObserveSearch(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(result(err)).Inc()
	m.searchDuration.Observe(d.Seconds())
}

// RecordQueryCache counts a query embedding cache lookup.
func (m *Metrics) RecordQueryCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.queryCache.WithLabelValues("hit").Inc()
	} else {
		m.queryCache.WithLabelValues("miss").Inc()
	}
}

// RecordPersist counts one persist attempt and, on success, updates the
// store size gauge.
func (m *Metrics) RecordPersist(size int, err error) {
	if m == nil {
		return
	}
	m.persists.WithLabelValues(result(err)).Inc()
	if err == nil {
		m.storeSize.Set(float64(size))
	}
}

// SetStoreSize sets the store size gauge.
func (m *Metrics) SetStoreSize(size int) {
	if m == nil {
		return
	}
	m.storeSize.Set(float64(size))
}

func result(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, core.ErrNotFound):
		return "not_found"
	case errors.Is(err, core.ErrValidation):
		return "invalid"
	case errors.Is(err, core.ErrProvider):
		return "provider_error"
	}
	return "error"
}
