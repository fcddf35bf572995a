/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/uptrace/bun"
)

// MetricsHook records query latency and failures per operation.
type MetricsHook struct {
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
}

var _ bun.QueryHook = (*MetricsHook)(nil)

// NewMetricsHook registers the query collectors on registry, or on the
// default registerer when registry is nil.
func NewMetricsHook(registry prometheus.Registerer) *MetricsHook {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &MetricsHook{
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bisna_query_duration_seconds",
				Help:    "Database query duration in seconds",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"operation"},
		),
		errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bisna_query_errors_total",
				Help: "Failed database queries by operation and error class",
			},
			[]string{"operation", "class"},
		),
	}
}

func (h *MetricsHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *MetricsHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	op := event.Operation()
	h.duration.WithLabelValues(op).Observe(time.Since(event.StartTime).Seconds())
	if event.Err == nil {
		return
	}
	if _, class := IsSqlError(event.Err); class != NoRowsErr {
		h.errors.WithLabelValues(op, class.String()).Inc()
	}
}

// Errors exposes the failure counter, mostly for tests.
func (h *MetricsHook) Errors() *prometheus.CounterVec { return h.errors }
