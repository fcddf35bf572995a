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

package notification

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tomoncle/bisna"
)

// MetricsNotifier counts failures by event, operation and error class.
type MetricsNotifier struct {
	failures *prometheus.CounterVec
}

var _ bisna.Notifier = (*MetricsNotifier)(nil)

// NewMetricsNotifier registers the failure counter on registry, or on the
// default registerer when registry is nil.
func NewMetricsNotifier(registry prometheus.Registerer) *MetricsNotifier {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	return &MetricsNotifier{
		failures: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "bisna_service_failures_total",
				Help: "Failed service operations by event, operation and error class",
			},
			[]string{"event", "operation", "class"},
		),
	}
}

func (n *MetricsNotifier) Notify(_ context.Context, event string, err error) {
	e := NewEvent(event, err)
	n.failures.WithLabelValues(e.Event, e.Operation, e.Class).Inc()
}

func (n *MetricsNotifier) Failures() *prometheus.CounterVec { return n.failures }
