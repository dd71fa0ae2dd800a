// Copyright 2016 Google Inc. All Rights Reserved.
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

// Package metrics provides a Prometheus-backed merkle.Recorder for
// instrumenting a MerkleRoll's operations without coupling the core
// engine package to any particular metrics backend.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// PromRecorder implements merkle.Recorder by registering counters and a
// histogram against the supplied Prometheus registerer. It is safe for
// concurrent use by a single roll's serialized operations, since all
// mutation happens through prometheus's own thread-safe collectors.
type PromRecorder struct {
	operations             *prometheus.CounterVec
	reconciliationDistance prometheus.Histogram
}

// NewPromRecorder constructs a PromRecorder and registers its collectors
// against reg. namespace/subsystem follow the usual Prometheus
// convention, e.g. namespace="cmt", subsystem="merkle_roll".
func NewPromRecorder(reg prometheus.Registerer, namespace, subsystem string) (*PromRecorder, error) {
	r := &PromRecorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "operations_total",
			Help:      "Count of MerkleRoll operations by name and outcome.",
		}, []string{"op", "result"}),
		reconciliationDistance: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reconciliation_distance",
			Help:      "How many change-log entries back a reconciled proof's root was found.",
			Buckets:   prometheus.LinearBuckets(0, 4, 8),
		}),
	}
	for _, c := range []prometheus.Collector{r.operations, r.reconciliationDistance} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ObserveOperation implements merkle.Recorder.
func (r *PromRecorder) ObserveOperation(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.operations.WithLabelValues(op, result).Inc()
}

// ObserveReconciliationDistance implements merkle.Recorder.
func (r *PromRecorder) ObserveReconciliationDistance(distance uint32) {
	r.reconciliationDistance.Observe(float64(distance))
}
