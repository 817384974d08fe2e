// Copyright 2025 Antfly, Inc.
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

package cicada

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	encodesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cicada_encodes_total",
		Help: "Total number of audio encode calls",
	})

	decodesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cicada_decodes_total",
		Help: "Total number of latent decode calls",
	})

	chunksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cicada_chunks_total",
		Help: "Total number of windows processed by the streaming paths",
	})

	encodeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cicada_encode_duration_seconds",
		Help:    "Wall time of EncodeAudio calls",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	decodeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cicada_decode_duration_seconds",
		Help:    "Wall time of DecodeAudio calls",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})
)
