/*
Copyright © 2025 Denis Khalturin
All rights reserved.

Redistribution and use in source and binary forms, with or without
modification, are permitted provided that the following conditions are met:

1. Redistributions of source code must retain the above copyright notice,
   this list of conditions and the following disclaimer.

2. Redistributions in binary form must reproduce the above copyright notice,
   this list of conditions and the following disclaimer in the documentation
   and/or other materials provided with the distribution.

3. Neither the name of the copyright holder nor the names of its contributors
   may be used to endorse or promote products derived from this software
   without specific prior written permission.

THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
POSSIBILITY OF SUCH DAMAGE.
*/
// prettier-ignore-end
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// RevocationItem is a composite key for revocation-cache age metrics. It
// combines the domain and the resolver source (well-known, local, bundle)
// to uniquely identify a cache-age metric in Prometheus.
type RevocationItem struct {
	Domain string
	Source string
}

// Collector is a Prometheus collector that tracks verification outcomes.
// It maintains counters for verification results per error code, a gauge
// for pin-store size, and revocation-cache age per domain. Implements
// prometheus.Collector interface for custom metrics collection.
type Collector struct {
	results      sync.Map
	pinStoreSize float64
	pinStoreMu   sync.RWMutex
	revocations  sync.Map
}

// NewCollector creates and registers a new Collector instance with Prometheus.
// The collector tracks verification outcomes, pin-store size, and
// revocation-cache age. Panics if registration with Prometheus fails.
func NewCollector() *Collector {
	c := new(Collector)
	prometheus.MustRegister(c)
	return c
}

// Describe implements prometheus.Collector interface.
// Returns an empty description as metrics are dynamically generated during collection.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {}

// Collect implements prometheus.Collector interface.
// Gathers and sends all verification metrics to Prometheus:
//   - schemapin_verifications_total: verification outcomes per result label,
//     i.e. "success" or an ErrorCode (gauge, cleared after collection)
//   - schemapin_pin_store_size: number of tool_id@domain records pinned
//   - schemapin_revocation_cache_age_seconds: age of the last successful
//     revocation fetch per domain/source
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.results.Range(func(k, v any) bool {
		result := k.(string)
		val := v.(float64)

		ch <- prometheus.MustNewConstMetric(
			prometheus.NewDesc(
				"schemapin_verifications_total",
				"Number of verification attempts per outcome",
				[]string{"result"},
				nil,
			),
			prometheus.GaugeValue,
			val,
			result,
		)

		c.ClearResult(result)
		return true
	})

	c.pinStoreMu.RLock()
	size := c.pinStoreSize
	c.pinStoreMu.RUnlock()

	ch <- prometheus.MustNewConstMetric(
		prometheus.NewDesc(
			"schemapin_pin_store_size",
			"Number of tool_id@domain records currently pinned",
			nil,
			nil,
		),
		prometheus.GaugeValue,
		size,
	)

	c.revocations.Range(func(k, v any) bool {
		item := k.(RevocationItem)
		age := v.(float64)

		ch <- prometheus.MustNewConstMetric(
			prometheus.NewDesc(
				"schemapin_revocation_cache_age_seconds",
				"Seconds since the last successful revocation fetch",
				[]string{"domain", "source"},
				nil,
			),
			prometheus.GaugeValue,
			age,
			item.Domain,
			item.Source,
		)
		return true
	})
}

// IncResult increments the verification-outcome counter for result, which
// is either "success" or a verify.ErrorCode string.
func (c *Collector) IncResult(result string) {
	val, _ := c.results.LoadOrStore(result, 0.0)
	c.results.Store(result, val.(float64)+1)
}

// ClearResult resets the verification-outcome counter for result to zero.
// Automatically called after metrics collection to prevent accumulation.
func (c *Collector) ClearResult(result string) {
	c.results.Store(result, 0.0)
}

// SetPinStoreSize updates the pin-store size gauge.
func (c *Collector) SetPinStoreSize(n float64) {
	c.pinStoreMu.Lock()
	defer c.pinStoreMu.Unlock()
	c.pinStoreSize = n
}

// SetRevocationCacheAge updates the revocation-cache age metric for a
// domain/source pair, in seconds since the last successful fetch.
func (c *Collector) SetRevocationCacheAge(domain, source string, age float64) {
	c.revocations.Store(RevocationItem{Domain: domain, Source: source}, age)
}

// ClearRevocationCacheAge removes the revocation-cache age metric for a
// domain/source pair.
func (c *Collector) ClearRevocationCacheAge(domain, source string) {
	c.revocations.Delete(RevocationItem{Domain: domain, Source: source})
}
