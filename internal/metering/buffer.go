// Package metering buffers per-tenant API request counts in memory and
// flushes them to durable daily usage samples on an interval.
package metering

import (
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tenantplane/internal/clock"
	"github.com/smallbiznis/tenantplane/internal/metering/domain"
)

type bufferKey struct {
	TenantID snowflake.ID
	Date     time.Time
}

// bucket accumulates request counts for one (tenant, day) between flushes.
type bucket struct {
	Total      int64
	ByEndpoint map[string]int64
}

func (b *bucket) add(endpoint string, n int64) {
	b.Total += n
	if endpoint != "" {
		if b.ByEndpoint == nil {
			b.ByEndpoint = make(map[string]int64)
		}
		b.ByEndpoint[endpoint] += n
	}
}

func (b *bucket) merge(other *bucket) {
	b.Total += other.Total
	for endpoint, n := range other.ByEndpoint {
		if b.ByEndpoint == nil {
			b.ByEndpoint = make(map[string]int64)
		}
		b.ByEndpoint[endpoint] += n
	}
}

// Recorder is the hot-path sink for request metering. RecordRequest takes a
// short mutex and touches only process memory; it never performs I/O and
// never blocks on the flusher.
type Recorder struct {
	clock clock.Clock

	mu      sync.Mutex
	buckets map[bufferKey]*bucket
}

func NewRecorder(clk clock.Clock) *Recorder {
	return &Recorder{
		clock:   clk,
		buckets: make(map[bufferKey]*bucket),
	}
}

// RecordRequest counts one API request against the tenant's bucket for the
// current UTC day.
func (r *Recorder) RecordRequest(tenantID snowflake.ID, endpoint string) {
	key := bufferKey{TenantID: tenantID, Date: domain.Day(r.clock.Now())}

	r.mu.Lock()
	b, ok := r.buckets[key]
	if !ok {
		b = &bucket{}
		r.buckets[key] = b
	}
	b.add(endpoint, 1)
	r.mu.Unlock()
}

// drain detaches and returns all buffered buckets, leaving the buffer empty.
// Increments arriving after drain returns land in fresh buckets and are
// carried by the next flush, so a concurrent flush loses nothing.
func (r *Recorder) drain() map[bufferKey]*bucket {
	r.mu.Lock()
	drained := r.buckets
	r.buckets = make(map[bufferKey]*bucket)
	r.mu.Unlock()
	return drained
}

// restore merges a failed flush's buckets back so the counts retry on the
// next interval alongside anything recorded since.
func (r *Recorder) restore(key bufferKey, b *bucket) {
	r.mu.Lock()
	if existing, ok := r.buckets[key]; ok {
		existing.merge(b)
	} else {
		r.buckets[key] = b
	}
	r.mu.Unlock()
}

// BufferedTenants reports how many (tenant, day) buckets are pending flush.
func (r *Recorder) BufferedTenants() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buckets)
}
