package metrics

import (
	"testing"
	"time"
)

func counterValue(t *testing.T, m *Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		var total float64
		for _, metric := range fam.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				total += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				total += metric.GetGauge().GetValue()
			}
		}
		return total
	}
	return 0
}

func TestRecordRequest_IncrementsCounterAndHistogram(t *testing.T) {
	m := New()
	m.RecordRequest("echo", "ok", 10*time.Millisecond)
	m.RecordRequest("echo", "not_found", 0)

	if got := counterValue(t, m, "ol_wasm_worker_requests_total"); got != 2 {
		t.Fatalf("got requests_total %v, want 2", got)
	}

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var samples uint64
	for _, fam := range families {
		if fam.GetName() != "ol_wasm_worker_request_duration_seconds" {
			continue
		}
		for _, metric := range fam.GetMetric() {
			samples += metric.GetHistogram().GetSampleCount()
		}
	}
	if samples != 1 {
		t.Fatalf("got request_duration sample count %d, want 1 (only the ok outcome is timed)", samples)
	}
}

func TestRecordCacheHitMiss(t *testing.T) {
	m := New()
	m.RecordCacheHit()
	m.RecordCacheHit()
	m.RecordCacheMiss()

	if got := counterValue(t, m, "ol_wasm_worker_cache_hits_total"); got != 2 {
		t.Fatalf("got cache_hits_total %v, want 2", got)
	}
	if got := counterValue(t, m, "ol_wasm_worker_cache_misses_total"); got != 1 {
		t.Fatalf("got cache_misses_total %v, want 1", got)
	}
}

func TestSetPoolIdle(t *testing.T) {
	m := New()
	m.SetPoolIdle("echo", 3)
	m.SetPoolIdle("echo", 5)

	if got := counterValue(t, m, "ol_wasm_worker_pool_idle_instances"); got != 5 {
		t.Fatalf("got pool_idle_instances %v, want 5 (last Set wins)", got)
	}
}
