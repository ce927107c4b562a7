/*
Package metrics provides Prometheus-based metrics collection for CacheTune.

# Overview

The metrics package exposes the outcomes of cache optimization passes
(hits, misses, evictions, TTL adjustments, prefetch recommendations and
optimization latency) through a dedicated Prometheus registry with an
optional HTTP endpoint.

Architecture

	┌─────────────┐
	│  Collector  │  ← implements types.MetricsCollector
	└──────┬──────┘
	       │
	   ┌───┴────────────────────┐
	   │                        │
	┌──▼───────────┐  ┌─────────▼──────┐
	│  Prometheus  │  │ HTTP Endpoints │
	│   Registry   │  │  /metrics      │
	│              │  │  /health       │
	│ - Counters   │  └────────────────┘
	│ - Histogram  │
	│ - Gauge      │
	└──────────────┘

# Usage

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Port:      8080,
		Namespace: "cachetune",
	})
	if err != nil {
		return err
	}
	if err := collector.Start(ctx); err != nil {
		return err
	}
	defer collector.Stop(ctx)

	collector.RecordHit(types.DataTypeObject)
	collector.ObserveHitRate(0.92)

A collector built with Enabled set to false accepts every call as a no-op,
so callers can record metrics unconditionally.

# Metrics

	cachetune_cache_hits_total{data_type}        cache hits by data type
	cachetune_cache_misses_total{data_type}      cache misses by data type
	cachetune_evictions_total{data_type}         evicted items per optimization pass
	cachetune_evicted_bytes_total                bytes freed by evictions
	cachetune_ttl_adjustments_total{direction}   TTL extensions and reductions
	cachetune_prefetch_recommendations_total     keys recommended for prefetch
	cachetune_hit_rate                           most recent observed hit rate
	cachetune_optimize_duration_seconds          optimization pass latency

The namespace prefix follows Config.Namespace and defaults to "cachetune".
*/
package metrics
