package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cachetune/cachetune/pkg/types"
)

// Collector exposes cache optimization metrics through a dedicated
// Prometheus registry. A disabled collector is a safe no-op so callers
// never need nil checks.
type Collector struct {
	config   *Config
	registry *prometheus.Registry

	hitCounter        *prometheus.CounterVec
	missCounter       *prometheus.CounterVec
	evictionCounter   *prometheus.CounterVec
	evictedBytes      prometheus.Counter
	ttlAdjustCounter  *prometheus.CounterVec
	prefetchCounter   prometheus.Counter
	hitRateGauge      prometheus.Gauge
	optimizeHistogram prometheus.Histogram

	server *http.Server
}

// Config represents metrics configuration
type Config struct {
	Enabled   bool              `yaml:"enabled"`
	Port      int               `yaml:"port"`
	Path      string            `yaml:"path"`
	Labels    map[string]string `yaml:"labels"`
	Namespace string            `yaml:"namespace"`
}

// DefaultConfig returns the default metrics configuration
func DefaultConfig() *Config {
	return &Config{
		Enabled:   true,
		Port:      8080,
		Path:      "/metrics",
		Namespace: "cachetune",
		Labels:    make(map[string]string),
	}
}

var _ types.MetricsCollector = (*Collector)(nil)

// NewCollector creates a new metrics collector
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if !config.Enabled {
		return &Collector{config: config}, nil
	}

	registry := prometheus.NewRegistry()
	c := &Collector{
		config:   config,
		registry: registry,
	}

	constLabels := prometheus.Labels(config.Labels)

	c.hitCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   config.Namespace,
		Name:        "cache_hits_total",
		Help:        "Cache hits by data type",
		ConstLabels: constLabels,
	}, []string{"data_type"})

	c.missCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   config.Namespace,
		Name:        "cache_misses_total",
		Help:        "Cache misses by data type",
		ConstLabels: constLabels,
	}, []string{"data_type"})

	c.evictionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   config.Namespace,
		Name:        "evictions_total",
		Help:        "Items evicted by optimization passes, by data type",
		ConstLabels: constLabels,
	}, []string{"data_type"})

	c.evictedBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   config.Namespace,
		Name:        "evicted_bytes_total",
		Help:        "Bytes freed by optimization passes",
		ConstLabels: constLabels,
	})

	c.ttlAdjustCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   config.Namespace,
		Name:        "ttl_adjustments_total",
		Help:        "TTL adjustments by direction",
		ConstLabels: constLabels,
	}, []string{"direction"})

	c.prefetchCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   config.Namespace,
		Name:        "prefetch_recommendations_total",
		Help:        "Keys recommended for prefetch",
		ConstLabels: constLabels,
	})

	c.hitRateGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   config.Namespace,
		Name:        "hit_rate",
		Help:        "Most recently observed cache hit rate",
		ConstLabels: constLabels,
	})

	c.optimizeHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   config.Namespace,
		Name:        "optimize_duration_seconds",
		Help:        "Duration of optimization passes",
		ConstLabels: constLabels,
		Buckets:     prometheus.ExponentialBuckets(0.0001, 4, 8),
	})

	for _, collector := range []prometheus.Collector{
		c.hitCounter, c.missCounter, c.evictionCounter, c.evictedBytes,
		c.ttlAdjustCounter, c.prefetchCounter, c.hitRateGauge, c.optimizeHistogram,
	} {
		if err := registry.Register(collector); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	return c, nil
}

// Start serves the metrics endpoint on the configured port
func (c *Collector) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	c.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second, // Prevent Slowloris attacks
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("Metrics server error: %v\n", err)
		}
	}()

	return nil
}

// Stop shuts down the metrics server
func (c *Collector) Stop(ctx context.Context) error {
	if c.server != nil {
		return c.server.Shutdown(ctx)
	}
	return nil
}

// Registry exposes the underlying registry so embedders can merge it into
// their own metrics surface.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordHit records a cache hit
func (c *Collector) RecordHit(dataType types.DataType) {
	if !c.config.Enabled {
		return
	}
	c.hitCounter.WithLabelValues(string(dataType)).Inc()
}

// RecordMiss records a cache miss
func (c *Collector) RecordMiss(dataType types.DataType) {
	if !c.config.Enabled {
		return
	}
	c.missCounter.WithLabelValues(string(dataType)).Inc()
}

// RecordEviction records one evicted item and the space it freed
func (c *Collector) RecordEviction(dataType types.DataType, size int64) {
	if !c.config.Enabled {
		return
	}
	c.evictionCounter.WithLabelValues(string(dataType)).Inc()
	if size > 0 {
		c.evictedBytes.Add(float64(size))
	}
}

// RecordTTLAdjustment records one TTL extension or reduction
func (c *Collector) RecordTTLAdjustment(extended bool) {
	if !c.config.Enabled {
		return
	}
	direction := "reduced"
	if extended {
		direction = "extended"
	}
	c.ttlAdjustCounter.WithLabelValues(direction).Inc()
}

// RecordPrefetchRecommendation records how many keys a prefetch query returned
func (c *Collector) RecordPrefetchRecommendation(count int) {
	if !c.config.Enabled || count <= 0 {
		return
	}
	c.prefetchCounter.Add(float64(count))
}

// ObserveHitRate records the latest observed hit rate
func (c *Collector) ObserveHitRate(rate float64) {
	if !c.config.Enabled {
		return
	}
	c.hitRateGauge.Set(rate)
}

// ObserveOptimizeDuration records the wall time of one optimization pass
func (c *Collector) ObserveOptimizeDuration(d time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.optimizeHistogram.Observe(d.Seconds())
}
