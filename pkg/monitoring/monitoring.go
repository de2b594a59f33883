// Package monitoring tracks ingestion, query, business, and health
// measurements for the semantic core and raises alerts when configured
// thresholds trip. One Monitor instance serves the whole process; the
// registries feed it through their recorder seams.
package monitoring

import (
	"maps"
	"slices"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/semops-labs/som/core/pkg/config"
)

// HealthStatus is the reported condition of a component.
type HealthStatus string

const (
	Healthy   HealthStatus = "healthy"
	Degraded  HealthStatus = "degraded"
	Unhealthy HealthStatus = "unhealthy"
)

// ComponentHealth is the last reported condition of one component. The
// error count accumulates across unhealthy reports and resets to zero when
// the component comes back healthy.
type ComponentHealth struct {
	Name        string       `json:"name"`
	Status      HealthStatus `json:"status"`
	LatencyMs   float64      `json:"latency_ms"`
	Message     string       `json:"message,omitempty"`
	ErrorCount  int          `json:"error_count"`
	LastChecked time.Time    `json:"last_checked"`
}

// SystemHealth aggregates component conditions: unhealthy dominates
// degraded, degraded dominates healthy.
type SystemHealth struct {
	Status     HealthStatus               `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	CheckedAt  time.Time                  `json:"checked_at"`
}

// EventMetrics summarizes ingestion over the retention window. Totals are
// lifetime counters; rates and percentiles cover retained samples only.
type EventMetrics struct {
	TotalRecorded   int64     `json:"total_recorded"`
	WindowCount     int       `json:"window_count"`
	IngestionPerSec float64   `json:"ingestion_per_sec"`
	FailureRate     float64   `json:"failure_rate"`
	AvgLatencyMs    float64   `json:"avg_latency_ms"`
	P95LatencyMs    float64   `json:"p95_latency_ms"`
	P99LatencyMs    float64   `json:"p99_latency_ms"`
	LastError       string    `json:"last_error,omitempty"`
	LastErrorAt     time.Time `json:"last_error_at"`
}

// QueryMetrics summarizes read traffic over the retention window.
type QueryMetrics struct {
	TotalQueries int64            `json:"total_queries"`
	WindowCount  int              `json:"window_count"`
	ErrorRate    float64          `json:"error_rate"`
	CacheHitRate float64          `json:"cache_hit_rate"`
	AvgLatencyMs float64          `json:"avg_latency_ms"`
	P95LatencyMs float64          `json:"p95_latency_ms"`
	P99LatencyMs float64          `json:"p99_latency_ms"`
	CountByType  map[string]int64 `json:"count_by_type"`
	LastError    string           `json:"last_error,omitempty"`
	LastErrorAt  time.Time        `json:"last_error_at"`
}

// BusinessMetrics counts graph activity by type. ViolationRate is
// constraint violations per ingested event over the retention window.
type BusinessMetrics struct {
	HolonsCreated        map[string]int64 `json:"holons_created"`
	ActiveHolons         map[string]int64 `json:"active_holons"`
	RelationshipsCreated map[string]int64 `json:"relationships_created"`
	RelationshipsEnded   map[string]int64 `json:"relationships_ended"`
	ConstraintViolations map[string]int64 `json:"constraint_violations"`
	ViolationRate        float64          `json:"violation_rate"`
}

type ingestionSample struct {
	at        time.Time
	latencyMs float64
	success   bool
}

type querySample struct {
	at        time.Time
	queryType string
	latencyMs float64
	cacheHit  bool
	success   bool
}

type violationSample struct {
	at             time.Time
	constraintType string
}

// Monitor is the process-wide metrics, health, and alerting hub. It
// satisfies the recorder seams of the event store, the holon and
// relationship registries, and the constraint engine.
type Monitor struct {
	mu    sync.Mutex
	cfg   config.MonitoringConfig
	clock func() time.Time

	ingestions []ingestionSample
	queries    []querySample
	violations []violationSample

	totalEvents      int64
	totalQueries     int64
	lastIngestErr    string
	lastIngestErrAt  time.Time
	lastQueryErr     string
	lastQueryErrAt   time.Time
	holonsCreated    map[string]int64
	activeHolons     map[string]int64
	relCreated       map[string]int64
	relEnded         map[string]int64
	violationsByType map[string]int64

	components map[string]*ComponentHealth

	alerts     []*Alert
	handlers   []handlerEntry
	nextHandle uint64
	limiters   map[AlertType]*rate.Limiter
	alertEvery time.Duration

	bridge *Bridge

	stop     chan struct{}
	stopOnce sync.Once
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock overrides the clock for testing.
func WithClock(clock func() time.Time) Option {
	return func(m *Monitor) { m.clock = clock }
}

// WithBridge mirrors every record into OpenTelemetry instruments.
func WithBridge(b *Bridge) Option {
	return func(m *Monitor) { m.bridge = b }
}

// WithAlertInterval sets the minimum spacing between handler deliveries per
// alert type. Zero or negative disables the limit.
func WithAlertInterval(d time.Duration) Option {
	return func(m *Monitor) { m.alertEvery = d }
}

// New creates a Monitor. When the config carries a positive health-check
// interval a background sweeper evicts expired samples at that cadence so
// windowed rates decay even while the core is idle.
func New(cfg config.MonitoringConfig, opts ...Option) *Monitor {
	m := &Monitor{
		cfg:              cfg,
		clock:            time.Now,
		holonsCreated:    make(map[string]int64),
		activeHolons:     make(map[string]int64),
		relCreated:       make(map[string]int64),
		relEnded:         make(map[string]int64),
		violationsByType: make(map[string]int64),
		components:       make(map[string]*ComponentHealth),
		limiters:         make(map[AlertType]*rate.Limiter),
		alertEvery:       time.Minute,
	}
	for _, opt := range opts {
		opt(m)
	}
	if cfg.HealthCheckIntervalMs > 0 {
		m.stop = make(chan struct{})
		go m.sweep(cfg.HealthCheckInterval())
	}
	return m
}

// RecordEventIngestion records one submission outcome. Failed submissions
// feed the validation-failure rate; any sample above the processing latency
// threshold raises a performance alert.
func (m *Monitor) RecordEventIngestion(latencyMs float64, success bool, errMsg string) {
	m.mu.Lock()
	now := m.clock()
	m.evict(now)

	m.ingestions = append(m.ingestions, ingestionSample{at: now, latencyMs: latencyMs, success: success})
	m.totalEvents++
	if !success && errMsg != "" {
		m.lastIngestErr = errMsg
		m.lastIngestErrAt = now
	}
	if m.bridge != nil {
		m.bridge.eventIngested(latencyMs, success)
	}

	var deliveries []Alert
	thr := m.cfg.AlertThresholds
	if fr := failureRate(m.ingestions); fr > thr.ValidationFailureRate {
		if a := m.raiseLocked(AlertValidationFailure, SeverityCritical,
			"event validation failure rate over threshold", fr, thr.ValidationFailureRate); a != nil {
			deliveries = append(deliveries, *a)
		}
	}
	if latencyMs > thr.ProcessingLatencyP95Ms {
		if a := m.raiseLocked(AlertPerformanceDegradation, SeverityWarning,
			"event processing latency over threshold", latencyMs, thr.ProcessingLatencyP95Ms); a != nil {
			deliveries = append(deliveries, *a)
		}
	}
	handlers := m.cloneHandlers()
	m.mu.Unlock()

	m.deliver(handlers, deliveries)
}

// RecordQuery records one read outcome.
func (m *Monitor) RecordQuery(queryType string, latencyMs float64, cacheHit, success bool, errMsg string) {
	m.mu.Lock()
	now := m.clock()
	m.evict(now)

	m.queries = append(m.queries, querySample{
		at:        now,
		queryType: queryType,
		latencyMs: latencyMs,
		cacheHit:  cacheHit,
		success:   success,
	})
	m.totalQueries++
	if !success && errMsg != "" {
		m.lastQueryErr = errMsg
		m.lastQueryErrAt = now
	}
	if m.bridge != nil {
		m.bridge.queryServed(queryType, latencyMs, cacheHit, success)
	}

	var deliveries []Alert
	thr := m.cfg.AlertThresholds
	if er := queryErrorRate(m.queries); er > thr.QueryErrorRate {
		if a := m.raiseLocked(AlertSystemError, SeverityWarning,
			"query error rate over threshold", er, thr.QueryErrorRate); a != nil {
			deliveries = append(deliveries, *a)
		}
	}
	if latencyMs > thr.QueryLatencyP95Ms {
		if a := m.raiseLocked(AlertPerformanceDegradation, SeverityWarning,
			"query latency over threshold", latencyMs, thr.QueryLatencyP95Ms); a != nil {
			deliveries = append(deliveries, *a)
		}
	}
	handlers := m.cloneHandlers()
	m.mu.Unlock()

	m.deliver(handlers, deliveries)
}

// RecordHolonCreated counts a new holon by type.
func (m *Monitor) RecordHolonCreated(holonType string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.holonsCreated[holonType]++
	if active {
		m.activeHolons[holonType]++
	}
	if m.bridge != nil {
		m.bridge.holonCreated(holonType)
	}
}

// RecordHolonStatusChange moves a holon between the active and inactive
// tallies.
func (m *Monitor) RecordHolonStatusChange(holonType string, toActive bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if toActive {
		m.activeHolons[holonType]++
	} else if m.activeHolons[holonType] > 0 {
		m.activeHolons[holonType]--
	}
}

// RecordRelationshipCreated counts a new edge by type.
func (m *Monitor) RecordRelationshipCreated(relType string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.relCreated[relType]++
	if m.bridge != nil {
		m.bridge.relationshipChanged(relType, "created")
	}
}

// RecordRelationshipEnded counts an ended edge by type.
func (m *Monitor) RecordRelationshipEnded(relType string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.relEnded[relType]++
	if m.bridge != nil {
		m.bridge.relationshipChanged(relType, "ended")
	}
}

// RecordConstraintViolation counts one violated constraint. When violations
// per ingested event over the window pass the threshold a business-rule
// alert is raised.
func (m *Monitor) RecordConstraintViolation(constraintType string) {
	m.mu.Lock()
	now := m.clock()
	m.evict(now)

	m.violations = append(m.violations, violationSample{at: now, constraintType: constraintType})
	m.violationsByType[constraintType]++
	if m.bridge != nil {
		m.bridge.constraintViolated(constraintType)
	}

	var deliveries []Alert
	thr := m.cfg.AlertThresholds
	if vr := m.violationRateLocked(); vr > thr.ConstraintViolationRate {
		if a := m.raiseLocked(AlertBusinessRule, SeverityWarning,
			"constraint violation rate over threshold", vr, thr.ConstraintViolationRate); a != nil {
			deliveries = append(deliveries, *a)
		}
	}
	handlers := m.cloneHandlers()
	m.mu.Unlock()

	m.deliver(handlers, deliveries)
}

// UpdateComponentHealth records a component's condition. A transition into
// unhealthy raises a critical system alert; a return to healthy clears the
// component's error count.
func (m *Monitor) UpdateComponentHealth(name string, status HealthStatus, latencyMs float64, message string) {
	m.mu.Lock()
	now := m.clock()

	c, ok := m.components[name]
	if !ok {
		c = &ComponentHealth{Name: name}
		m.components[name] = c
	}
	prev := c.Status
	c.Status = status
	c.LatencyMs = latencyMs
	c.Message = message
	c.LastChecked = now

	switch status {
	case Unhealthy:
		c.ErrorCount++
	case Healthy:
		c.ErrorCount = 0
	}

	var deliveries []Alert
	if status == Unhealthy && prev != Unhealthy {
		if a := m.raiseLocked(AlertSystemError, SeverityCritical,
			"component "+name+" is unhealthy: "+message, float64(c.ErrorCount), 0); a != nil {
			deliveries = append(deliveries, *a)
		}
	}
	handlers := m.cloneHandlers()
	m.mu.Unlock()

	m.deliver(handlers, deliveries)
}

// EventMetrics reports ingestion statistics over the retention window.
func (m *Monitor) EventMetrics() EventMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evict(m.clock())

	latencies := make([]float64, len(m.ingestions))
	for i, s := range m.ingestions {
		latencies[i] = s.latencyMs
	}
	avg, p95, p99 := percentiles(latencies)

	return EventMetrics{
		TotalRecorded:   m.totalEvents,
		WindowCount:     len(m.ingestions),
		IngestionPerSec: float64(len(m.ingestions)) / m.cfg.Retention().Seconds(),
		FailureRate:     failureRate(m.ingestions),
		AvgLatencyMs:    avg,
		P95LatencyMs:    p95,
		P99LatencyMs:    p99,
		LastError:       m.lastIngestErr,
		LastErrorAt:     m.lastIngestErrAt,
	}
}

// QueryMetrics reports read statistics over the retention window.
func (m *Monitor) QueryMetrics() QueryMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evict(m.clock())

	latencies := make([]float64, len(m.queries))
	byType := make(map[string]int64)
	hits := 0
	for i, s := range m.queries {
		latencies[i] = s.latencyMs
		byType[s.queryType]++
		if s.cacheHit {
			hits++
		}
	}
	avg, p95, p99 := percentiles(latencies)

	var hitRate float64
	if len(m.queries) > 0 {
		hitRate = float64(hits) / float64(len(m.queries))
	}

	return QueryMetrics{
		TotalQueries: m.totalQueries,
		WindowCount:  len(m.queries),
		ErrorRate:    queryErrorRate(m.queries),
		CacheHitRate: hitRate,
		AvgLatencyMs: avg,
		P95LatencyMs: p95,
		P99LatencyMs: p99,
		CountByType:  byType,
		LastError:    m.lastQueryErr,
		LastErrorAt:  m.lastQueryErrAt,
	}
}

// BusinessMetrics reports graph activity tallies.
func (m *Monitor) BusinessMetrics() BusinessMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evict(m.clock())

	return BusinessMetrics{
		HolonsCreated:        maps.Clone(m.holonsCreated),
		ActiveHolons:         maps.Clone(m.activeHolons),
		RelationshipsCreated: maps.Clone(m.relCreated),
		RelationshipsEnded:   maps.Clone(m.relEnded),
		ConstraintViolations: maps.Clone(m.violationsByType),
		ViolationRate:        m.violationRateLocked(),
	}
}

// SystemHealth reports the aggregate and per-component condition.
func (m *Monitor) SystemHealth() SystemHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	overall := Healthy
	components := make(map[string]ComponentHealth, len(m.components))
	for name, c := range m.components {
		components[name] = *c
		switch c.Status {
		case Unhealthy:
			overall = Unhealthy
		case Degraded:
			if overall == Healthy {
				overall = Degraded
			}
		}
	}

	return SystemHealth{
		Status:     overall,
		Components: components,
		CheckedAt:  m.clock(),
	}
}

// Reset clears all samples, tallies, components, and alerts. Registered
// handlers survive a reset.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ingestions = nil
	m.queries = nil
	m.violations = nil
	m.totalEvents = 0
	m.totalQueries = 0
	m.lastIngestErr = ""
	m.lastIngestErrAt = time.Time{}
	m.lastQueryErr = ""
	m.lastQueryErrAt = time.Time{}
	m.holonsCreated = make(map[string]int64)
	m.activeHolons = make(map[string]int64)
	m.relCreated = make(map[string]int64)
	m.relEnded = make(map[string]int64)
	m.violationsByType = make(map[string]int64)
	m.components = make(map[string]*ComponentHealth)
	m.alerts = nil
}

// Shutdown stops the background sweeper and drops every alert handler.
// Records after shutdown still count but no longer dispatch.
func (m *Monitor) Shutdown() {
	m.stopOnce.Do(func() {
		if m.stop != nil {
			close(m.stop)
		}
	})

	m.mu.Lock()
	m.handlers = nil
	m.mu.Unlock()
}

func (m *Monitor) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.mu.Lock()
			m.evict(m.clock())
			m.mu.Unlock()
		}
	}
}

// evict drops samples older than the retention window. Called under the
// lock on every record and read.
func (m *Monitor) evict(now time.Time) {
	cutoff := now.Add(-m.cfg.Retention())

	i := 0
	for i < len(m.ingestions) && !m.ingestions[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		m.ingestions = append([]ingestionSample(nil), m.ingestions[i:]...)
	}

	i = 0
	for i < len(m.queries) && !m.queries[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		m.queries = append([]querySample(nil), m.queries[i:]...)
	}

	i = 0
	for i < len(m.violations) && !m.violations[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		m.violations = append([]violationSample(nil), m.violations[i:]...)
	}
}

func (m *Monitor) violationRateLocked() float64 {
	if len(m.violations) == 0 {
		return 0
	}
	return float64(len(m.violations)) / float64(max(1, len(m.ingestions)))
}

func failureRate(samples []ingestionSample) float64 {
	if len(samples) == 0 {
		return 0
	}
	failed := 0
	for _, s := range samples {
		if !s.success {
			failed++
		}
	}
	return float64(failed) / float64(len(samples))
}

func queryErrorRate(samples []querySample) float64 {
	if len(samples) == 0 {
		return 0
	}
	failed := 0
	for _, s := range samples {
		if !s.success {
			failed++
		}
	}
	return float64(failed) / float64(len(samples))
}

// percentiles returns the average, p95, and p99 over the sorted samples.
func percentiles(values []float64) (avg, p95, p99 float64) {
	if len(values) == 0 {
		return 0, 0, 0
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	avg = sum / float64(len(sorted))
	p95 = sorted[pctIndex(len(sorted), 0.95)]
	p99 = sorted[pctIndex(len(sorted), 0.99)]
	return avg, p95, p99
}

func pctIndex(n int, q float64) int {
	i := int(float64(n) * q)
	if i >= n {
		i = n - 1
	}
	return i
}
