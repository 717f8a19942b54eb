// Package metrics collects counters and latencies for the auth flow and the
// auth service client, and mirrors them to OpenTelemetry.
// file: internal/metrics/collector.go
package metrics

import (
	"sort"
	"sync"
	"time"
)

// Outcome labels for API calls.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// OpStats aggregates calls to one auth service operation.
type OpStats struct {
	Calls        int `json:"calls"`
	Errors       int `json:"errors"`
	AvgLatencyMs int `json:"avgLatencyMs"`
}

// ErrorInfo contains details about an error that occurred.
type ErrorInfo struct {
	Timestamp time.Time `json:"timestamp"`
	Component string    `json:"component"`
	Message   string    `json:"message"`
}

// Snapshot is a point-in-time copy of the collected metrics.
type Snapshot struct {
	StartTime time.Time     `json:"startTime"`
	Uptime    time.Duration `json:"uptime"`

	Operations map[string]OpStats `json:"operations"`
	// ErrorKinds counts classified failures by kind.
	ErrorKinds map[string]int `json:"errorKinds"`
	// FlowEvents counts "variant/event" pairs, e.g. "LOGIN_2FA/code_sent".
	FlowEvents map[string]int `json:"flowEvents"`

	ClaimsAcknowledged int `json:"claimsAcknowledged"`
	ClaimsFailed       int `json:"claimsFailed"`

	Authenticated  bool   `json:"authenticated"`
	Role           string `json:"role,omitempty"`
	SessionBackend string `json:"sessionBackend,omitempty"`

	LastErrors []ErrorInfo `json:"lastErrors,omitempty"`
}

// Collector accumulates metrics. It is safe for concurrent use.
type Collector struct {
	mu          sync.RWMutex
	startTime   time.Time
	now         func() time.Time
	ops         map[string]*OpStats
	errorKinds  map[string]int
	flowEvents  map[string]int
	claimsOK    int
	claimsFail  int
	auth        bool
	role        string
	backend     string
	errorBuffer []ErrorInfo
	bufferSize  int
}

// NewCollector creates a collector keeping the last errorBufferSize errors.
func NewCollector(errorBufferSize int) *Collector {
	if errorBufferSize < 1 {
		errorBufferSize = 1
	}
	return &Collector{
		startTime:   time.Now(),
		now:         time.Now,
		ops:         make(map[string]*OpStats),
		errorKinds:  make(map[string]int),
		flowEvents:  make(map[string]int),
		errorBuffer: make([]ErrorInfo, 0, errorBufferSize),
		bufferSize:  errorBufferSize,
	}
}

// RecordAPICall records one auth service call. kind is empty on success.
func (c *Collector) RecordAPICall(op string, latency time.Duration, kind string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.ops[op]
	if !ok {
		st = &OpStats{}
		c.ops[op] = st
	}
	st.Calls++
	ms := int(latency / time.Millisecond)
	st.AvgLatencyMs = int((float64(st.AvgLatencyMs)*float64(st.Calls-1) + float64(ms)) / float64(st.Calls))
	if kind != "" {
		st.Errors++
		c.errorKinds[kind]++
	}
}

// RecordFlowEvent counts a state machine event for a variant.
func (c *Collector) RecordFlowEvent(variant, event string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flowEvents[variant+"/"+event]++
}

// RecordClaim counts a best-effort claim result.
func (c *Collector) RecordClaim(acknowledged bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if acknowledged {
		c.claimsOK++
	} else {
		c.claimsFail++
	}
}

// RecordError adds an error to the ring buffer.
func (c *Collector) RecordError(component, message string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.errorBuffer) >= c.bufferSize {
		c.errorBuffer = c.errorBuffer[1:]
	}
	c.errorBuffer = append(c.errorBuffer, ErrorInfo{
		Timestamp: c.now(),
		Component: component,
		Message:   message,
	})
}

// UpdateSessionStatus records whether a session is established.
func (c *Collector) UpdateSessionStatus(authenticated bool, role, backend string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.auth = authenticated
	c.role = role
	c.backend = backend
}

// Snapshot returns a copy of the current metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		StartTime:          c.startTime,
		Uptime:             c.now().Sub(c.startTime),
		Operations:         make(map[string]OpStats, len(c.ops)),
		ErrorKinds:         make(map[string]int, len(c.errorKinds)),
		FlowEvents:         make(map[string]int, len(c.flowEvents)),
		ClaimsAcknowledged: c.claimsOK,
		ClaimsFailed:       c.claimsFail,
		Authenticated:      c.auth,
		Role:               c.role,
		SessionBackend:     c.backend,
	}
	for k, v := range c.ops {
		s.Operations[k] = *v
	}
	for k, v := range c.errorKinds {
		s.ErrorKinds[k] = v
	}
	for k, v := range c.flowEvents {
		s.FlowEvents[k] = v
	}
	if len(c.errorBuffer) > 0 {
		s.LastErrors = make([]ErrorInfo, len(c.errorBuffer))
		copy(s.LastErrors, c.errorBuffer)
	}
	return s
}

// OperationNames returns the recorded operation names, sorted.
func (s Snapshot) OperationNames() []string {
	names := make([]string, 0, len(s.Operations))
	for k := range s.Operations {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
