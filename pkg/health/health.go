// Package health runs named dependency checks concurrently and aggregates
// them into a single report.
package health

import (
	"context"
	"encoding/json"
	"io"
	"sort"
	"sync"
	"time"
)

type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// Check probes one dependency. A nil error means it is usable.
type Check func(ctx context.Context) error

type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency"`
}

type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

// Checker is configured once and then Run; it is not safe to Register
// concurrently with Run.
type Checker struct {
	checks  map[string]Check
	timeout time.Duration
}

// NewChecker creates a Checker that gives each check at most timeout. A
// non-positive timeout leaves checks bounded only by the Run context.
func NewChecker(timeout time.Duration) *Checker {
	return &Checker{checks: make(map[string]Check), timeout: timeout}
}

func (c *Checker) Register(name string, check Check) {
	c.checks[name] = check
}

// Names returns the registered check names in sorted order.
func (c *Checker) Names() []string {
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes every check concurrently. The report is down if any
// component is down.
func (c *Checker) Run(ctx context.Context) Report {
	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(c.checks)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, check := range c.checks {
		name, check := name, check
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := c.run(ctx, check)
			mu.Lock()
			report.Components[name] = result
			mu.Unlock()
		}()
	}
	wg.Wait()

	for _, comp := range report.Components {
		if comp.Status == StatusDown {
			report.Status = StatusDown
			break
		}
	}
	return report
}

func (c *Checker) run(ctx context.Context, check Check) ComponentHealth {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	start := time.Now()
	err := check(ctx)
	h := ComponentHealth{
		Status:  StatusUp,
		Latency: time.Since(start).Round(time.Millisecond).String(),
	}
	if err != nil {
		h.Status = StatusDown
		h.Message = err.Error()
	}
	return h
}

// WriteJSON writes the report as indented JSON.
func (r Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
