package health

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

// Engine is the view of an engine needed by EngineChecker. *yunas.Engine
// satisfies it.
type Engine interface {
	Sealed() bool
	Chains() []string
}

// EngineChecker reports an engine still in its build phase as degraded and an
// engine without chains as unhealthy
type EngineChecker struct {
	engine Engine
}

// NewEngineChecker creates a new engine checker
func NewEngineChecker(engine Engine) *EngineChecker {
	return &EngineChecker{engine: engine}
}

func (c *EngineChecker) Name() string {
	return "engine"
}

func (c *EngineChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	chains := c.engine.Chains()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details: map[string]interface{}{
			"chains": len(chains),
			"sealed": c.engine.Sealed(),
		},
	}

	switch {
	case len(chains) == 0:
		result.Status = StatusUnhealthy
		result.Message = "No chains registered"
	case !c.engine.Sealed():
		result.Status = StatusDegraded
		result.Message = "Engine is still in its build phase"
	default:
		result.Status = StatusHealthy
		result.Message = "Engine is serving"
	}

	result.Duration = time.Since(start)
	return result
}

// Connection is satisfied by *amqp.Connection
type Connection interface {
	IsClosed() bool
}

// ConnectionChecker checks a broker connection
type ConnectionChecker struct {
	name string
	conn Connection
}

// NewConnectionChecker creates a new connection checker
func NewConnectionChecker(name string, conn Connection) *ConnectionChecker {
	return &ConnectionChecker{name: name, conn: conn}
}

func (c *ConnectionChecker) Name() string {
	return c.name
}

func (c *ConnectionChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
	}

	if c.conn == nil || c.conn.IsClosed() {
		result.Status = StatusUnhealthy
		result.Message = "Connection is closed"
	} else {
		result.Status = StatusHealthy
		result.Message = "Connection is open"
	}

	result.Duration = time.Since(start)
	return result
}

// GoroutineChecker flags a goroutine count above its thresholds
type GoroutineChecker struct {
	warningThreshold  int
	criticalThreshold int
}

// NewGoroutineChecker creates a new goroutine checker
func NewGoroutineChecker(warningThreshold, criticalThreshold int) *GoroutineChecker {
	return &GoroutineChecker{
		warningThreshold:  warningThreshold,
		criticalThreshold: criticalThreshold,
	}
}

func (c *GoroutineChecker) Name() string {
	return "goroutines"
}

func (c *GoroutineChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	goroutines := runtime.NumGoroutine()

	result := CheckResult{
		Name:      c.Name(),
		Timestamp: start,
		Details: map[string]interface{}{
			"goroutines":     goroutines,
			"memory_used_mb": float64(m.Sys) / 1024 / 1024,
			"gc_runs":        m.NumGC,
		},
	}

	switch {
	case goroutines > c.criticalThreshold:
		result.Status = StatusUnhealthy
		result.Message = fmt.Sprintf("Too many goroutines: %d", goroutines)
	case goroutines > c.warningThreshold:
		result.Status = StatusDegraded
		result.Message = fmt.Sprintf("High goroutine count: %d", goroutines)
	default:
		result.Status = StatusHealthy
		result.Message = "Goroutine count is normal"
	}

	result.Duration = time.Since(start)
	return result
}

// ComponentChecker allows checking custom components
type ComponentChecker struct {
	name    string
	checker func(ctx context.Context) (Status, string, error)
}

// NewComponentChecker creates a checker for custom components
func NewComponentChecker(name string, checker func(ctx context.Context) (Status, string, error)) *ComponentChecker {
	return &ComponentChecker{
		name:    name,
		checker: checker,
	}
}

func (c *ComponentChecker) Name() string {
	return c.name
}

func (c *ComponentChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	status, message, err := c.checker(ctx)

	result := CheckResult{
		Name:      c.Name(),
		Status:    status,
		Message:   message,
		Timestamp: start,
	}
	if err != nil {
		result.Error = err.Error()
		if status == "" {
			result.Status = StatusUnhealthy
		}
	}

	result.Duration = time.Since(start)
	return result
}
