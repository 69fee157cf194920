package tools

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/ent0n29/glassvoice/internal/observability"
	"github.com/ent0n29/glassvoice/internal/policy"
	"github.com/ent0n29/glassvoice/internal/realtime"
)

// Dispatcher routes calls to registered tools. Each call id gets exactly one
// result; repeats are ignored.
type Dispatcher struct {
	mu      sync.Mutex
	tools   map[string]Tool
	seen    map[string]struct{}
	timeout time.Duration
	metrics *observability.Metrics
}

func NewDispatcher(timeout time.Duration, metrics *observability.Metrics, tools ...Tool) (*Dispatcher, error) {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	d := &Dispatcher{
		tools:   make(map[string]Tool),
		seen:    make(map[string]struct{}),
		timeout: timeout,
		metrics: metrics,
	}
	for _, t := range tools {
		if err := d.Register(t); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Dispatcher) Register(t Tool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.tools[t.Name()]; exists {
		return fmt.Errorf("tool %q is already registered", t.Name())
	}
	d.tools[t.Name()] = t
	return nil
}

// Tools returns registered tools sorted by name.
func (d *Dispatcher) Tools() []Tool {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Tool, 0, len(d.tools))
	for _, t := range d.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Definitions declares every registered tool to the model, inactive ones
// included, so the model can tell the user a capability is not set up.
func (d *Dispatcher) Definitions() []realtime.ToolDefinition {
	tools := d.Tools()
	out := make([]realtime.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		out = append(out, realtime.ToolDefinition{
			Type:        "function",
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return out
}

// Reset forgets seen call ids; called at the start of each connection.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	d.seen = make(map[string]struct{})
	d.mu.Unlock()
}

// Claim marks call id as dispatched and reports whether it was new.
func (d *Dispatcher) Claim(callID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, dup := d.seen[callID]; dup {
		return false
	}
	d.seen[callID] = struct{}{}
	return true
}

// Dispatch runs the call and always produces a result. ok is false only when
// the call id was already dispatched.
func (d *Dispatcher) Dispatch(ctx context.Context, call Call) (res Result, ok bool) {
	if !d.Claim(call.ID) {
		log.Printf("tools: ignoring duplicate call %s (%s)", call.ID, call.Name)
		return Result{}, false
	}
	return d.run(ctx, call), true
}

func (d *Dispatcher) run(ctx context.Context, call Call) (res Result) {
	start := time.Now()
	res = Result{CallID: call.ID, Name: call.Name}

	defer func() {
		if r := recover(); r != nil {
			err := NewToolError(CodePanic, fmt.Sprintf("tool %s crashed", call.Name)).WithDetail("panic", fmt.Sprint(r))
			res.Success, res.Err, res.Output = false, err, failureJSON(err)
		}
		outcome := "ok"
		if !res.Success {
			outcome = "failed"
			log.Printf("tools: %s failed: %v", call.Name, res.Err)
		}
		d.metrics.ObserveToolCall(call.Name, outcome, time.Since(start))
	}()

	d.mu.Lock()
	t, exists := d.tools[call.Name]
	d.mu.Unlock()
	if !exists {
		err := NewToolError(CodeUnknownTool, fmt.Sprintf("unknown tool %q", call.Name))
		return fail(res, err)
	}
	if !t.Active() {
		err := NewToolError(CodeNotConfigured, fmt.Sprintf("%s is not configured", call.Name))
		return fail(res, err)
	}

	log.Printf("tools: running %s args=%s", call.Name, policy.ForLog(string(call.Arguments)))
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	out, err := t.Execute(callCtx, call.Arguments)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && callCtx.Err() != nil {
			err = NewToolError(CodeTimeout, fmt.Sprintf("%s timed out after %s", call.Name, d.timeout))
		}
		return fail(res, err)
	}
	res.Success = true
	res.Output = out
	return res
}

func fail(res Result, err error) Result {
	res.Success = false
	res.Err = err
	res.Output = failureJSON(err)
	return res
}
