package assistant

import (
	"context"
	"encoding/json"
	"log"

	"github.com/ent0n29/glassvoice/internal/realtime"
	"github.com/ent0n29/glassvoice/internal/tools"
)

func (c *Client) handleFunctionCall(e *realtime.FunctionCallArgumentsDone) {
	if e.CallID == "" {
		log.Printf("assistant: function call %s without call_id", e.Name)
		return
	}
	if c.opts.Tools == nil {
		c.send(realtime.NewFunctionCallOutput(e.CallID, `{"success":false,"error":"tools are not available"}`))
		return
	}
	if _, dup := c.pendingCalls[e.CallID]; dup {
		return
	}
	c.pendingCalls[e.CallID] = struct{}{}

	call := tools.Call{ID: e.CallID, Name: e.Name, Arguments: json.RawMessage(e.Arguments)}
	if len(call.Arguments) == 0 {
		call.Arguments = json.RawMessage(`{}`)
	}
	gen := c.gen
	runner := c.opts.Tools
	go func() {
		res, ok := runner.Dispatch(context.Background(), call)
		c.post(func() { c.onToolResult(gen, call.ID, res, ok) })
	}()
}

func (c *Client) onToolResult(gen uint64, callID string, res tools.Result, ok bool) {
	if gen != c.gen {
		log.Printf("assistant: dropping result of %s from an earlier connection", callID)
		return
	}
	if _, pending := c.pendingCalls[callID]; !pending {
		return
	}
	delete(c.pendingCalls, callID)
	if !ok {
		c.maybeContinueAfterTools()
		return
	}
	c.send(realtime.NewFunctionCallOutput(res.CallID, res.Output))
	c.maybeContinueAfterTools()
}

// maybeContinueAfterTools asks for the follow-up response once the response
// that requested tools has finished and every result has been sent.
func (c *Client) maybeContinueAfterTools() {
	if !c.toolTurnDone || len(c.pendingCalls) > 0 {
		return
	}
	c.toolTurnDone = false
	c.send(realtime.NewResponseCreate())
}
