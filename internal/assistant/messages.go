package assistant

import (
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/glassvoice/internal/threads"
)

// messageForItem returns the index of the message bound to a realtime item,
// creating it when needed.
func (c *Client) messageForItem(itemID string, role threads.Role) int {
	if id, ok := c.itemMsg[itemID]; ok {
		if i := c.findMessage(id); i >= 0 {
			return i
		}
	}
	msg := threads.Message{
		ID:        uuid.NewString(),
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	c.messages = append(c.messages, msg)
	if itemID != "" {
		c.itemMsg[itemID] = msg.ID
	}
	return len(c.messages) - 1
}

func (c *Client) findMessage(id string) int {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Client) removeMessage(i int) {
	c.messages = append(c.messages[:i], c.messages[i+1:]...)
}

func (c *Client) publishMessage(i int) {
	c.publish(Event{Kind: EventTranscript, Message: c.messages[i]})
}

// finalizeAssistantMessages marks in-progress assistant messages final.
func (c *Client) finalizeAssistantMessages() {
	changed := false
	for i := range c.messages {
		m := &c.messages[i]
		if m.Role != threads.RoleAssistant || m.Final {
			continue
		}
		m.Final = true
		changed = true
		c.publishMessage(i)
	}
	if changed {
		c.saveMessages()
	}
}

func (c *Client) saveMessages() {
	if c.opts.Threads == nil {
		return
	}
	if err := c.opts.Threads.SaveMessages(c.messages); err != nil {
		log.Printf("assistant: save messages: %v", err)
	}
}

// finalizeThread flushes the message log into the active thread and closes
// it. Empty user placeholders are dropped first.
func (c *Client) finalizeThread() {
	kept := c.messages[:0]
	for _, m := range c.messages {
		if m.Role == threads.RoleUser && m.Text == "" {
			continue
		}
		m.Final = true
		kept = append(kept, m)
	}
	c.messages = kept
	if c.opts.Threads != nil {
		if c.opts.Threads.ActiveThreadID() != "" {
			c.saveMessages()
		}
		c.opts.Threads.FinalizeActiveThread()
	}
	c.itemMsg = make(map[string]string)
}

func (c *Client) resetResponse() {
	c.responseID = ""
	c.cancelledResponse = ""
	c.requestedAt = time.Time{}
	c.firstAudioSeen = false
	c.pendingCalls = make(map[string]struct{})
	c.toolTurnDone = false
	c.awaitingIntent = false
	c.heldTranscript = ""
}
