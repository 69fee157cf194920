package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ent0n29/glassvoice/internal/memory"
)

type ManageMemory struct {
	store memory.Store
}

func NewManageMemory(store memory.Store) *ManageMemory {
	return &ManageMemory{store: store}
}

func (t *ManageMemory) Name() string { return "manage_memory" }

func (t *ManageMemory) Description() string {
	return "Remember, update or forget a fact about the user. Pass an empty value to forget the key. Surrounding spaces in the key are ignored."
}

func (t *ManageMemory) Parameters() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"key":{"type":"string","description":"Short identifier such as favorite_food"},"value":{"type":"string","description":"Fact to remember; empty deletes the key"}},"required":["key","value"]}`)
}

func (t *ManageMemory) Active() bool { return t.store != nil }

type manageMemoryArgs struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (t *ManageMemory) Execute(ctx context.Context, raw json.RawMessage) (string, error) {
	var args manageMemoryArgs
	if err := decodeArgs(raw, &args); err != nil {
		return "", err
	}
	key := strings.TrimSpace(args.Key)
	if key == "" {
		return "", NewToolError(CodeValidationFailed, "key is required")
	}

	if args.Value == "" {
		existed, err := t.store.Delete(ctx, key)
		if err != nil {
			return "", NewToolError(CodeUpstreamError, "could not delete memory").WithDetail("error", err.Error())
		}
		msg := fmt.Sprintf("Forgot %q.", key)
		if !existed {
			msg = fmt.Sprintf("Nothing was stored under %q.", key)
		}
		return okJSON(map[string]any{"message": msg}), nil
	}

	if err := t.store.Set(ctx, key, args.Value); err != nil {
		return "", NewToolError(CodeUpstreamError, "could not save memory").WithDetail("error", err.Error())
	}
	return okJSON(map[string]any{"message": fmt.Sprintf("Remembered %q.", key)}), nil
}
