package conversation

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestHeuristicClassifier(t *testing.T) {
	cases := []struct {
		text string
		want Intent
	}{
		{"what's the weather in paris?", IntentRespond},
		{"take a picture please", IntentRespond},
		{"remind me to buy milk and", IntentHold},
		{"so i was thinking,", IntentHold},
		{"let me think", IntentHold},
		{"tell me about the eiffel tower", IntentRespond},
		{"hmm", IntentUnknown},
		{"   ", IntentUnknown},
	}
	h := HeuristicClassifier{}
	for _, tc := range cases {
		got, err := h.Classify(context.Background(), tc.text)
		if err != nil {
			t.Fatalf("Classify(%q) error = %v", tc.text, err)
		}
		if got != tc.want {
			t.Fatalf("Classify(%q) = %s, want %s", tc.text, got, tc.want)
		}
	}
}

func TestShouldRespondFailsOpen(t *testing.T) {
	ctx := context.Background()

	if ok, _ := ShouldRespond(ctx, nil, "x", 0); !ok {
		t.Fatalf("nil classifier suppressed response")
	}

	failing := ClassifierFunc(func(context.Context, string) (Intent, error) {
		return IntentHold, errors.New("model unavailable")
	})
	if ok, _ := ShouldRespond(ctx, failing, "x", 0); !ok {
		t.Fatalf("classifier error suppressed response")
	}

	slow := ClassifierFunc(func(ctx context.Context, _ string) (Intent, error) {
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
		}
		return IntentHold, nil
	})
	start := time.Now()
	ok, intent := ShouldRespond(ctx, slow, "x", 20*time.Millisecond)
	if !ok || intent != IntentUnknown {
		t.Fatalf("timeout = (%v, %s), want (true, unknown)", ok, intent)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatalf("ShouldRespond did not honor timeout")
	}

	unknown := ClassifierFunc(func(context.Context, string) (Intent, error) { return IntentUnknown, nil })
	if ok, _ := ShouldRespond(ctx, unknown, "x", 0); !ok {
		t.Fatalf("unknown suppressed response")
	}
}

func TestShouldRespondHonorsHold(t *testing.T) {
	ok, intent := ShouldRespond(context.Background(), HeuristicClassifier{}, "and then", time.Second)
	if ok || intent != IntentHold {
		t.Fatalf("ShouldRespond() = (%v, %s), want (false, hold)", ok, intent)
	}
}
