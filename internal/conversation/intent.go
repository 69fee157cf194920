package conversation

import (
	"context"
	"regexp"
	"strings"
	"time"
)

type Intent string

const (
	IntentRespond Intent = "respond"
	IntentHold    Intent = "hold"
	IntentUnknown Intent = "unknown"
)

// Classifier decides whether a finished utterance should get a response.
type Classifier interface {
	Classify(ctx context.Context, transcript string) (Intent, error)
}

type ClassifierFunc func(ctx context.Context, transcript string) (Intent, error)

func (f ClassifierFunc) Classify(ctx context.Context, transcript string) (Intent, error) {
	return f(ctx, transcript)
}

var (
	continuationTailRe   = regexp.MustCompile(`(?i)\b(and|but|because|so|then|which|that|if|when|while|as|to|for|or|the|a|an|my|your|um|uh)\s*$`)
	continuationPhraseRe = regexp.MustCompile(`(?i)\b(i mean|for example|for instance|in order to|hold on|wait a (sec|second|minute)|let me think)\s*$`)
	terminalTailRe       = regexp.MustCompile(`(?i)([.!?]["']?\s*$|\b(done|thanks|thank you|that's all|thats all|please|go ahead)\s*$)`)
	openTailRe           = regexp.MustCompile(`[,;:\-…]\s*$`)
)

// HeuristicClassifier looks at the tail of the transcript: an open clause or
// filler means the speaker paused mid-thought.
type HeuristicClassifier struct {
	// MinWords below which a non-terminal utterance is reported unknown.
	MinWords int
}

func (h HeuristicClassifier) Classify(_ context.Context, transcript string) (Intent, error) {
	normalized := strings.TrimSpace(strings.ToLower(transcript))
	if normalized == "" {
		return IntentUnknown, nil
	}
	if hasContinuationCue(normalized) {
		return IntentHold, nil
	}
	if terminalTailRe.MatchString(normalized) {
		return IntentRespond, nil
	}
	min := h.MinWords
	if min <= 0 {
		min = 2
	}
	if len(strings.Fields(normalized)) < min {
		return IntentUnknown, nil
	}
	return IntentRespond, nil
}

func hasContinuationCue(normalized string) bool {
	return openTailRe.MatchString(normalized) ||
		continuationTailRe.MatchString(normalized) ||
		continuationPhraseRe.MatchString(normalized)
}

// ShouldRespond runs the classifier under timeout and fails open: only an
// explicit hold suppresses the response.
func ShouldRespond(ctx context.Context, c Classifier, transcript string, timeout time.Duration) (bool, Intent) {
	if c == nil {
		return true, IntentUnknown
	}
	if timeout <= 0 {
		timeout = 300 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		intent Intent
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		intent, err := c.Classify(ctx, transcript)
		ch <- result{intent, err}
	}()

	select {
	case <-ctx.Done():
		return true, IntentUnknown
	case r := <-ch:
		if r.err != nil {
			return true, IntentUnknown
		}
		return r.intent != IntentHold, r.intent
	}
}
