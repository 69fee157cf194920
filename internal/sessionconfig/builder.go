// Package sessionconfig composes the realtime session.update payload and
// coalesces live edits into debounced updates.
package sessionconfig

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ent0n29/glassvoice/internal/memory"
	"github.com/ent0n29/glassvoice/internal/realtime"
)

const DefaultBaseInstructions = "You are a helpful voice assistant running on the user's smart glasses. " +
	"Keep answers short and conversational since they are spoken aloud. " +
	"Use take_photo when the user asks about what they are looking at, manage_memory to remember or forget facts about them, " +
	"and search_internet for current information."

type Options struct {
	Voice              string
	TranscriptionModel string
	VADThreshold       float64
	PrefixPadding      time.Duration
	SilenceDuration    time.Duration
	// IntentGate disables server-side auto responses; the client decides.
	IntentGate       bool
	BaseInstructions string
}

// ToolSource supplies tool declarations.
type ToolSource interface {
	Definitions() []realtime.ToolDefinition
}

type Builder struct {
	opts  Options
	store memory.Store
	tools ToolSource
}

func NewBuilder(opts Options, store memory.Store, tools ToolSource) *Builder {
	if strings.TrimSpace(opts.BaseInstructions) == "" {
		opts.BaseInstructions = DefaultBaseInstructions
	}
	if opts.Voice == "" {
		opts.Voice = "alloy"
	}
	if opts.TranscriptionModel == "" {
		opts.TranscriptionModel = "whisper-1"
	}
	if opts.VADThreshold <= 0 {
		opts.VADThreshold = 0.5
	}
	if opts.PrefixPadding <= 0 {
		opts.PrefixPadding = 300 * time.Millisecond
	}
	if opts.SilenceDuration <= 0 {
		opts.SilenceDuration = 500 * time.Millisecond
	}
	return &Builder{opts: opts, store: store, tools: tools}
}

// Build reads the current instructions and memories and returns the session
// configuration.
func (b *Builder) Build(ctx context.Context) (realtime.SessionConfig, error) {
	var (
		addendum string
		mems     []memory.Memory
		err      error
	)
	if b.store != nil {
		if addendum, err = b.store.Instructions(ctx); err != nil {
			return realtime.SessionConfig{}, fmt.Errorf("load instructions: %w", err)
		}
		if mems, err = b.store.List(ctx); err != nil {
			return realtime.SessionConfig{}, fmt.Errorf("load memories: %w", err)
		}
	}
	var defs []realtime.ToolDefinition
	if b.tools != nil {
		defs = b.tools.Definitions()
	}
	return Compose(b.opts, addendum, mems, defs), nil
}

// Compose is the pure part of Build. Memories and tools are sorted so equal
// inputs always encode to the same bytes.
func Compose(opts Options, addendum string, mems []memory.Memory, tools []realtime.ToolDefinition) realtime.SessionConfig {
	sortedTools := append([]realtime.ToolDefinition(nil), tools...)
	sort.SliceStable(sortedTools, func(i, j int) bool { return sortedTools[i].Name < sortedTools[j].Name })
	if sortedTools == nil {
		sortedTools = []realtime.ToolDefinition{}
	}

	return realtime.SessionConfig{
		Modalities:              []string{"audio", "text"},
		Instructions:            Instructions(opts.BaseInstructions, addendum, mems),
		Voice:                   opts.Voice,
		InputAudioFormat:        "pcm16",
		OutputAudioFormat:       "pcm16",
		InputAudioTranscription: &realtime.TranscriptionConfig{Model: opts.TranscriptionModel},
		TurnDetection: &realtime.TurnDetection{
			Type:              "server_vad",
			Threshold:         opts.VADThreshold,
			PrefixPaddingMS:   int(opts.PrefixPadding.Milliseconds()),
			SilenceDurationMS: int(opts.SilenceDuration.Milliseconds()),
			CreateResponse:    !opts.IntentGate,
			InterruptResponse: false,
		},
		Tools:      sortedTools,
		ToolChoice: "auto",
	}
}

// Instructions joins the base prompt, the user's addendum and memories.
func Instructions(base, addendum string, mems []memory.Memory) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(base))
	if a := strings.TrimSpace(addendum); a != "" {
		b.WriteString("\n\nAdditional instructions from the user:\n")
		b.WriteString(a)
	}

	sorted := make([]memory.Memory, 0, len(mems))
	for _, m := range mems {
		if strings.TrimSpace(m.Key) == "" || strings.TrimSpace(m.Value) == "" {
			continue
		}
		sorted = append(sorted, m)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })
	if len(sorted) > 0 {
		b.WriteString("\n\nThings you remember about the user:")
		for _, m := range sorted {
			fmt.Fprintf(&b, "\n- %s: %s", strings.TrimSpace(m.Key), strings.TrimSpace(m.Value))
		}
	}
	return b.String()
}
