package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/nightwatch/internal/toolexec"
	"github.com/linnemanlabs/nightwatch/internal/wyoming"
)

const (
	// MaxToolCalls bounds a single utterance's turn to at most one tool
	// dispatch round per spec.md section 4.J's "zero or one tool call".
	MaxToolCalls = 1

	// DefaultQueueSize is the bounded response queue's capacity
	// (spec.md section 5's back-pressure rule: default 8, drop-oldest).
	DefaultQueueSize = 8

	// DefaultSilenceDuration is the default end-of-utterance silence
	// length (spec.md section 4.J). Nothing in this package reads it:
	// HandleUtterance receives segments the caller has already delimited.
	DefaultSilenceDuration = 800 * time.Millisecond

	// DefaultConfidenceThreshold gates dispatch: STT results below this
	// confidence synthesize a clarification prompt instead.
	DefaultConfidenceThreshold = 0.55
)

// STTClient is the minimal surface the coordinator needs to submit
// captured audio and receive a transcript. Satisfied by *wyoming.Client.
type STTClient interface {
	Send(m wyoming.Message) error
	Receive(deadline time.Time) (wyoming.Message, error)
}

// TTSClient is the minimal surface the coordinator needs to submit
// synthesis requests and drain the resulting audio frames.
type TTSClient interface {
	Send(m wyoming.Message) error
	Receive(deadline time.Time) (wyoming.Message, error)
}

// SpeechSegment is one VAD-delimited utterance: raw PCM plus the format
// it was captured at.
type SpeechSegment struct {
	Audio    []byte
	Rate     int
	Width    int
	Channels int
}

// AudioResponse is a spoken reply queued for playback: the TTS server's
// audio-start/chunk*/audio-stop sequence, concatenated.
type AudioResponse struct {
	Audio []byte
	Rate  int
}

// Coordinator orchestrates one voice turn at a time: capture → STT →
// LLM tool selection → Tool Executor → TTS (spec.md section 4.J).
// Grounded on vigil's internal/triage.Engine's dispatch-loop shape,
// narrowed to a single utterance.
type Coordinator struct {
	stt      STTClient
	tts      TTSClient
	provider Provider
	executor *toolexec.Executor
	logger   log.Logger

	system              string
	confidenceThreshold float64
	ioTimeout           time.Duration

	mu       sync.Mutex
	queue    []AudioResponse
	queueCap int
	stopped  bool
	cancel   context.CancelFunc
}

// Config configures a Coordinator. Zero values fall back to the
// package's Default* constants.
type Config struct {
	System              string
	ConfidenceThreshold float64
	QueueSize           int
	IOTimeout           time.Duration
}

// NewCoordinator builds a Coordinator. stt, tts, provider, and executor
// must be non-nil; a nil logger falls back to log.Nop().
func NewCoordinator(stt STTClient, tts TTSClient, provider Provider, executor *toolexec.Executor, logger log.Logger, cfg Config) *Coordinator {
	if logger == nil {
		logger = log.Nop()
	}
	threshold := cfg.ConfidenceThreshold
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	queueCap := cfg.QueueSize
	if queueCap <= 0 {
		queueCap = DefaultQueueSize
	}
	ioTimeout := cfg.IOTimeout
	if ioTimeout <= 0 {
		ioTimeout = 10 * time.Second
	}
	return &Coordinator{
		stt:                 stt,
		tts:                 tts,
		provider:            provider,
		executor:            executor,
		logger:              logger,
		system:              cfg.System,
		confidenceThreshold: threshold,
		ioTimeout:           ioTimeout,
		queueCap:            queueCap,
	}
}

// HandleUtterance drives one full turn for a VAD-delimited speech
// segment: STT round-trip, LLM tool-selection turn, Tool Executor
// dispatch, TTS round-trip, and enqueues the resulting audio. Returns
// the queued response for callers that want it immediately (e.g.
// tests); playback consumers should prefer Next.
func (c *Coordinator) HandleUtterance(ctx context.Context, seg SpeechSegment) (AudioResponse, error) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.stopped = false
	c.mu.Unlock()
	defer cancel()

	transcript, err := c.transcribe(ctx, seg)
	if err != nil {
		return AudioResponse{}, fmt.Errorf("voice: transcribe: %w", err)
	}

	var replyText string
	if transcript.Confidence < c.confidenceThreshold {
		c.logger.Info(ctx, "voice: low confidence transcript, asking for clarification",
			"confidence", transcript.Confidence, "threshold", c.confidenceThreshold)
		replyText = "I didn't catch that clearly. Could you repeat the command?"
	} else {
		replyText, err = c.runTurn(ctx, transcript.Text)
		if err != nil {
			return AudioResponse{}, fmt.Errorf("voice: llm turn: %w", err)
		}
	}

	resp, err := c.synthesize(ctx, replyText)
	if err != nil {
		return AudioResponse{}, fmt.Errorf("voice: synthesize: %w", err)
	}

	c.enqueue(resp)
	return resp, nil
}

// transcribe submits seg to the STT service and waits for its
// transcript, per spec.md section 4.I's audio-start/chunk/stop sequence.
func (c *Coordinator) transcribe(ctx context.Context, seg SpeechSegment) (wyoming.Transcript, error) {
	if err := c.stt.Send(wyoming.NewAudioStart(seg.Rate, seg.Width, seg.Channels)); err != nil {
		return wyoming.Transcript{}, err
	}
	if err := c.stt.Send(wyoming.NewAudioChunk(seg.Audio, seg.Rate, seg.Width, seg.Channels)); err != nil {
		return wyoming.Transcript{}, err
	}
	if err := c.stt.Send(wyoming.NewAudioStop()); err != nil {
		return wyoming.Transcript{}, err
	}

	deadline := time.Now().Add(c.ioTimeout)
	msg, err := c.stt.Receive(deadline)
	if err != nil {
		return wyoming.Transcript{}, err
	}
	if msg.Type == wyoming.TypeError {
		if e, ok := msg.Data.(wyoming.Error); ok {
			return wyoming.Transcript{}, fmt.Errorf("stt error: %s", e.Text)
		}
		return wyoming.Transcript{}, fmt.Errorf("stt error")
	}
	t, ok := msg.Data.(wyoming.Transcript)
	if !ok {
		return wyoming.Transcript{}, fmt.Errorf("unexpected stt response type %s", msg.Type)
	}
	return t, nil
}

// synthesize submits text to the TTS service and reassembles the
// resulting audio-chunk sequence into one buffer.
func (c *Coordinator) synthesize(ctx context.Context, text string) (AudioResponse, error) {
	if err := c.tts.Send(wyoming.NewSynthesize(text, "")); err != nil {
		return AudioResponse{}, err
	}

	var out AudioResponse
	deadline := time.Now().Add(c.ioTimeout)
	for {
		msg, err := c.tts.Receive(deadline)
		if err != nil {
			return AudioResponse{}, err
		}
		switch msg.Type {
		case wyoming.TypeAudioStart:
			if start, ok := msg.Data.(wyoming.AudioStart); ok {
				out.Rate = start.Rate
			}
		case wyoming.TypeAudioChunk:
			if chunk, ok := msg.Data.(wyoming.AudioChunk); ok {
				out.Audio = append(out.Audio, chunk.Audio...)
			}
		case wyoming.TypeAudioStop:
			return out, nil
		case wyoming.TypeError:
			if e, ok := msg.Data.(wyoming.Error); ok {
				return AudioResponse{}, fmt.Errorf("tts error: %s", e.Text)
			}
			return AudioResponse{}, fmt.Errorf("tts error")
		default:
			c.logger.Warn(ctx, "voice: unexpected tts message", "type", string(msg.Type))
		}
	}
}

// runTurn sends the transcribed text to the LLM provider along with the
// Tool Executor's catalog, dispatches at most one resulting tool call,
// and returns the text to speak back — either the LLM's own final
// utterance, the tool call's direct text answer, or an error summary.
func (c *Coordinator) runTurn(ctx context.Context, text string) (string, error) {
	tools := toolDefsFromHandlers(c.executor.Registered())

	messages := []Message{
		{Role: "user", Content: []ContentBlock{{Type: "text", Text: text}}},
	}

	resp, err := c.provider.Send(ctx, &Request{
		MaxTokens: DefaultResponseTokens,
		System:    c.system,
		Messages:  messages,
		Tools:     tools,
	})
	if err != nil {
		return "", err
	}

	if resp.StopReason == StopEnd {
		return finalText(resp.Content), nil
	}

	if resp.StopReason != StopToolUse {
		return finalText(resp.Content), nil
	}

	var toolResults []ContentBlock
	var lastResult toolexec.ToolResult
	dispatched := false
	for _, block := range resp.Content {
		if block.Type != "tool_use" {
			continue
		}
		if dispatched {
			// spec.md section 4.J scopes a voice turn to zero or one
			// tool call; extra tool_use blocks in one turn are refused
			// rather than silently executed.
			toolResults = append(toolResults, ContentBlock{
				Type: "tool_result", ToolUseID: block.ID,
				Content: "only one tool call is permitted per utterance", IsError: true,
			})
			continue
		}
		dispatched = true

		var params map[string]any
		if len(block.Input) > 0 {
			if err := json.Unmarshal(block.Input, &params); err != nil {
				toolResults = append(toolResults, ContentBlock{
					Type: "tool_result", ToolUseID: block.ID,
					Content: fmt.Sprintf("invalid tool input: %v", err), IsError: true,
				})
				continue
			}
		}

		result := c.executor.Execute(ctx, block.Name, params)
		lastResult = result
		c.logger.Info(ctx, "voice: tool dispatched", "tool", block.Name, "status", string(result.Status))

		content, isErr := summarizeResult(result)
		toolResults = append(toolResults, ContentBlock{
			Type: "tool_result", ToolUseID: block.ID, Content: content, IsError: isErr,
		})
	}

	messages = append(messages, Message{Role: "assistant", Content: resp.Content})
	messages = append(messages, Message{Role: "user", Content: toolResults})

	final, err := c.provider.Send(ctx, &Request{
		MaxTokens: DefaultResponseTokens,
		System:    c.system,
		Messages:  messages,
		Tools:     tools,
	})
	if err != nil {
		if lastResult.Tool != "" {
			content, _ := summarizeResult(lastResult)
			return content, nil
		}
		return "", err
	}
	return finalText(final.Content), nil
}

func finalText(blocks []ContentBlock) string {
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			return b.Text
		}
	}
	return ""
}

// summarizeResult turns a ToolResult into the plain-text a voice reply
// or a tool_result content block carries, per spec.md section 4.J's
// "textual result (or an error summary) becomes the TTS input".
func summarizeResult(r toolexec.ToolResult) (text string, isError bool) {
	switch r.Status {
	case toolexec.StatusSuccess:
		data, err := json.Marshal(r.Data)
		if err != nil || string(data) == "null" {
			return "done", false
		}
		return string(data), false
	case toolexec.StatusVetoed:
		return fmt.Sprintf("blocked by the safety monitor: %v", r.Reasons), true
	case toolexec.StatusNotFound:
		return fmt.Sprintf("unknown tool %q", r.Tool), true
	case toolexec.StatusInvalidParams:
		return fmt.Sprintf("invalid parameters: %s", r.Error), true
	case toolexec.StatusTimeout:
		return "the command timed out", true
	default:
		return fmt.Sprintf("error: %s", r.Error), true
	}
}

// enqueue appends resp to the bounded response queue, dropping the
// oldest entry on overflow (spec.md section 5's back-pressure rule).
func (c *Coordinator) enqueue(resp AudioResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.queue = append(c.queue, resp)
	if len(c.queue) > c.queueCap {
		c.queue = c.queue[len(c.queue)-c.queueCap:]
	}
}

// Next pops the oldest queued response, if any.
func (c *Coordinator) Next() (AudioResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return AudioResponse{}, false
	}
	resp := c.queue[0]
	c.queue = c.queue[1:]
	return resp, true
}

// QueueLen reports how many responses are currently queued.
func (c *Coordinator) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Stop implements barge-in: it clears the pending response queue and
// cancels any in-flight turn (spec.md section 4.J).
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	c.queue = nil
	if c.cancel != nil {
		c.cancel()
	}
}
