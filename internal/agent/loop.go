package agent

import (
	"context"
	"fmt"
	"log"

	"github.com/stellarlinkco/sparkclaw/internal/bus"
	"github.com/stellarlinkco/sparkclaw/internal/provider"
	"github.com/stellarlinkco/sparkclaw/internal/session"
	"github.com/stellarlinkco/sparkclaw/internal/tools"
)

const defaultMaxIterations = 20

// exhaustedReply is sent when the model is still requesting tools
// after the iteration budget runs out.
const exhaustedReply = "I've completed processing but have no response."

// MemoryPipeline is the memory subsystem surface the loop needs:
// context retrieval before a turn and the skill pipeline after it.
type MemoryPipeline interface {
	MemoryRetriever
	ProcessTurn(ctx context.Context, userMessage, assistantResponse, sessionKey string) error
}

// Loop is the core processing engine. It receives messages from the
// bus, builds context, calls the model, executes requested tools
// until the model stops asking for them, and returns the final reply.
type Loop struct {
	bus      *bus.MessageBus
	provider provider.Provider
	tools    *tools.Registry
	sessions *session.Manager
	context  *ContextBuilder
	memory   MemoryPipeline

	model         string
	maxTokens     int
	temperature   float64
	maxIterations int
	historyWindow int
}

// LoopOptions configures a Loop. Bus may be nil for direct-only use.
type LoopOptions struct {
	Bus           *bus.MessageBus
	Provider      provider.Provider
	Tools         *tools.Registry
	Sessions      *session.Manager
	Context       *ContextBuilder
	Memory        MemoryPipeline
	Model         string
	MaxTokens     int
	Temperature   float64
	MaxIterations int
	HistoryWindow int
}

// NewLoop wires a Loop from its collaborators.
func NewLoop(opts LoopOptions) *Loop {
	maxIterations := opts.MaxIterations
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}
	historyWindow := opts.HistoryWindow
	if historyWindow <= 0 {
		historyWindow = session.DefaultHistoryWindow
	}
	return &Loop{
		bus:           opts.Bus,
		provider:      opts.Provider,
		tools:         opts.Tools,
		sessions:      opts.Sessions,
		context:       opts.Context,
		memory:        opts.Memory,
		model:         opts.Model,
		maxTokens:     opts.MaxTokens,
		temperature:   opts.Temperature,
		maxIterations: maxIterations,
		historyWindow: historyWindow,
	}
}

// Run consumes inbound messages from the bus until ctx is done,
// publishing one outbound reply per message. Processing failures
// become apology replies, never crashes.
func (l *Loop) Run(ctx context.Context) {
	log.Println("[agent] loop started")
	for {
		select {
		case <-ctx.Done():
			log.Println("[agent] loop stopping")
			return
		case msg := <-l.bus.Inbound:
			l.bus.PublishOutbound(l.Process(ctx, msg))
		}
	}
}

// Process handles one inbound message end to end and returns the
// outbound reply for the same channel and chat.
func (l *Loop) Process(ctx context.Context, msg bus.InboundMessage) bus.OutboundMessage {
	log.Printf("[agent] processing message from %s:%s", msg.Channel, msg.SenderID)

	reply, err := l.respond(ctx, msg.SessionKey(), msg.Content)
	if err != nil {
		log.Printf("[agent] error processing message: %v", err)
		reply = fmt.Sprintf("Sorry, I encountered an error: %v", err)
	}
	return bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: reply,
	}
}

// ProcessDirect handles a message outside any channel, for one-shot
// CLI invocations and the REPL.
func (l *Loop) ProcessDirect(ctx context.Context, content string) (string, error) {
	return l.respond(ctx, "cli:direct", content)
}

func (l *Loop) respond(ctx context.Context, sessionKey, content string) (string, error) {
	sess := l.sessions.GetOrCreate(sessionKey)

	history := make([]provider.Message, 0, l.historyWindow)
	for _, m := range sess.History(l.historyWindow) {
		history = append(history, provider.Message{Role: m.Role, Content: m.Content})
	}

	system := l.context.BuildSystemPrompt(content)
	messages := l.context.BuildMessages(history, content)

	final, err := l.iterate(ctx, system, messages)
	if err != nil {
		return "", err
	}
	if final == "" {
		final = exhaustedReply
	}

	sess.AddMessage("user", content)
	sess.AddMessage("assistant", final)
	if err := l.sessions.Save(sess); err != nil {
		log.Printf("[agent] warning: save session %s: %v", sessionKey, err)
	}

	if l.memory != nil {
		if err := l.memory.ProcessTurn(ctx, content, final, sessionKey); err != nil {
			log.Printf("[agent] memory processing error (non-fatal): %v", err)
		}
	}
	return final, nil
}

// iterate drives the model/tool loop. Every tool call the model makes
// gets exactly one result appended before the next model call. An
// empty return means the iteration budget ran out mid-tool-use.
func (l *Loop) iterate(ctx context.Context, system string, messages []provider.Message) (string, error) {
	temp := l.temperature
	for iteration := 0; iteration < l.maxIterations; iteration++ {
		resp, err := l.provider.Chat(ctx, provider.Request{
			Model:       l.model,
			System:      system,
			Messages:    messages,
			Tools:       l.tools.Definitions(),
			MaxTokens:   l.maxTokens,
			Temperature: &temp,
		})
		if err != nil {
			return "", fmt.Errorf("model call: %w", err)
		}

		if !resp.HasToolCalls() {
			return resp.Message.Content, nil
		}

		messages = append(messages, resp.Message)

		results := make([]provider.ToolCall, 0, len(resp.Message.ToolCalls))
		for _, call := range resp.Message.ToolCalls {
			log.Printf("[agent] executing tool: %s", call.Name)
			result := l.tools.Execute(ctx, call.Name, call.Arguments)
			results = append(results, provider.ToolCall{
				ID:      call.ID,
				Name:    call.Name,
				Result:  result.Output,
				IsError: result.IsError,
			})
		}
		messages = append(messages, provider.Message{Role: "tool", ToolCalls: results})
	}
	return "", nil
}
