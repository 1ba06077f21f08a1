package voice

import (
	"context"
	"strings"

	"voicebot/internal/functions"
	"voicebot/internal/llm"
)

// ChatModel runs one model turn. *llm.Client satisfies it.
type ChatModel interface {
	Chat(ctx context.Context, msgs []llm.Message, tools []llm.Tool) (llm.Reply, error)
}

// Invoker executes a decoded function call for the current call.
type Invoker func(ctx context.Context, inv functions.Invocation) functions.Result

// MaxToolRounds bounds model round-trips for a single utterance.
const MaxToolRounds = 3

// Turn is what the agent wants done after one utterance.
type Turn struct {
	Say string

	// End is the invocation that ended the conversation, nil otherwise.
	End functions.Invocation
}

// Agent keeps one call's chat history. It is not safe for concurrent use;
// a session drives it from a single goroutine.
type Agent struct {
	model   ChatModel
	tools   []llm.Tool
	history []llm.Message
}

func NewAgent(model ChatModel, systemPrompt string) *Agent {
	defs := functions.Definitions()
	tools := make([]llm.Tool, 0, len(defs))
	for _, d := range defs {
		tools = append(tools, llm.Tool{Name: string(d.Name), Description: d.Description, Parameters: d.Parameters})
	}
	return &Agent{
		model:   model,
		tools:   tools,
		history: []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}},
	}
}

// Respond answers one user utterance. An empty utterance asks for the opening line.
// Model failures return TroubleMessage together with the error.
func (a *Agent) Respond(ctx context.Context, userText string, invoke Invoker) (Turn, error) {
	if userText = strings.TrimSpace(userText); userText != "" {
		a.history = append(a.history, llm.Message{Role: llm.RoleUser, Content: userText})
	}

	for round := 0; round < MaxToolRounds; round++ {
		reply, err := a.model.Chat(ctx, a.history, a.tools)
		if err != nil {
			return Turn{Say: TroubleMessage}, err
		}
		a.history = append(a.history, llm.Message{Role: llm.RoleAssistant, Content: reply.Content, ToolCalls: reply.ToolCalls})
		if len(reply.ToolCalls) == 0 {
			return Turn{Say: strings.TrimSpace(reply.Content)}, nil
		}

		for _, call := range reply.ToolCalls {
			var res functions.Result
			inv, err := functions.Decode(call.Name, call.Arguments)
			if err != nil {
				res = functions.Failure(err)
			} else {
				res = invoke(ctx, inv)
			}
			a.history = append(a.history, llm.Message{Role: llm.RoleTool, ToolCallID: call.ID, Content: res.JSON()})
			if res.EndCall {
				return Turn{Say: res.Speech, End: inv}, nil
			}
		}
	}
	return Turn{Say: TroubleMessage}, nil
}

// History returns a copy of the chat so far.
func (a *Agent) History() []llm.Message {
	out := make([]llm.Message, len(a.history))
	copy(out, a.history)
	return out
}
