package flavia

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flavioluiz/flavia-go/agent"
	"github.com/flavioluiz/flavia-go/llm"
	"github.com/flavioluiz/flavia-go/tools"
)

// tracer emits one span per Run call; LLM round trips and tool dispatch do
// not get spans of their own. A no-op
// TracerProvider (otel's default when a host hasn't configured one) makes
// this free when nobody is exporting spans.
var tracer = otel.Tracer("github.com/flavioluiz/flavia-go")

// maxIterations bounds a single Run call the way RecursiveAgent.MAX_ITERATIONS
// does: a runaway tool-call loop terminates with a message instead of
// spinning forever.
const maxIterations = 20

const (
	maxMentionGroundingReminders = 3
	maxComparisonFormatReminders = 2
)

// defaultMaxContextTokens is the fallback context window size used when no
// model-config registry is available to report one (the Go port's providers
// are configured by base_url/model string, not a catalog with per-model
// token limits).
const defaultMaxContextTokens = 128_000

// Agent is the root or a spawned sub-agent of one conversation: its runtime
// context, the shared tool registry and LLM provider, and the running
// message history the loop mutates turn by turn.
type Agent struct {
	Settings Settings
	Profile  agent.Profile
	Ctx      agent.Context
	Provider llm.Provider
	Tools    *tools.Registry

	StatusCallback agent.StatusCallback

	// Metrics is optional; when set, tool dispatch and iteration counts are
	// recorded on it for a host process to scrape via Metrics.Handler().
	Metrics *Metrics

	Messages []map[string]any

	childCounter int
	childMu      sync.Mutex

	lastPromptTokens               int
	lastCompletionTokens           int
	totalPromptTokens              int
	totalCompletionTokens          int
	maxContextTokens               int
	compactionWarningPending       bool
	compactionWarningPromptTokens  int
	compactionWarningInjected      bool

	// lastSearchResultText is the most recent successful search_chunks
	// result text, kept so the comparison-format policy can verify answer
	// citations against what was actually retrieved (see citations.go).
	// Local to this Agent instance, never shared across concurrently
	// running sub-agents.
	lastSearchResultText string
}

// RunOptions mirrors RecursiveAgent.run's keyword arguments.
type RunOptions struct {
	// MaxIterations overrides maxIterations when > 0.
	MaxIterations int
	// ContinueFromCurrent skips appending userMessage as a new user turn,
	// for resuming a run whose message history the caller already extended.
	ContinueFromCurrent bool
}

// NewAgent builds the root agent for a fresh conversation.
func NewAgent(settings Settings, profile agent.Profile, reg *tools.Registry, provider llm.Provider, agentID string) *Agent {
	a := &Agent{
		Settings:         settings,
		Profile:          profile,
		Provider:         provider,
		Tools:            reg,
		maxContextTokens: defaultMaxContextTokens,
	}
	a.Ctx = agent.FromProfile(profile, agentID)
	a.Ctx.RAGDebug = settings.RAGDebug
	a.initSystemPrompt()
	return a
}

func (a *Agent) initSystemPrompt() {
	toolDescs := a.Tools.ToolDescriptions(a.Profile.Tools, a.Ctx)
	toolsDesc := agent.BuildToolsDescription(toolDescs)
	systemPrompt := agent.BuildSystemPrompt(a.Profile, a.Ctx, toolsDesc)
	a.Messages = []map[string]any{{"role": "system", "content": systemPrompt}}
}

func (a *Agent) notifyStatus(status agent.ToolStatus) {
	if a.StatusCallback != nil {
		a.StatusCallback(status)
	}
}

func (a *Agent) contextUtilization() float64 {
	if a.maxContextTokens <= 0 {
		return 0
	}
	return float64(a.lastPromptTokens) / float64(a.maxContextTokens)
}

func (a *Agent) needsCompaction() bool {
	threshold := a.Profile.CompactThreshold
	if threshold <= 0 {
		return false
	}
	return a.contextUtilization() >= threshold
}

// Run drives the tool-call loop for one user turn: it calls the LLM,
// dispatches any tool calls (splicing spawn results back in once children
// finish), enforces the mention-grounding/cross-doc-coverage/comparison
// policies with bounded reminder budgets, and returns the final answer.
func (a *Agent) Run(userMessage string, opts RunOptions) (string, error) {
	runCtx, span := tracer.Start(context.Background(), "agent.Run", trace.WithAttributes(
		attribute.String("flavia.agent_id", a.Ctx.AgentID),
		attribute.Int("flavia.depth", a.Ctx.CurrentDepth),
	))
	defer span.End()

	a.compactionWarningPending = false
	a.compactionWarningPromptTokens = 0
	a.compactionWarningInjected = false

	// Only the root agent mints a fresh turn id per Run call; sub-agents
	// inherit theirs via CreateChildContext and keep it for their whole
	// (single) run so debug traces stay correlated across the spawn tree.
	if a.Ctx.ParentID == "" {
		a.Ctx.RAGTurnCounter++
		a.Ctx.RAGTurnID = uuid.NewString()
	}

	if !opts.ContinueFromCurrent {
		a.Messages = append(a.Messages, map[string]any{"role": "user", "content": userMessage})
	}

	iterationLimit := maxIterations
	if opts.MaxIterations > 0 {
		iterationLimit = opts.MaxIterations
	}
	if iterationLimit < 1 {
		iterationLimit = 1
	}

	iterations := 0
	var pendingSpawns []spawnRequest
	hadWriteToolCall := false
	hadSuccessfulWrite := false
	var writeFailures []string

	requiredMentions := extractDocMentions(userMessage)
	requiresMention := requiresMentionScopedSearch(userMessage, a.Ctx.AvailableTools, a.Ctx.BaseDir)
	requiresCoverage := requiresCrossDocCoverage(userMessage, len(requiredMentions))
	forceExhaustive := requiresExhaustiveRetrieval(userMessage)

	mentionAttempts := 0
	coverageAttempts := 0
	comparisonAttempts := 0
	hadGroundedSearch := false
	coveredMentions := map[string]bool{}

	for iterations < iterationLimit {
		iterations++

		if a.Metrics != nil {
			a.Metrics.AgentIterations.Inc()
		}
		a.notifyStatus(agent.WaitingLLM(a.Ctx.AgentID, a.Ctx.CurrentDepth))
		response, err := a.callLLM(runCtx, a.Messages)
		if err != nil {
			span.SetStatus(otelcodes.Error, err.Error())
			return "", err
		}
		a.Messages = append(a.Messages, assistantMessageToDict(response))
		if a.needsCompaction() {
			a.compactionWarningPending = true
			if a.lastPromptTokens > a.compactionWarningPromptTokens {
				a.compactionWarningPromptTokens = a.lastPromptTokens
			}
		}

		if len(response.ToolCalls) == 0 {
			if requiresCoverage && len(requiredMentions) > 0 && !mentionSetsEqual(requiredMentions, coveredMentions) {
				remaining := remainingMentions(requiredMentions, coveredMentions)
				if coverageAttempts >= maxMentionGroundingReminders {
					return mentionCoverageErrorMessage(remaining), nil
				}
				coverageAttempts++
				if a.Metrics != nil {
					a.Metrics.GroundingReminders.WithLabelValues("coverage").Inc()
				}
				a.Messages = append(a.Messages, map[string]any{
					"role": "user",
					"content": fmt.Sprintf(
						"[System notice] This is a multi-file comparison request. Before answering, "+
							"call search_chunks again and include the remaining @mentions in the query: %s.",
						formatMentions(remaining)),
				})
				continue
			}
			if requiresCoverage && hadGroundedSearch && !verifiedComparisonCitations(response.Content, a.lastSearchResultText) {
				if comparisonAttempts >= maxComparisonFormatReminders {
					return comparisonFormatErrorMessage(), nil
				}
				comparisonAttempts++
				if a.Metrics != nil {
					a.Metrics.GroundingReminders.WithLabelValues("comparison").Inc()
				}
				a.Messages = append(a.Messages, map[string]any{
					"role": "user",
					"content": "[System notice] For comparative multi-file tasks, answer in two stages:\n" +
						"1) Evidence matrix grouped by source file.\n" +
						"2) Conclusions based only on cited evidence.\n" +
						"Every factual claim must include at least one citation marker like [1]. " +
						"If evidence is missing, explicitly write 'not found in retrieved evidence'.",
				})
				continue
			}
			if requiresMention && !hadGroundedSearch {
				if mentionAttempts >= maxMentionGroundingReminders {
					return mentionGroundingErrorMessage(), nil
				}
				mentionAttempts++
				if a.Metrics != nil {
					a.Metrics.GroundingReminders.WithLabelValues("mention").Inc()
				}
				a.Messages = append(a.Messages, map[string]any{
					"role": "user",
					"content": "[System notice] The user referenced files using @mentions. " +
						"Before answering, you must call search_chunks with the user query " +
						"(including @mentions) to ground the response in indexed evidence.",
				})
				continue
			}

			fallback := "I could not produce a textual response. Please try rephrasing your question."
			finalText := response.Content
			if finalText == "" {
				finalText = fallback
			}
			if hadWriteToolCall && !hadSuccessfulWrite && len(writeFailures) > 0 {
				start := 0
				if len(writeFailures) > 3 {
					start = len(writeFailures) - 3
				}
				var details strings.Builder
				for _, f := range writeFailures[start:] {
					fmt.Fprintf(&details, "- %s\n", f)
				}
				finalText += "\n\nWrite operations were not applied due to errors:\n" + strings.TrimRight(details.String(), "\n")
			}
			return finalText, nil
		}

		toolResults, spawns := a.processToolCallsWithSpawns(response.ToolCalls, forceExhaustive)

		if a.needsCompaction() && !a.compactionWarningInjected {
			a.compactionWarningInjected = true
			pct := a.contextUtilization() * 100
			remaining := a.maxContextTokens - a.lastPromptTokens
			warning := fmt.Sprintf(
				"[System notice] Context window is at %.0f%% capacity (%d/%d tokens, ~%d remaining). "+
					"You have the compact_context tool available to summarize the conversation and free "+
					"up space. Consider using it now, or wrap up your current task quickly.",
				pct, a.lastPromptTokens, a.maxContextTokens, remaining)
			a.Messages = append(a.Messages, map[string]any{"role": "user", "content": warning})
		}

		for i, tc := range response.ToolCalls {
			name := tc.Function.Name
			resultText, _ := toolResults[i]["content"].(string)

			if name == "search_chunks" {
				var toolArgs map[string]any
				if json.Unmarshal([]byte(tc.Function.Arguments), &toolArgs) == nil {
					if q, ok := toolArgs["query"].(string); ok {
						for qm := range extractDocMentions(q) {
							for rm := range requiredMentions {
								if mentionsEquivalent(rm, qm) {
									coveredMentions[rm] = true
								}
							}
						}
					}
				}
				if strings.HasPrefix(resultText, "No indexed documents match the @file references") {
					return resultText, nil
				}
				if !isErrorResult(resultText) {
					hadGroundedSearch = true
					a.lastSearchResultText = resultText
				}
			}

			if writeToolNames[name] {
				hadWriteToolCall = true
				if isErrorResult(resultText) {
					writeFailures = append(writeFailures, fmt.Sprintf("%s: %s", name, resultText))
				} else {
					hadSuccessfulWrite = true
				}
			}
		}

		a.Messages = append(a.Messages, toolResults...)
		pendingSpawns = append(pendingSpawns, spawns...)

		if requiresMention && !hadGroundedSearch && !anyToolCallNamed(response.ToolCalls, "search_chunks") {
			if mentionAttempts >= maxMentionGroundingReminders {
				return mentionGroundingErrorMessage(), nil
			}
			mentionAttempts++
			if a.Metrics != nil {
				a.Metrics.GroundingReminders.WithLabelValues("mention").Inc()
			}
			a.Messages = append(a.Messages, map[string]any{
				"role": "user",
				"content": "[System notice] You still need to call search_chunks for the @mentioned " +
					"files before producing the final answer.",
			})
		}

		if len(pendingSpawns) > 0 {
			spawnResults := a.executeSpawnsParallel(pendingSpawns)
			for _, sr := range spawnResults {
				for _, msg := range a.Messages {
					if id, _ := msg["tool_call_id"].(string); id == sr.ToolCallID {
						msg["content"] = sr.Content
						break
					}
				}
			}
			pendingSpawns = nil
		}
	}

	slog.Warn("agent: max iterations reached", "agent_id", a.Ctx.AgentID, "limit", iterationLimit)
	return formatMaxIterationsMessage(iterationLimit), nil
}

func anyToolCallNamed(calls []llm.ToolCall, name string) bool {
	for _, c := range calls {
		if c.Function.Name == name {
			return true
		}
	}
	return false
}

// callLLM sends the running message history to the provider with the
// profile's available tool schemas attached, and records token usage.
func (a *Agent) callLLM(ctx context.Context, messages []map[string]any) (*llm.ChatResponse, error) {
	req := llm.ChatRequest{
		Model:    a.Ctx.ModelID,
		Messages: toLLMMessages(messages),
	}
	toolSchemas := a.Tools.BuildLLMTools(a.Profile.Tools, a.Ctx)
	if len(toolSchemas) > 0 {
		req.Tools = toolSchemas
		req.ToolChoice = "auto"
	}

	resp, err := a.Provider.Chat(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("LLM call failed for model %q: %w", a.Ctx.ModelID, err)
	}
	a.updateTokenUsage(resp)
	return resp, nil
}

func (a *Agent) updateTokenUsage(resp *llm.ChatResponse) {
	a.lastPromptTokens = resp.PromptTokens
	a.lastCompletionTokens = resp.CompletionTokens
	a.totalPromptTokens += resp.PromptTokens
	a.totalCompletionTokens += resp.CompletionTokens
}

func toLLMMessages(messages []map[string]any) []llm.Message {
	out := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		var msg llm.Message
		if v, ok := m["role"].(string); ok {
			msg.Role = v
		}
		if v, ok := m["content"].(string); ok {
			msg.Content = v
		}
		if v, ok := m["tool_call_id"].(string); ok {
			msg.ToolCallID = v
		}
		if v, ok := m["name"].(string); ok {
			msg.Name = v
		}
		if rawCalls, ok := m["tool_calls"].([]any); ok {
			for _, rc := range rawCalls {
				call, ok := rc.(map[string]any)
				if !ok {
					continue
				}
				tc := llm.ToolCall{Type: "function"}
				if id, ok := call["id"].(string); ok {
					tc.ID = id
				}
				if fn, ok := call["function"].(map[string]any); ok {
					if n, ok := fn["name"].(string); ok {
						tc.Function.Name = n
					}
					if args, ok := fn["arguments"].(string); ok {
						tc.Function.Arguments = args
					}
				}
				msg.ToolCalls = append(msg.ToolCalls, tc)
			}
		}
		out = append(out, msg)
	}
	return out
}

// assistantMessageToDict normalizes an LLM response into the wire-format
// message dict appended to the running history.
func assistantMessageToDict(resp *llm.ChatResponse) map[string]any {
	msg := map[string]any{"role": "assistant", "content": resp.Content}
	if len(resp.ToolCalls) > 0 {
		calls := make([]any, 0, len(resp.ToolCalls))
		for _, tc := range resp.ToolCalls {
			calls = append(calls, map[string]any{
				"id":   tc.ID,
				"type": "function",
				"function": map[string]any{
					"name":      tc.Function.Name,
					"arguments": tc.Function.Arguments,
				},
			})
		}
		msg["tool_calls"] = calls
	}
	return msg
}

// processToolCallsWithSpawns executes every tool call, peeling spawn and
// compaction sentinels off into dedicated handling so the loop only ever
// sees plain tool-result strings.
func (a *Agent) processToolCallsWithSpawns(toolCalls []llm.ToolCall, forceExhaustive bool) ([]map[string]any, []spawnRequest) {
	results := make([]map[string]any, 0, len(toolCalls))
	var spawns []spawnRequest
	consumedTokens := 0

	for _, tc := range toolCalls {
		name := tc.Function.Name
		var args map[string]any
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil || args == nil {
			args = map[string]any{}
		}
		if name == "search_chunks" && forceExhaustive {
			if _, ok := args["retrieval_mode"]; !ok {
				args["retrieval_mode"] = "exhaustive"
			}
		}

		a.notifyStatus(agent.ExecutingTool(name, args, a.Ctx.AgentID, a.Ctx.CurrentDepth))
		a.Ctx.Messages = a.Messages
		result, err := a.Tools.Execute(name, args, a.Ctx)
		if err != nil {
			result = fmt.Sprintf("Error: %v", err)
		}
		if a.Metrics != nil {
			a.Metrics.ToolCalls.WithLabelValues(name).Inc()
			if isErrorResult(result) {
				a.Metrics.ToolErrors.WithLabelValues(name).Inc()
			}
		}

		switch {
		case name == "spawn_agent" && strings.HasPrefix(result, tools.SpawnAgentSentinel+":"):
			req := parseSpawnAgentResult(result, args)
			req.ToolCallID = tc.ID
			spawns = append(spawns, req)
			result = "[Spawning sub-agent...]"

		case name == "spawn_predefined_agent" && strings.HasPrefix(result, tools.SpawnPredefinedSentinel+":"):
			req := parseSpawnPredefinedResult(result, args)
			req.ToolCallID = tc.ID
			spawns = append(spawns, req)
			result = "[Spawning predefined agent...]"

		case name == "compact_context" && strings.HasPrefix(result, tools.CompactSentinel):
			instructions := ""
			if idx := strings.Index(result, ":"); idx >= 0 {
				var payload tools.CompactContextPayload
				if json.Unmarshal([]byte(result[idx+1:]), &payload) == nil {
					instructions = payload.Instructions
				}
			}
			summary, err := a.compactConversation(instructions)
			switch {
			case err != nil:
				slog.Warn("agent: compaction failed", "agent_id", a.Ctx.AgentID, "error", err)
				result = fmt.Sprintf("Compaction failed: %v", err)
			case summary == "":
				result = "Nothing to compact (conversation is empty)."
			default:
				result = fmt.Sprintf("Conversation compacted successfully. Summary:\n%s", summary)
			}

		default:
			result = a.guardToolResult(result, consumedTokens)
		}

		consumedTokens += estimateTokens(result)

		results = append(results, map[string]any{
			"role":         "tool",
			"tool_call_id": tc.ID,
			"content":      result,
		})
	}

	return results, spawns
}

func parseSpawnAgentResult(result string, args map[string]any) spawnRequest {
	req := spawnRequest{Kind: spawnKindDynamic}
	req.Task, _ = args["task"].(string)
	req.Context, _ = args["context"].(string)

	_, data, found := strings.Cut(result, ":")
	if !found {
		return req
	}
	var payload tools.SpawnAgentPayload
	if json.Unmarshal([]byte(data), &payload) != nil {
		return req
	}
	if payload.Task != "" {
		req.Task = payload.Task
	}
	if payload.Context != "" {
		req.Context = payload.Context
	}
	req.Model = payload.Model
	req.Tools = payload.Tools
	return req
}

func parseSpawnPredefinedResult(result string, args map[string]any) spawnRequest {
	req := spawnRequest{Kind: spawnKindPredefined}
	req.AgentName, _ = args["agent_name"].(string)
	req.Task, _ = args["task"].(string)

	_, data, found := strings.Cut(result, ":")
	if !found {
		return req
	}
	var payload tools.SpawnPredefinedPayload
	if json.Unmarshal([]byte(data), &payload) != nil {
		return req
	}
	if payload.AgentName != "" {
		req.AgentName = payload.AgentName
	}
	if payload.Task != "" {
		req.Task = payload.Task
	}
	return req
}

// estimateTokens is a char/4 heuristic, chosen to keep guardToolResult in
// the right order of magnitude without depending on a specific model's
// tokenizer.
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// guardToolResult caps how much of one iteration's token budget a single
// non-spawn tool result may consume, truncating oversized results instead of
// letting one runaway read_file/search_chunks call blow the context window.
// The quarter-of-context budget and truncation notice are recorded as a
// design decision in DESIGN.md.
func (a *Agent) guardToolResult(result string, consumedTokens int) string {
	budget := a.maxContextTokens / 4
	if budget <= 0 {
		return result
	}
	remaining := budget - consumedTokens
	if remaining <= 0 {
		return "[Tool result omitted: per-iteration tool output budget exhausted]"
	}
	resultTokens := estimateTokens(result)
	if resultTokens <= remaining {
		return result
	}
	maxChars := remaining * 4
	if maxChars >= len(result) {
		return result
	}
	return result[:maxChars] + fmt.Sprintf("\n[... truncated, showing ~%d of ~%d estimated tokens]", remaining, resultTokens)
}

// compactConversation summarizes the conversation so far via an LLM call,
// replacing everything after the system prompt with the summary. Like
// guardToolResult, the original only exposes this behind the compact_context
// tool sentinel; the summarization strategy itself is this port's own
// design (see DESIGN.md).
func (a *Agent) compactConversation(instructions string) (string, error) {
	if len(a.Messages) <= 1 {
		return "", nil
	}

	var transcript strings.Builder
	for _, msg := range a.Messages[1:] {
		role, _ := msg["role"].(string)
		content, _ := msg["content"].(string)
		if content == "" {
			continue
		}
		fmt.Fprintf(&transcript, "%s: %s\n", role, content)
	}
	if strings.TrimSpace(transcript.String()) == "" {
		return "", nil
	}

	prompt := "Summarize the conversation below into a concise brief that preserves the user's " +
		"goals, key facts discovered, and any open threads, so the assistant can resume the task " +
		"from the summary alone."
	if instructions != "" {
		prompt += " Pay particular attention to: " + instructions
	}

	resp, err := a.Provider.Chat(context.Background(), llm.ChatRequest{
		Model: a.Ctx.ModelID,
		Messages: []llm.Message{
			{Role: "system", Content: prompt},
			{Role: "user", Content: transcript.String()},
		},
	})
	if err != nil {
		return "", err
	}
	a.updateTokenUsage(resp)

	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return "", nil
	}

	systemMsg := a.Messages[0]
	a.Messages = []map[string]any{
		systemMsg,
		{"role": "user", "content": "[Previous conversation summary]\n" + summary},
	}
	return summary, nil
}
