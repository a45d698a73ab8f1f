package flavia

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/flavioluiz/flavia-go/agent"
)

type spawnKind int

const (
	spawnKindDynamic spawnKind = iota
	spawnKindPredefined
)

// spawnRequest is one parsed spawn_agent/spawn_predefined_agent sentinel,
// ready to hand off to the parallel scheduler.
type spawnRequest struct {
	Kind       spawnKind
	ToolCallID string

	// Dynamic spawn fields.
	Task    string
	Context string
	Model   string
	Tools   []string

	// Predefined spawn fields.
	AgentName string
}

// spawnResult carries a finished child's output back to the tool_call_id it
// answers, so the parent loop can splice it into its message history
// regardless of which child finished first.
type spawnResult struct {
	ToolCallID string
	Content    string
}

// nextChildID mints this agent instance's next child identifier, matching
// the original's per-instance counter/lock pair rather than a tree-wide
// shared counter.
func (a *Agent) nextChildID(suffix string) string {
	a.childMu.Lock()
	defer a.childMu.Unlock()
	a.childCounter++
	return fmt.Sprintf("%s.%s.%d", a.Ctx.AgentID, suffix, a.childCounter)
}

// executeSpawnsParallel runs every pending spawn concurrently, sized to
// min(len(spawns), ParallelWorkers) the way the original bounds its
// ThreadPoolExecutor, and collects results independent of completion order.
func (a *Agent) executeSpawnsParallel(spawns []spawnRequest) []spawnResult {
	if len(spawns) == 0 {
		return nil
	}

	workers := a.Settings.ParallelWorkers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(spawns) {
		workers = len(spawns)
	}

	results := make([]spawnResult, len(spawns))
	var wg sync.WaitGroup

	indexed := make(chan struct {
		idx int
		req spawnRequest
	}, len(spawns))
	for i, req := range spawns {
		indexed <- struct {
			idx int
			req spawnRequest
		}{i, req}
	}
	close(indexed)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range indexed {
				content := a.executeSingleSpawn(item.req)
				results[item.idx] = spawnResult{ToolCallID: item.req.ToolCallID, Content: content}
			}
		}()
	}
	wg.Wait()

	return results
}

// executeSingleSpawn builds the child context/profile, runs the child to
// completion, and renders its status notifications, returning the text that
// becomes the spawning tool call's result.
func (a *Agent) executeSingleSpawn(req spawnRequest) string {
	switch req.Kind {
	case spawnKindPredefined:
		return a.spawnPredefined(req)
	default:
		return a.spawnDynamic(req)
	}
}

func (a *Agent) spawnPredefined(req spawnRequest) string {
	if !a.Ctx.CanSpawn() {
		return "Error: Maximum agent depth reached; cannot spawn sub-agents."
	}
	childProfile, ok := a.Profile.CreateSubagentProfile(req.AgentName)
	if !ok {
		return fmt.Sprintf("Error: Unknown predefined agent '%s'", req.AgentName)
	}

	childID := a.nextChildID(req.AgentName)
	a.notifyStatus(agent.SpawningAgent(req.AgentName, childID, a.Ctx.CurrentDepth+1))
	if a.Metrics != nil {
		a.Metrics.AgentSpawns.WithLabelValues("predefined").Inc()
	}

	child := a.newChild(childID, childProfile)
	result, err := child.Run(req.Task, RunOptions{})
	if err != nil {
		slog.Warn("agent: predefined sub-agent failed", "agent_name", req.AgentName, "child_id", childID, "error", err)
		return fmt.Sprintf("Error in sub-agent: %v", err)
	}

	a.notifyStatus(agent.AgentCompleted(result, childID, a.Ctx.CurrentDepth+1))
	return result
}

func (a *Agent) spawnDynamic(req spawnRequest) string {
	if !a.Ctx.CanSpawn() {
		return "Error: Maximum agent depth reached; cannot spawn sub-agents."
	}

	childProfile := agent.Profile{
		Name:                   "sub",
		Context:                req.Context,
		Model:                  a.Profile.Model,
		BaseDir:                a.Profile.BaseDir,
		Tools:                  a.Profile.Tools,
		MaxDepth:               a.Profile.MaxDepth,
		CompactThreshold:       a.Profile.CompactThreshold,
		CompactThresholdSource: a.Profile.CompactThresholdSource,
		ConvertedAccessMode:    a.Profile.ConvertedAccessMode,
		Permissions:            a.Profile.Permissions,
	}
	if req.Model != "" {
		childProfile.Model = req.Model
	}
	if len(req.Tools) > 0 {
		childProfile.Tools = req.Tools
	}

	childID := a.nextChildID("sub")
	a.notifyStatus(agent.SpawningAgent("sub-agent", childID, a.Ctx.CurrentDepth+1))
	if a.Metrics != nil {
		a.Metrics.AgentSpawns.WithLabelValues("dynamic").Inc()
	}

	child := a.newChild(childID, childProfile)
	result, err := child.Run(req.Task, RunOptions{})
	if err != nil {
		slog.Warn("agent: dynamic sub-agent failed", "child_id", childID, "error", err)
		return fmt.Sprintf("Error in sub-agent: %v", err)
	}

	a.notifyStatus(agent.AgentCompleted(result, childID, a.Ctx.CurrentDepth+1))
	return result
}

// newChild builds a fully initialized child Agent sharing this agent's
// provider, tool registry, and settings, one depth deeper in the spawn tree.
func (a *Agent) newChild(childID string, profile agent.Profile) *Agent {
	child := &Agent{
		Settings:         a.Settings,
		Profile:          profile,
		Provider:         a.Provider,
		Tools:            a.Tools,
		StatusCallback:   a.StatusCallback,
		Metrics:          a.Metrics,
		maxContextTokens: a.maxContextTokens,
	}
	child.Ctx = a.Ctx.CreateChildContext(childID, profile)
	child.initSystemPrompt()
	return child
}
