package agent

import (
	"strings"
	"testing"
)

func TestFromProfileDefaultsModelAndDepth(t *testing.T) {
	p := Profile{Name: "main", BaseDir: "/vault", Tools: []string{"search_chunks"}, MaxDepth: 2}
	ctx := FromProfile(p, "root")

	if ctx.ModelID != defaultModel {
		t.Fatalf("expected default model, got %q", ctx.ModelID)
	}
	if ctx.CurrentDepth != 0 {
		t.Fatalf("expected root depth 0, got %d", ctx.CurrentDepth)
	}
	if !ctx.CanSpawn() {
		t.Fatal("expected a fresh root context under max depth to be able to spawn")
	}
}

func TestCreateChildContextIncrementsDepthAndCarriesTurnState(t *testing.T) {
	parent := FromProfile(Profile{Name: "main", MaxDepth: 2}, "root")
	parent.RAGTurnID = "turn-123"
	parent.RAGTurnCounter = 3
	parent.RAGDebug = true

	child := parent.CreateChildContext("root.sub.1", Profile{Name: "sub", Model: "gpt-4o"})

	if child.CurrentDepth != 1 {
		t.Fatalf("expected child depth 1, got %d", child.CurrentDepth)
	}
	if child.ParentID != "root" {
		t.Fatalf("expected parent id 'root', got %q", child.ParentID)
	}
	if child.RAGTurnID != "turn-123" || child.RAGTurnCounter != 3 || !child.RAGDebug {
		t.Fatalf("expected child to inherit turn accounting, got %+v", child)
	}
	if child.ModelID != "gpt-4o" {
		t.Fatalf("expected child to use its own profile's model, got %q", child.ModelID)
	}
}

func TestCanSpawnRespectsMaxDepth(t *testing.T) {
	ctx := Context{CurrentDepth: 2, MaxDepth: 2}
	if ctx.CanSpawn() {
		t.Fatal("expected CanSpawn to be false once at max depth")
	}
}

func TestBuildSystemPromptIncludesDepthBannerAndSubagents(t *testing.T) {
	p := Profile{Context: "You operate within {base_dir}.", MaxDepth: 1}
	ctx := Context{
		AgentID:      "root",
		CurrentDepth: 0,
		MaxDepth:     1,
		BaseDir:      "/vault",
		Subagents:    map[string]SubagentConfig{"researcher": {}},
	}

	prompt := BuildSystemPrompt(p, ctx, "- search_chunks: search the vault")
	if !containsAll(prompt, "You operate within /vault.", "[Agent ID: root]", "[Depth: 0/1]",
		"Working directory: /vault", "search_chunks: search the vault", "Available specialist agents: researcher") {
		t.Fatalf("system prompt missing expected sections:\n%s", prompt)
	}
}

func TestBuildSystemPromptNotesMaxDepthReached(t *testing.T) {
	ctx := Context{AgentID: "leaf", CurrentDepth: 2, MaxDepth: 2, BaseDir: "/vault"}
	prompt := BuildSystemPrompt(Profile{}, ctx, "")
	if !containsAll(prompt, "Maximum depth reached") {
		t.Fatalf("expected max-depth notice in prompt:\n%s", prompt)
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
