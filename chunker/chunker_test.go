package chunker

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/flavioluiz/flavia-go/catalog"
)

func writeConverted(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", p, err)
	}
	return p
}

func TestChunkEntryReturnsNilWithoutConversion(t *testing.T) {
	dir := t.TempDir()
	entry := catalog.FileEntry{Path: "a.pdf", Name: "a.pdf", FileType: "binary_document"}
	chunks, err := ChunkEntry(entry, dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chunks != nil {
		t.Fatalf("expected nil chunks for unconverted entry, got %+v", chunks)
	}
}

func TestChunkTextDocumentSplitsOnHeadings(t *testing.T) {
	dir := t.TempDir()
	content := "# Intro\n\nFirst section body text.\n\n# Details\n\nSecond section body text."
	writeConverted(t, dir, "a.md", content)

	entry := catalog.FileEntry{Path: "a.pdf", Name: "a.pdf", FileType: "pdf", ConvertedTo: "a.md"}
	chunks, err := ChunkEntry(entry, dir)
	if err != nil {
		t.Fatalf("chunking: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks (one per heading run), got %d: %+v", len(chunks), chunks)
	}
	if chunks[0].HeadingPath[0] != "Intro" {
		t.Fatalf("expected first chunk under Intro, got %+v", chunks[0].HeadingPath)
	}
	if chunks[1].HeadingPath[0] != "Details" {
		t.Fatalf("expected second chunk under Details, got %+v", chunks[1].HeadingPath)
	}
	if chunks[0].ChunkID == chunks[1].ChunkID {
		t.Fatal("expected distinct chunk ids")
	}
	if chunks[0].DocID != chunks[1].DocID {
		t.Fatal("expected same doc id for chunks from the same document")
	}
}

func TestChunkTextDocumentMergesShortParagraphs(t *testing.T) {
	dir := t.TempDir()
	var paras []string
	for i := 0; i < 5; i++ {
		paras = append(paras, "A short paragraph that repeats some words to pad length out a bit more.")
	}
	content := strings.Join(paras, "\n\n")
	writeConverted(t, dir, "a.md", content)

	entry := catalog.FileEntry{Path: "a.txt", Name: "a.txt", FileType: "text", ConvertedTo: "a.md"}
	chunks, err := ChunkEntry(entry, dir)
	if err != nil {
		t.Fatalf("chunking: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected short paragraphs merged into 1 chunk, got %d", len(chunks))
	}
}

func TestChunkVideoTranscriptGroupsIntoWindows(t *testing.T) {
	dir := t.TempDir()
	content := "## Transcription\n\n" +
		"[00:00:00] hello there\n" +
		"[00:00:30] still talking\n" +
		"[00:01:30] a new topic entirely\n"
	writeConverted(t, dir, "transcript.md", content)

	entry := catalog.FileEntry{Path: "v.mp4", Name: "v.mp4", FileType: "video", ConvertedTo: "transcript.md"}
	chunks, err := ChunkEntry(entry, dir)
	if err != nil {
		t.Fatalf("chunking: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 transcript windows (60s boundary), got %d: %+v", len(chunks), chunks)
	}
	if chunks[0].Modality != "video_transcript" {
		t.Fatalf("expected video_transcript modality, got %s", chunks[0].Modality)
	}
	if chunks[0].Locator.TimeStart == nil || *chunks[0].Locator.TimeStart != 0 {
		t.Fatalf("expected first window to start at t=0, got %+v", chunks[0].Locator.TimeStart)
	}
}

func TestChunkVideoTranscriptFallsBackWithoutTimecodes(t *testing.T) {
	dir := t.TempDir()
	content := "## Transcription\n\nJust plain prose with no timecodes at all in this transcript body."
	writeConverted(t, dir, "transcript.md", content)

	entry := catalog.FileEntry{Path: "v.mp4", Name: "v.mp4", FileType: "video", ConvertedTo: "transcript.md"}
	chunks, err := ChunkEntry(entry, dir)
	if err != nil {
		t.Fatalf("chunking: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Modality != "video_transcript" {
		t.Fatalf("expected fallback to plain text chunking, got %+v", chunks)
	}
}

func TestChunkVideoFramesParsesTimestampedHeadings(t *testing.T) {
	dir := t.TempDir()
	writeConverted(t, dir, "transcript.md", "## Transcription\n\n[00:00:00] intro narration\n")
	frameContent := "## Frame at 00:00:05\n\n## Description\n\nA whiteboard with a diagram.\n\n" +
		"## Frame at 00:00:10\n\n## Description\n\nA speaker at a podium.\n"
	writeConverted(t, dir, "frames.md", frameContent)

	entry := catalog.FileEntry{
		Path: "v.mp4", Name: "v.mp4", FileType: "video", ConvertedTo: "transcript.md",
		FrameDescriptions: []string{"frames.md"},
	}
	chunks, err := ChunkEntry(entry, dir)
	if err != nil {
		t.Fatalf("chunking: %v", err)
	}

	var frameChunks []Chunk
	for _, c := range chunks {
		if c.Modality == "video_frame" {
			frameChunks = append(frameChunks, c)
		}
	}
	if len(frameChunks) != 2 {
		t.Fatalf("expected 2 frame chunks, got %d: %+v", len(frameChunks), chunks)
	}
	if !strings.Contains(frameChunks[0].Text, "whiteboard") {
		t.Fatalf("expected first frame description text, got %q", frameChunks[0].Text)
	}
	if frameChunks[0].HeadingPath[0] != "Frame at 00:00:05" {
		t.Fatalf("expected heading path to record the frame timecode, got %+v", frameChunks[0].HeadingPath)
	}
}

func TestParseTimecodeFormats(t *testing.T) {
	cases := map[string]float64{
		"00:01:05": 65,
		"01:05":    65,
		"5":        5,
	}
	for input, want := range cases {
		got, ok := parseTimecode(input)
		if !ok {
			t.Fatalf("expected %q to parse", input)
		}
		if got != want {
			t.Fatalf("parseTimecode(%q) = %v, want %v", input, got, want)
		}
	}
	if _, ok := parseTimecode("not-a-timecode"); ok {
		t.Fatal("expected invalid timecode to fail parsing")
	}
}
