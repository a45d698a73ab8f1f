package retrieval

import (
	"context"
	"testing"

	"github.com/flavioluiz/flavia-go/store"
)

func timeRow(docID, modality string, t float64, text string) store.ResultRow {
	tt := t
	return store.ResultRow{
		IndexRecord: store.IndexRecord{DocID: docID, Modality: modality, Locator: store.Locator{TimeStart: &tt}},
		Text:        text,
	}
}

func TestTemporalBundleForWindowsTranscriptAndFrame(t *testing.T) {
	docChunks := []store.ResultRow{
		timeRow("d1", "video_transcript", 100, "t-100"),
		timeRow("d1", "video_transcript", 108, "t-108"),
		timeRow("d1", "video_transcript", 200, "t-200"), // outside the 15s window
		timeRow("d1", "video_frame", 105, "f-105"),
	}

	bundle := temporalBundleFor(docChunks, 100, transcriptWindowSeconds)
	if len(bundle) != 3 {
		t.Fatalf("expected 2 transcripts + 1 frame within window, got %d: %+v", len(bundle), bundle)
	}
	if bundle[0].Text != "t-100" || bundle[1].Text != "t-108" {
		t.Fatalf("expected transcripts sorted by time first, got %+v", bundle)
	}
	if bundle[2].ModalityLabel != "(Screen)" {
		t.Fatalf("expected frame labeled (Screen), got %s", bundle[2].ModalityLabel)
	}
}

func TestTemporalBundleForFallsBackToNearestFrame(t *testing.T) {
	docChunks := []store.ResultRow{
		timeRow("d1", "video_transcript", 100, "t-100"),
		timeRow("d1", "video_frame", 125, "f-125"), // outside the 10s frame window, within 30s fallback
	}

	bundle := temporalBundleFor(docChunks, 100, frameWindowSeconds)
	var frames int
	for _, b := range bundle {
		if b.Modality == "video_frame" {
			frames++
		}
	}
	if frames != 1 {
		t.Fatalf("expected the ±30s fallback to pick up one frame, got %d", frames)
	}
}

func TestTemporalBundleForNoFrameBeyondFallbackWindow(t *testing.T) {
	docChunks := []store.ResultRow{
		timeRow("d1", "video_frame", 200, "f-200"), // 100s away, beyond ±30s fallback
	}
	bundle := temporalBundleFor(docChunks, 100, frameWindowSeconds)
	if len(bundle) != 0 {
		t.Fatalf("expected no frame attached beyond the fallback window, got %+v", bundle)
	}
}

func TestModalityDistributionCountsByModality(t *testing.T) {
	results := []store.ResultRow{
		{IndexRecord: store.IndexRecord{Modality: "text"}},
		{IndexRecord: store.IndexRecord{Modality: "text"}},
		{IndexRecord: store.IndexRecord{Modality: "video_transcript"}},
	}
	dist := modalityDistribution(results)
	if dist["text"] != 2 || dist["video_transcript"] != 1 {
		t.Fatalf("unexpected distribution: %+v", dist)
	}
}

func TestRetrieveShortCircuitsOnInvalidOptions(t *testing.T) {
	ctx := context.Background()
	out, err := Retrieve(ctx, nil, nil, "", "", Options{TopK: 0})
	if err != nil || out != nil {
		t.Fatalf("expected (nil, nil) for top_k<=0, got (%v, %v)", out, err)
	}
	out, err = Retrieve(ctx, nil, nil, "", "a question", Options{TopK: 5, DocIDsFilter: []string{}})
	if err != nil || out != nil {
		t.Fatalf("expected (nil, nil) for an empty non-nil doc filter, got (%v, %v)", out, err)
	}
}
