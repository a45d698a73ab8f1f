// Package chunker splits converted markdown documents into retrievable
// fragments for the index store. Three source kinds are recognized: plain
// text/markdown, video transcripts (grouped into ~60-second windows), and
// video frame descriptions (one chunk per timestamped frame).
package chunker

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/flavioluiz/flavia-go/catalog"
	"github.com/flavioluiz/flavia-go/store"
)

const (
	minChunkChars      = 1200 // ~300 tokens at 4 chars/token
	maxChunkChars      = 3200 // ~800 tokens at 4 chars/token
	videoWindowSeconds = 60.0
)

// modalityForFileType maps a catalog file_type to the chunk modality used
// for plain text-stream chunking.
var modalityForFileType = map[string]string{
	"audio": "audio_transcript",
	"video": "video_transcript",
	"image": "image_caption",
}

// Chunk is one chunked fragment, ready to be embedded and upserted into the
// index store.
type Chunk struct {
	ChunkID       string
	DocID         string
	Modality      string
	ConvertedPath string
	DocName       string
	FileType      string
	HeadingPath   []string
	Locator       store.Locator
	Text          string
}

// ToIndexRecord converts a Chunk into the store's IndexRecord shape, leaving
// Embedding/IndexedAt for the caller to fill in.
func (c Chunk) ToIndexRecord() store.IndexRecord {
	return store.IndexRecord{
		ChunkID:       c.ChunkID,
		DocID:         c.DocID,
		Modality:      c.Modality,
		ConvertedPath: c.ConvertedPath,
		Locator:       c.Locator,
		HeadingPath:   c.HeadingPath,
		DocName:       c.DocName,
		FileType:      c.FileType,
	}
}

// ChunkEntry dispatches to the right chunker based on a catalog FileEntry.
// Entries with no converted output, or whose converted file is missing,
// yield no chunks.
func ChunkEntry(entry catalog.FileEntry, baseDir string) ([]Chunk, error) {
	if entry.ConvertedTo == "" {
		return nil, nil
	}
	convertedPath, ok := safeResolve(baseDir, entry.ConvertedTo)
	if !ok {
		return nil, nil
	}
	if _, err := os.Stat(convertedPath); err != nil {
		return nil, nil
	}

	if entry.FileType == "video" {
		return chunkVideoDocument(convertedPath, entry.Name, baseDir, entry.Path, entry.FrameDescriptions)
	}
	return chunkTextDocument(convertedPath, entry.Name, entry.FileType, baseDir, entry.Path)
}

// chunkTextDocument chunks a plain text/markdown converted document into
// heading-scoped, size-bounded fragments.
func chunkTextDocument(convertedPath, sourceName, fileType, baseDir, originalPath string) ([]Chunk, error) {
	text, err := os.ReadFile(convertedPath)
	if err != nil {
		return nil, fmt.Errorf("reading converted file %s: %w", convertedPath, err)
	}

	checksum, err := checksumFile(convertedPath)
	if err != nil {
		return nil, err
	}
	docID := computeDocID(baseDir, originalPath, checksum)

	modality := "text"
	if m, ok := modalityForFileType[fileType]; ok {
		modality = m
	}

	paragraphs := splitIntoParagraphs(string(text))
	sections := groupByHeadingRun(paragraphs)

	var chunks []Chunk
	offset := 0
	convertedRel := pathForOutput(baseDir, convertedPath)

	for _, sec := range sections {
		merged := mergeParagraphs(sec.paragraphs, minChunkChars, maxChunkChars)
		for _, m := range merged {
			if strings.TrimSpace(m.text) == "" {
				continue
			}
			lineStart, lineEnd := m.lineStart, m.lineEnd
			chunks = append(chunks, Chunk{
				ChunkID:       computeChunkID(docID, modality, offset),
				DocID:         docID,
				Modality:      modality,
				ConvertedPath: convertedRel,
				DocName:       sourceName,
				FileType:      fileType,
				HeadingPath:   sec.headings,
				Locator:       store.Locator{LineStart: &lineStart, LineEnd: &lineEnd},
				Text:          m.text,
			})
			offset += strings.Count(m.text, "\n") + 2
		}
	}
	return chunks, nil
}

// chunkVideoDocument chunks a video document into a transcript stream
// (grouped into ~60-second windows) plus a frame-description stream (one
// chunk per timestamped frame).
func chunkVideoDocument(convertedPath, sourceName, baseDir, originalPath string, frameDescPaths []string) ([]Chunk, error) {
	checksum, err := checksumFile(convertedPath)
	if err != nil {
		return nil, err
	}
	docID := computeDocID(baseDir, originalPath, checksum)

	var chunks []Chunk

	transcriptText, err := os.ReadFile(convertedPath)
	if err == nil && strings.TrimSpace(string(transcriptText)) != "" {
		transcriptChunks, err := chunkVideoTranscript(string(transcriptText), docID, sourceName, baseDir, convertedPath, originalPath)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, transcriptChunks...)
	}

	for _, framePathStr := range frameDescPaths {
		framePath, ok := safeResolve(baseDir, framePathStr)
		if !ok {
			continue
		}
		frameText, err := os.ReadFile(framePath)
		if err != nil {
			continue
		}
		chunks = append(chunks, chunkFrameDescriptions(string(frameText), docID, sourceName, baseDir, framePath)...)
	}

	return chunks, nil
}

var transcriptionHeadingRe = regexp.MustCompile(`(?im)^##\s+Transcription\s*$`)

func extractTranscriptionBody(text string) string {
	loc := transcriptionHeadingRe.FindStringIndex(text)
	if loc == nil {
		return text
	}
	return text[loc[1]:]
}

var timecodeLineRe = regexp.MustCompile(`^\[?\s*(\d{1,2}:\d{2}(?::\d{2})?)\s*(?:-\s*(\d{1,2}:\d{2}(?::\d{2})?))?\s*\]?\s*(.*)$`)

type transcriptSegment struct {
	start, end float64
	text       string
}

func chunkVideoTranscript(text string, docID, sourceName, baseDir string, convertedPath string, originalPath string) ([]Chunk, error) {
	body := extractTranscriptionBody(text)

	var segments []transcriptSegment
	for _, rawLine := range strings.Split(body, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}
		m := timecodeLineRe.FindStringSubmatch(line)
		if m != nil {
			start, ok1 := parseTimecode(m[1])
			end := start
			if m[2] != "" {
				if e, ok2 := parseTimecode(m[2]); ok2 {
					end = e
				}
			}
			content := strings.TrimSpace(m[3])
			if ok1 && content != "" {
				segments = append(segments, transcriptSegment{start: start, end: end, text: content})
				continue
			}
		}
		if len(segments) > 0 {
			segments[len(segments)-1].text = segments[len(segments)-1].text + " " + line
		}
	}

	if len(segments) == 0 {
		// No timecodes found: fall back to plain text chunking.
		return chunkTextDocument(convertedPath, sourceName, "video", baseDir, originalPath)
	}

	var chunks []Chunk
	convertedRel := pathForOutput(baseDir, convertedPath)

	windowStart := segments[0].start
	var windowParts []transcriptSegment

	flush := func() {
		if len(windowParts) == 0 {
			return
		}
		tStart := windowParts[0].start
		tEnd := windowParts[len(windowParts)-1].end
		var parts []string
		for _, p := range windowParts {
			parts = append(parts, p.text)
		}
		combined := strings.Join(parts, " ")
		chunks = append(chunks, Chunk{
			ChunkID:       computeChunkID(docID, "video_transcript", int(tStart)),
			DocID:         docID,
			Modality:      "video_transcript",
			ConvertedPath: convertedRel,
			DocName:       sourceName,
			FileType:      "video",
			HeadingPath:   []string{},
			Locator:       store.Locator{TimeStart: &tStart, TimeEnd: &tEnd},
			Text:          combined,
		})
		windowParts = nil
		windowStart = tEnd
	}

	for _, seg := range segments {
		if len(windowParts) > 0 && (seg.start-windowStart) >= videoWindowSeconds {
			flush()
			windowStart = seg.start
		}
		windowParts = append(windowParts, seg)
	}
	flush()

	return chunks, nil
}

var frameHeadingRe = regexp.MustCompile(`(?i)^#{1,2}\s+(?:Visual\s+)?Frame\s+at\s+(\d{1,2}:\d{2}(?::\d{2})?)\s*$`)
var descriptionHeadingRe = regexp.MustCompile(`(?im)^##\s+Description\s*$`)

func extractFrameDescription(lines []string) string {
	text := strings.TrimSpace(strings.Join(lines, "\n"))
	if text == "" {
		return ""
	}
	if loc := descriptionHeadingRe.FindStringIndex(text); loc != nil {
		return strings.TrimSpace(text[loc[1]:])
	}
	if strings.HasPrefix(text, "---") {
		if end := strings.Index(text[3:], "\n---"); end != -1 {
			text = strings.TrimSpace(text[3+end+4:])
		}
	}
	return text
}

func chunkFrameDescriptions(text, docID, sourceName, baseDir string, framePath string) []Chunk {
	var chunks []Chunk
	frameRel := pathForOutput(baseDir, framePath)

	var currentTC string
	var currentLines []string
	haveFrame := false

	flush := func() {
		if !haveFrame || len(currentLines) == 0 {
			return
		}
		description := extractFrameDescription(currentLines)
		if description == "" {
			currentLines = nil
			haveFrame = false
			return
		}
		t, ok := parseTimecode(currentTC)
		if !ok {
			t = 0
		}
		chunks = append(chunks, Chunk{
			ChunkID:       computeChunkID(docID, "video_frame", int(t)),
			DocID:         docID,
			Modality:      "video_frame",
			ConvertedPath: frameRel,
			DocName:       sourceName,
			FileType:      "video",
			HeadingPath:   []string{fmt.Sprintf("Frame at %s", currentTC)},
			Locator:       store.Locator{TimeStart: &t, TimeEnd: &t},
			Text:          description,
		})
		currentLines = nil
		haveFrame = false
	}

	for _, line := range strings.Split(text, "\n") {
		stripped := strings.TrimSpace(line)
		if m := frameHeadingRe.FindStringSubmatch(stripped); m != nil {
			flush()
			currentTC = m[1]
			haveFrame = true
			continue
		}
		if haveFrame {
			currentLines = append(currentLines, line)
		}
	}
	flush()
	return chunks
}

// ---------------------------------------------------------------------------
// text/paragraph helpers
// ---------------------------------------------------------------------------

type paragraph struct {
	startLine, endLine int
	text               string
}

func splitIntoParagraphs(text string) []paragraph {
	var out []paragraph
	var current []string
	startLine := -1

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lineNo := i + 1
		if strings.TrimSpace(line) == "" {
			if len(current) > 0 && startLine != -1 {
				out = append(out, paragraph{startLine: startLine, endLine: lineNo - 1, text: strings.Join(current, "\n")})
				current = nil
				startLine = -1
			}
			continue
		}
		if startLine == -1 {
			startLine = lineNo
		}
		current = append(current, line)
	}
	if len(current) > 0 && startLine != -1 {
		out = append(out, paragraph{startLine: startLine, endLine: len(lines), text: strings.Join(current, "\n")})
	}
	return out
}

var headingRe = regexp.MustCompile(`^(#{1,6})\s+(.+)`)

func headingPathFromLine(line string, current []string) []string {
	m := headingRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return current
	}
	level := len(m[1])
	title := strings.TrimSpace(m[2])
	newPath := append([]string{}, current[:min(level-1, len(current))]...)
	return append(newPath, title)
}

type paraWithHeadings struct {
	headings   []string
	startLine  int
	endLine    int
	text       string
}

type sectionRun struct {
	headings   []string
	paragraphs []paraWithHeadings
}

// groupByHeadingRun tracks a running heading path over the paragraph stream
// (stripping the heading line itself from the following paragraph's body)
// and groups contiguous paragraphs that share the same heading path.
func groupByHeadingRun(paragraphs []paragraph) []sectionRun {
	var withHeadings []paraWithHeadings
	var currentHeadings []string

	for _, p := range paragraphs {
		lines := strings.Split(p.text, "\n")
		firstLine := ""
		if len(lines) > 0 {
			firstLine = lines[0]
		}
		updated := headingPathFromLine(firstLine, currentHeadings)
		if !equalStrings(updated, currentHeadings) {
			currentHeadings = updated
			rest := strings.TrimSpace(strings.Join(lines[1:], "\n"))
			if rest != "" {
				withHeadings = append(withHeadings, paraWithHeadings{
					headings: append([]string{}, currentHeadings...), startLine: p.startLine + 1, endLine: p.endLine, text: rest,
				})
			}
		} else {
			withHeadings = append(withHeadings, paraWithHeadings{
				headings: append([]string{}, currentHeadings...), startLine: p.startLine, endLine: p.endLine, text: p.text,
			})
		}
	}

	var runs []sectionRun
	var run []paraWithHeadings
	var runHeadings []string
	haveRun := false

	flush := func() {
		if haveRun && len(run) > 0 {
			runs = append(runs, sectionRun{headings: runHeadings, paragraphs: run})
		}
		run = nil
	}

	for _, pw := range withHeadings {
		if !haveRun || !equalStrings(pw.headings, runHeadings) {
			flush()
			runHeadings = pw.headings
			haveRun = true
		}
		run = append(run, pw)
	}
	flush()

	return runs
}

type mergedChunk struct {
	text               string
	lineStart, lineEnd int
}

var sentenceBoundaryRe = regexp.MustCompile(`(?:[.!?])\s+`)

// mergeParagraphs merges short paragraphs together and splits oversized
// ones at sentence boundaries so every resulting chunk falls in
// [minChars, maxChars] wherever the source material allows it.
func mergeParagraphs(paragraphs []paraWithHeadings, minChars, maxChars int) []mergedChunk {
	var chunks []mergedChunk
	var buffer strings.Builder
	bufferStart, bufferEnd := -1, -1

	flush := func() {
		if strings.TrimSpace(buffer.String()) != "" && bufferStart != -1 {
			chunks = append(chunks, mergedChunk{text: strings.TrimSpace(buffer.String()), lineStart: bufferStart, lineEnd: bufferEnd})
		}
		buffer.Reset()
		bufferStart, bufferEnd = -1, -1
	}

	for _, p := range paragraphs {
		if len(p.text) > maxChars {
			flush()
			sentences := splitSentences(p.text)
			var sentBuf strings.Builder
			for _, sent := range sentences {
				if sentBuf.Len()+len(sent)+1 > maxChars && sentBuf.Len() > 0 {
					chunks = append(chunks, mergedChunk{text: strings.TrimSpace(sentBuf.String()), lineStart: p.startLine, lineEnd: p.endLine})
					sentBuf.Reset()
				}
				if sentBuf.Len() > 0 {
					sentBuf.WriteString(" ")
				}
				sentBuf.WriteString(sent)
				if sentBuf.Len() >= minChars {
					chunks = append(chunks, mergedChunk{text: strings.TrimSpace(sentBuf.String()), lineStart: p.startLine, lineEnd: p.endLine})
					sentBuf.Reset()
				}
			}
			if strings.TrimSpace(sentBuf.String()) != "" {
				chunks = append(chunks, mergedChunk{text: strings.TrimSpace(sentBuf.String()), lineStart: p.startLine, lineEnd: p.endLine})
			}
			continue
		}

		if buffer.Len()+len(p.text)+2 > maxChars && buffer.Len() > 0 {
			flush()
		}
		if bufferStart == -1 {
			bufferStart = p.startLine
		}
		if buffer.Len() > 0 {
			buffer.WriteString("\n\n")
		}
		buffer.WriteString(p.text)
		bufferEnd = p.endLine
		if buffer.Len() >= minChars {
			flush()
		}
	}
	flush()
	return chunks
}

// splitSentences is a simple sentence tokenizer splitting on
// ./!/? followed by whitespace.
func splitSentences(text string) []string {
	locs := sentenceBoundaryRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		return []string{trimmed}
	}
	var out []string
	prev := 0
	for _, loc := range locs {
		out = append(out, strings.TrimSpace(text[prev:loc[1]]))
		prev = loc[1]
	}
	if rest := strings.TrimSpace(text[prev:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// timecode helpers
// ---------------------------------------------------------------------------

func parseTimecode(tc string) (float64, bool) {
	parts := strings.Split(strings.TrimSpace(tc), ":")
	vals := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return 0, false
		}
		vals = append(vals, v)
	}
	switch len(vals) {
	case 3:
		return vals[0]*3600 + vals[1]*60 + vals[2], true
	case 2:
		return vals[0]*60 + vals[1], true
	case 1:
		return vals[0], true
	default:
		return 0, false
	}
}

// ---------------------------------------------------------------------------
// id/path helpers
// ---------------------------------------------------------------------------

func computeChunkID(docID, modality string, offset int) string {
	raw := fmt.Sprintf("%s:%s:%d", docID, modality, offset)
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func computeDocID(baseDir, path, checksum string) string {
	return ComputeDocID(baseDir, path, checksum)
}

// ComputeDocID derives a document's stable id from its base_dir, relative
// path, and content checksum. Callers outside this package (the search_chunks
// tool's @mention resolution) need the identical formula to map a catalog
// entry back to the doc_id its chunks were indexed under.
func ComputeDocID(baseDir, path, checksum string) string {
	raw := fmt.Sprintf("%s:%s:%s", baseDir, path, checksum)
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func safeResolve(baseDir, pathValue string) (string, bool) {
	candidate := pathValue
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(baseDir, candidate)
	}
	resolved, err := filepath.Abs(candidate)
	if err != nil {
		return "", false
	}
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(absBase, resolved)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return resolved, true
}

func pathForOutput(baseDir, path string) string {
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return path
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	rel, err := filepath.Rel(absBase, absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

func checksumFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
