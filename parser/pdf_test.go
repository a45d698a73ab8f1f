package parser

import "testing"

func TestIsLikelyHeadingDetectsNumberedAndAllCapsLines(t *testing.T) {
	cases := map[string]bool{
		"SCOPE":                    true,
		"3.9.1 Modelo A":           true,
		"Section 4 Definitions":    true,
		"Anexo A":                  true,
		"Tabla 1. Resumen":         true,
		"this is plain body text":  false,
		"A normal sentence about.": false,
	}
	for line, want := range cases {
		if got := isLikelyHeading(line); got != want {
			t.Errorf("isLikelyHeading(%q) = %v, want %v", line, got, want)
		}
	}
}

func TestDetectHeadingLevelCountsDotsInNumbering(t *testing.T) {
	cases := map[string]int{
		"3.9.1 Modelo A": 2,
		"3.1 Scope":      1,
		"SCOPE":          1,
		"Definitions":    2,
	}
	for h, want := range cases {
		if got := detectHeadingLevel(h); got != want {
			t.Errorf("detectHeadingLevel(%q) = %d, want %d", h, got, want)
		}
	}
}

func TestClassifySectionType(t *testing.T) {
	cases := []struct {
		heading, content, want string
	}{
		{"Definitions", "", "definition"},
		{"", "The system shall support X.", "requirement"},
		{"Table 3", "", "table"},
		{"", "a\tb\tc\td\te", "table"},
		{"Anexo B", "", "annex"},
		{"Scope", "general body text", "section"},
	}
	for _, c := range cases {
		if got := classifySectionType(c.heading, c.content); got != c.want {
			t.Errorf("classifySectionType(%q, %q) = %q, want %q", c.heading, c.content, got, c.want)
		}
	}
}

func TestNormalizeHeadingStripsTrailingArtifacts(t *testing.T) {
	got := normalizeHeading("MANUAL TÉCNICO AV-FM, AV-FF")
	if got != "MANUAL TÉCNICO AV-FM, AV-FF" {
		t.Fatalf("unexpected normalized heading: %q", got)
	}
}

func TestSplitPageIntoSectionsGroupsContentUnderHeading(t *testing.T) {
	text := "SCOPE\nThis document defines requirements.\nIt applies to all models.\n3.1 Definitions\nA term means a thing."
	sections := splitPageIntoSections(text, 1)
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %d: %+v", len(sections), sections)
	}
	if sections[0].Heading != "SCOPE" {
		t.Fatalf("expected first heading SCOPE, got %q", sections[0].Heading)
	}
	if sections[1].Heading != "3.1 Definitions" || sections[1].Type != "definition" {
		t.Fatalf("unexpected second section: %+v", sections[1])
	}
}

func TestSplitPageIntoSectionsFallsBackToWholePageWhenNoHeadings(t *testing.T) {
	sections := splitPageIntoSections("just a plain paragraph with no headings at all here", 2)
	if len(sections) != 1 || sections[0].Type != "paragraph" {
		t.Fatalf("expected a single paragraph fallback section, got %+v", sections)
	}
}

func TestFixRunningHeadersReplacesRepeatedHeaderAcrossPages(t *testing.T) {
	sections := []Section{
		{Heading: "MANUAL TÉCNICO", Level: 1, PageNumber: 1, Content: ""},
		{Heading: "3.1 Scope", Level: 2, PageNumber: 1, Content: "body"},
		{Heading: "MANUAL TÉCNICO", Level: 1, PageNumber: 2, Content: "continued body"},
		{Heading: "MANUAL TÉCNICO", Level: 1, PageNumber: 3, Content: "more body"},
		{Heading: "MANUAL TÉCNICO", Level: 1, PageNumber: 4, Content: "even more"},
	}
	got := fixRunningHeaders(sections, 4)
	if got[2].Heading != "3.1 Scope" || got[3].Heading != "3.1 Scope" {
		t.Fatalf("expected running header pages to carry over the last real heading, got %+v", got)
	}
}

func TestFixRunningHeadersNoopBelowThreshold(t *testing.T) {
	sections := []Section{
		{Heading: "Intro", PageNumber: 1, Content: "a"},
		{Heading: "Body", PageNumber: 2, Content: "b"},
	}
	got := fixRunningHeaders(sections, 2)
	if got[0].Heading != "Intro" || got[1].Heading != "Body" {
		t.Fatalf("expected no changes below the running-header threshold, got %+v", got)
	}
}
