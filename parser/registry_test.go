package parser

import "testing"

func TestNewRegistryResolvesPDFAndXLSXFormats(t *testing.T) {
	r := NewRegistry()

	for _, format := range []string{"pdf", "xlsx", "xls"} {
		if _, err := r.Get(format); err != nil {
			t.Errorf("expected a registered parser for %q, got error: %v", format, err)
		}
	}
	if _, err := r.Get("docx"); err == nil {
		t.Error("expected an error for an unregistered format")
	}
}

func TestRegistryRegisterOverridesFormat(t *testing.T) {
	r := NewRegistry()
	custom := &PDFParser{}
	r.Register("pdf", custom)

	got, err := r.Get("pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != Parser(custom) {
		t.Fatal("expected Register to override the existing pdf parser")
	}
}
