package parser

import "fmt"

// Registry resolves the reference converter for a file format. Per the
// expanded spec's DOMAIN STACK, the core only needs thin external-collaborator
// stubs for PDF and Office (.xlsx) — the full converter matrix (DOCX, PPTX,
// legacy binary formats, LlamaParse) lives outside this module's scope.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry builds a registry pre-populated with the PDF and XLSX
// reference converters.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}
	for _, p := range []Parser{&PDFParser{}, &XLSXParser{}} {
		for _, f := range p.SupportedFormats() {
			r.parsers[f] = p
		}
	}
	return r
}

// Get returns the parser registered for format, or an error if none is.
func (r *Registry) Get(format string) (Parser, error) {
	p, ok := r.parsers[format]
	if !ok {
		return nil, fmt.Errorf("no parser for format: %s", format)
	}
	return p, nil
}

// Register adds or overrides the parser used for a format.
func (r *Registry) Register(format string, p Parser) {
	r.parsers[format] = p
}
