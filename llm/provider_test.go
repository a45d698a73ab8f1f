package llm

import (
	"fmt"
	"reflect"
	"testing"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		provider string
		wantType string
	}{
		{"openai", "*llm.openAIProvider"},
		{"custom", "*llm.openAICompatProvider"},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg := Config{
				Provider: tt.provider,
				Model:    "test-model",
			}
			p, err := NewProvider(cfg)
			if err != nil {
				t.Fatalf("NewProvider(%q) returned error: %v", tt.provider, err)
			}
			gotType := fmt.Sprintf("%T", p)
			if gotType != tt.wantType {
				t.Errorf("NewProvider(%q) type = %s, want %s", tt.provider, gotType, tt.wantType)
			}
		})
	}
}

func TestNewProviderUnknown(t *testing.T) {
	cfg := Config{
		Provider: "doesnotexist",
		Model:    "test-model",
	}
	_, err := NewProvider(cfg)
	if err == nil {
		t.Fatal("expected error for unknown provider, got nil")
	}
	want := "unknown llm provider: doesnotexist"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

func TestNewProviderEmpty(t *testing.T) {
	cfg := Config{
		Provider: "",
		Model:    "test-model",
	}
	_, err := NewProvider(cfg)
	if err == nil {
		t.Fatal("expected error for empty provider, got nil")
	}
	want := "llm provider not specified"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

// TestDefaultBaseURLs verifies that when BaseURL is empty in the config,
// the OpenAI provider constructor sets the correct default. The custom
// provider's empty BaseURL is checked by TestCustomProviderNoDefaultURL.
func TestDefaultBaseURLs(t *testing.T) {
	p, err := NewProvider(Config{Provider: "openai", Model: "test-model"})
	if err != nil {
		t.Fatalf("NewProvider(openai): %v", err)
	}
	gotURL := fieldBaseURL(t, p)
	wantURL := "https://api.openai.com"
	if gotURL != wantURL {
		t.Errorf("default BaseURL for openai = %q, want %q", gotURL, wantURL)
	}
}

// TestCustomProviderNoDefaultURL confirms the custom provider does not
// override an empty BaseURL with a default.
func TestCustomProviderNoDefaultURL(t *testing.T) {
	p, err := NewProvider(Config{Provider: "custom", Model: "test-model", BaseURL: ""})
	if err != nil {
		t.Fatalf("NewProvider(custom): %v", err)
	}
	if got := fieldBaseURL(t, p); got != "" {
		t.Errorf("custom provider BaseURL = %q, want empty", got)
	}
}

// TestExplicitBaseURLPreserved verifies that a user-supplied BaseURL
// is not overwritten by the default.
func TestExplicitBaseURLPreserved(t *testing.T) {
	customURL := "http://my-server:9999"

	for _, provider := range []string{"openai", "custom"} {
		t.Run(provider, func(t *testing.T) {
			p, err := NewProvider(Config{Provider: provider, Model: "test-model", BaseURL: customURL})
			if err != nil {
				t.Fatalf("NewProvider(%q): %v", provider, err)
			}
			if got := fieldBaseURL(t, p); got != customURL {
				t.Errorf("provider %q BaseURL = %q, want %q", provider, got, customURL)
			}
		})
	}
}

// TestProviderImplementsInterface confirms that every provider
// returned by NewProvider satisfies the Provider interface.
func TestProviderImplementsInterface(t *testing.T) {
	for _, name := range []string{"openai", "custom"} {
		t.Run(name, func(t *testing.T) {
			p, err := NewProvider(Config{Provider: name, Model: "m"})
			if err != nil {
				t.Fatalf("NewProvider(%q): %v", name, err)
			}
			var _ Provider = p
			if p == nil {
				t.Fatal("provider is nil")
			}
		})
	}
}

// TestModelPassedThrough verifies the model from Config is stored
// inside the provider.
func TestModelPassedThrough(t *testing.T) {
	p, err := NewProvider(Config{Provider: "custom", Model: "llama3:latest"})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if got := fieldString(t, p, "Model"); got != "llama3:latest" {
		t.Errorf("model = %q, want %q", got, "llama3:latest")
	}
}

// TestAPIKeyPassedThrough verifies the API key from Config is stored
// inside the provider.
func TestAPIKeyPassedThrough(t *testing.T) {
	p, err := NewProvider(Config{Provider: "custom", Model: "test", APIKey: "sk-test-key-123"})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if got := fieldString(t, p, "APIKey"); got != "sk-test-key-123" {
		t.Errorf("api key = %q, want %q", got, "sk-test-key-123")
	}
}

func fieldBaseURL(t *testing.T, p Provider) string {
	t.Helper()
	return fieldString(t, p, "BaseURL")
}

func fieldString(t *testing.T, p Provider, name string) string {
	t.Helper()
	v := reflect.ValueOf(p).Elem()
	base := v.FieldByName("base")
	cfgField := base.FieldByName("cfg")
	return cfgField.FieldByName(name).String()
}
