package serp

import (
	"encoding/json"
	"strings"
	"testing"
)

func payloadFrom(t *testing.T, raw string) *serpPayload {
	t.Helper()
	var p serpPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}
	return &p
}

func TestOverviewFromPayload_AIOverviewFirst(t *testing.T) {
	p := payloadFrom(t, `{
		"ai_overview": {
			"text_blocks": [
				{"snippet": "Example Store sells trail shoes."},
				{"list": [{"snippet": "Known for durability."}, {"snippet": "Free returns."}]}
			],
			"references": [{"link": "https://example.com/about"}]
		},
		"knowledge_graph": {"description": "should not be used"}
	}`)

	o := overviewFromPayload("serpapi", "example store", p)
	if o == nil {
		t.Fatal("expected overview")
	}
	if !strings.Contains(o.Content, "trail shoes") || !strings.Contains(o.Content, "Free returns.") {
		t.Errorf("expected text blocks joined, got %q", o.Content)
	}
	if strings.Contains(o.Content, "should not be used") {
		t.Errorf("knowledge graph must not win over ai_overview")
	}
	if len(o.Links) != 1 || o.Links[0] != "https://example.com/about" {
		t.Errorf("expected reference link, got %v", o.Links)
	}
	if o.Vendor != "serpapi" || o.Query != "example store" {
		t.Errorf("expected vendor/query stamped, got %s/%s", o.Vendor, o.Query)
	}
}

func TestOverviewFromPayload_FallbackChain(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantNil bool
	}{
		{
			name: "knowledge graph when no ai_overview",
			raw:  `{"knowledge_graph": {"description": "A shoe store.", "source": {"link": "https://x"}}}`,
			want: "A shoe store.",
		},
		{
			name: "answer box answer",
			raw:  `{"answer_box": {"answer": "42 stores"}}`,
			want: "42 stores",
		},
		{
			name: "answer box snippet when answer empty",
			raw:  `{"answer_box": {"snippet": "They have 42 stores."}}`,
			want: "They have 42 stores.",
		},
		{
			name: "answer box highlighted words as last resort",
			raw:  `{"answer_box": {"snippet_highlighted_words": ["42", "stores"]}}`,
			want: "42 stores",
		},
		{
			name: "featured snippet",
			raw:  `{"featured_snippet": {"snippet": "Featured text.", "link": "https://y"}}`,
			want: "Featured text.",
		},
		{
			name: "first related question",
			raw:  `{"related_questions": [{"snippet": "First answer."}, {"snippet": "Second."}]}`,
			want: "First answer.",
		},
		{
			name:    "nothing usable",
			raw:     `{"related_questions": [{"snippet": ""}]}`,
			wantNil: true,
		},
		{
			name:    "empty ai_overview falls through to nothing",
			raw:     `{"ai_overview": {"text_blocks": [{"snippet": ""}]}}`,
			wantNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := overviewFromPayload("test", "q", payloadFrom(t, tt.raw))
			if tt.wantNil {
				if o != nil {
					t.Fatalf("expected nil overview, got %q", o.Content)
				}
				return
			}
			if o == nil {
				t.Fatal("expected overview")
			}
			if o.Content != tt.want {
				t.Errorf("expected %q, got %q", tt.want, o.Content)
			}
		})
	}
}

func TestOverviewFromPayload_NilPayload(t *testing.T) {
	if o := overviewFromPayload("test", "q", nil); o != nil {
		t.Errorf("expected nil for nil payload")
	}
}
