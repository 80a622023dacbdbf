package serp

import (
	"strings"
	"time"
)

// serpPayload is the subset of a structured Google SERP response that can
// contain AI Overview content. SerpAPI and SearchApi.io agree on these field
// names, so both providers decode into it.
type serpPayload struct {
	AIOverview *struct {
		TextBlocks []struct {
			Snippet string `json:"snippet"`
			Title   string `json:"title"`
			List    []struct {
				Snippet string `json:"snippet"`
			} `json:"list"`
		} `json:"text_blocks"`
		References []struct {
			Link string `json:"link"`
		} `json:"references"`
	} `json:"ai_overview"`

	KnowledgeGraph *struct {
		Description string `json:"description"`
		Source      struct {
			Link string `json:"link"`
		} `json:"source"`
	} `json:"knowledge_graph"`

	AnswerBox *struct {
		Answer                  string   `json:"answer"`
		Snippet                 string   `json:"snippet"`
		SnippetHighlightedWords []string `json:"snippet_highlighted_words"`
		Link                    string   `json:"link"`
	} `json:"answer_box"`

	FeaturedSnippet *struct {
		Snippet string `json:"snippet"`
		Link    string `json:"link"`
	} `json:"featured_snippet"`

	RelatedQuestions []struct {
		Snippet string `json:"snippet"`
		Link    string `json:"link"`
	} `json:"related_questions"`
}

// overviewFromPayload walks the fallback chain for AI Overview content:
// the dedicated ai_overview block first, then knowledge graph, answer box,
// featured snippet, and finally the first related question. Returns nil when
// none of them carry text.
func overviewFromPayload(vendor, query string, p *serpPayload) *Overview {
	if p == nil {
		return nil
	}

	build := func(content string, links []string) *Overview {
		if strings.TrimSpace(content) == "" {
			return nil
		}
		return &Overview{
			Query:       query,
			Vendor:      vendor,
			Content:     content,
			Links:       links,
			ExtractedAt: time.Now().UTC(),
		}
	}

	if p.AIOverview != nil {
		var parts []string
		for _, block := range p.AIOverview.TextBlocks {
			if block.Snippet != "" {
				parts = append(parts, block.Snippet)
			}
			for _, item := range block.List {
				if item.Snippet != "" {
					parts = append(parts, item.Snippet)
				}
			}
		}
		var links []string
		for _, ref := range p.AIOverview.References {
			if ref.Link != "" {
				links = append(links, ref.Link)
			}
		}
		if o := build(strings.Join(parts, "\n"), links); o != nil {
			return o
		}
	}

	if p.KnowledgeGraph != nil {
		var links []string
		if p.KnowledgeGraph.Source.Link != "" {
			links = append(links, p.KnowledgeGraph.Source.Link)
		}
		if o := build(p.KnowledgeGraph.Description, links); o != nil {
			return o
		}
	}

	if p.AnswerBox != nil {
		content := p.AnswerBox.Answer
		if content == "" {
			content = p.AnswerBox.Snippet
		}
		if content == "" {
			content = strings.Join(p.AnswerBox.SnippetHighlightedWords, " ")
		}
		var links []string
		if p.AnswerBox.Link != "" {
			links = append(links, p.AnswerBox.Link)
		}
		if o := build(content, links); o != nil {
			return o
		}
	}

	if p.FeaturedSnippet != nil {
		var links []string
		if p.FeaturedSnippet.Link != "" {
			links = append(links, p.FeaturedSnippet.Link)
		}
		if o := build(p.FeaturedSnippet.Snippet, links); o != nil {
			return o
		}
	}

	if len(p.RelatedQuestions) > 0 {
		first := p.RelatedQuestions[0]
		var links []string
		if first.Link != "" {
			links = append(links, first.Link)
		}
		if o := build(first.Snippet, links); o != nil {
			return o
		}
	}

	return nil
}
