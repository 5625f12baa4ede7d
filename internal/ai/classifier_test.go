package ai

import "testing"

func TestVoteDomain(t *testing.T) {
	domain, hits, votes := voteDomain("the statute assigns liability to the defendant")
	if domain != "law" {
		t.Fatalf("domain = %s, want law", domain)
	}
	if votes != 3 || len(hits) != 3 {
		t.Fatalf("votes = %d, hits = %v", votes, hits)
	}
}

func TestVoteDomainNoHits(t *testing.T) {
	domain, _, votes := voteDomain("nothing relevant in this sentence at all")
	if domain != "general" || votes != 0 {
		t.Fatalf("domain = %s, votes = %d", domain, votes)
	}
}

func TestFallbackQueryClassification(t *testing.T) {
	cls := fallbackQueryClassification("how does the quantum particle conserve momentum")
	if cls.Domain != "physics" {
		t.Fatalf("domain = %s, want physics", cls.Domain)
	}
	// three keyword votes: 0.3 + 3*0.15
	if cls.Confidence != 0.75 {
		t.Fatalf("confidence = %f, want 0.75", cls.Confidence)
	}
}

func TestFallbackQueryClassificationConfidenceCapped(t *testing.T) {
	cls := fallbackQueryClassification("patient diagnosis treatment symptom clinical disease therapy medication")
	if cls.Domain != "medicine" {
		t.Fatalf("domain = %s, want medicine", cls.Domain)
	}
	if cls.Confidence != 0.8 {
		t.Fatalf("confidence = %f, want capped 0.8", cls.Confidence)
	}
	if len(cls.Keywords) > 5 {
		t.Fatalf("keywords not trimmed: %v", cls.Keywords)
	}
}

func TestFallbackQueryClassificationNoMatch(t *testing.T) {
	cls := fallbackQueryClassification("hello there friend")
	if cls.Domain != "general" {
		t.Fatalf("domain = %s, want general", cls.Domain)
	}
	if cls.Confidence != 0.3 {
		t.Fatalf("confidence = %f, want 0.3", cls.Confidence)
	}
}

func TestFallbackDocClassification(t *testing.T) {
	cls := fallbackDocClassification("the portfolio held equity and dividend producing assets", "annual_report.pdf")
	if cls.Domain != "finance" {
		t.Fatalf("domain = %s, want finance", cls.Domain)
	}
	if cls.Title != "annual_report.pdf" {
		t.Fatalf("title = %s", cls.Title)
	}
	if cls.Type != "document" {
		t.Fatalf("type = %s", cls.Type)
	}
}

func TestJSONObjectExtraction(t *testing.T) {
	raw := "Sure! Here is the result:\n```json\n{\"domain\": \"law\"}\n```\nanything else?"
	m := jsonObjectRe.FindString(raw)
	if m != `{"domain": "law"}` {
		t.Fatalf("extracted %q", m)
	}
}
