package text

import (
	"strings"
	"testing"
)

func TestTokenize(t *testing.T) {
	tokens := Tokenize("File Ohio 2024 taxes with W2, a 1099!")
	want := []string{"file", "ohio", "2024", "taxes", "with", "w2", "1099"}
	if len(tokens) != len(want) {
		t.Fatalf("Tokenize() = %v, want %v", tokens, want)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, tokens[i], want[i])
		}
	}
}

func TestKeywords(t *testing.T) {
	keywords := Keywords("File Ohio 2024 taxes with W2 and itemized deductions for the Ohio return")

	joined := strings.Join(keywords, ",")
	if joined != "file,ohio,2024,taxes,w2,itemized,deductions,return" {
		t.Errorf("unexpected keywords %q", joined)
	}
}

func TestKeywords_Empty(t *testing.T) {
	if got := Keywords(""); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
	if got := Keywords("the and of"); len(got) != 0 {
		t.Errorf("expected no keywords from stop words, got %v", got)
	}
}

func TestFTSQuery(t *testing.T) {
	got := FTSQuery("plan a trip to Tokyo")
	if got != `"plan" OR "trip" OR "tokyo"` {
		t.Errorf("FTSQuery() = %q", got)
	}
	if FTSQuery("to the") != "" {
		t.Error("expected empty query for stop words only")
	}
}

func TestOverlap(t *testing.T) {
	got := Overlap("Ohio W2 taxes", "Title: Ohio 2024 W2 Itemized | Task: tax_filing")
	if got < 0.66 || got > 0.67 {
		t.Errorf("expected 2/3 overlap, got %f", got)
	}
}

func TestStem(t *testing.T) {
	tests := []struct {
		word string
		want string
	}{
		{"taxes", "tax"},
		{"itemized", "itemiz"},
		{"itemize", "itemiz"},
		{"deductions", "deduction"},
		{"w2", "w2"},
		{"bus", "bus"},
	}

	for _, tt := range tests {
		if got := Stem(tt.word); got != tt.want {
			t.Errorf("Stem(%q) = %q, want %q", tt.word, got, tt.want)
		}
	}
}

func TestOverlap_Stems(t *testing.T) {
	got := Overlap("itemized taxes", "itemize your tax return")
	if got != 1 {
		t.Errorf("expected full overlap through stemming, got %f", got)
	}
}

func TestCorpus_Score(t *testing.T) {
	c := NewCorpus([]string{
		"ohio state tax return with w2 income",
		"plan a trip to tokyo with hotels and flights",
		"parse csv files into json",
	})

	if c.Len() != 3 {
		t.Fatalf("expected 3 docs, got %d", c.Len())
	}

	query := Keywords("ohio w2 taxes")
	taxScore := c.Score(query, 0)
	travelScore := c.Score(query, 1)

	if taxScore <= 0 {
		t.Errorf("expected positive score for matching doc, got %f", taxScore)
	}
	if travelScore != 0 {
		t.Errorf("expected zero score for unrelated doc, got %f", travelScore)
	}
	if c.Score(query, 7) != 0 {
		t.Error("expected zero for out of range doc")
	}
}
