package analyzer

import (
	"strings"
	"testing"
)

func TestTokenizer_Tokenize(t *testing.T) {
	tok := NewTokenizer()

	tokens := tok.Tokenize("What color is the Sky?")
	if strings.Join(tokens, ",") != "color,sky" {
		t.Errorf("expected [color sky], got %v", tokens)
	}
}

func TestTokenizer_StopwordRemoval(t *testing.T) {
	tok := NewTokenizer()

	for _, token := range tok.Tokenize("the quick brown fox is on the mat") {
		if token == "the" || token == "is" || token == "on" {
			t.Errorf("stopword %q should have been removed", token)
		}
	}
}

func TestTokenizer_Unicode(t *testing.T) {
	tok := NewTokenizer()

	tokens := tok.Tokenize("Größe und Übersicht")
	if len(tokens) != 3 || tokens[0] != "größe" {
		t.Errorf("expected 3 lowercased unicode tokens, got %v", tokens)
	}
}

func TestTokenizer_CountTokens(t *testing.T) {
	tok := NewTokenizer()

	if n := tok.CountTokens(""); n != 0 {
		t.Errorf("expected 0 tokens for empty text, got %d", n)
	}
	if n := tok.CountTokens("one two three four five six seven eight nine ten"); n != 13 {
		t.Errorf("expected 13 tokens for ten words, got %d", n)
	}

	long := strings.Repeat("word ", 1000)
	short := strings.Repeat("word ", 10)
	if tok.CountTokens(long) <= tok.CountTokens(short) {
		t.Error("longer text should cost more tokens")
	}
}
