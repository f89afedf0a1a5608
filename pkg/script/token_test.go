package script

import "testing"

func TestTokenizeClassifiesTagsSubtagsAndArguments(t *testing.T) {
	tokens, err := Tokenize(`-Read +nodefile "a b.tsv" +nodeindex 0`)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	want := []Token{
		{Kind: TokenTag, Value: "READ"},
		{Kind: TokenSubtag, Value: "NODEFILE"},
		{Kind: TokenArgument, Value: "a b.tsv"},
		{Kind: TokenSubtag, Value: "NODEINDEX"},
		{Kind: TokenArgument, Value: "0"},
	}
	if len(tokens) != len(want) {
		t.Fatalf("got %d tokens, want %d: %+v", len(tokens), len(want), tokens)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Errorf("token[%d] = %+v, want %+v", i, tokens[i], want[i])
		}
	}
}

func TestTokenizePreservesArgumentCase(t *testing.T) {
	tokens, err := Tokenize(`-Load MyModel.m1`)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if tokens[0].Value != "LOAD" {
		t.Errorf("tag = %q, want upper-cased LOAD", tokens[0].Value)
	}
	if tokens[1].Value != "MyModel.m1" {
		t.Errorf("argument = %q, want case preserved", tokens[1].Value)
	}
}

func TestTokenizeUnmatchedQuoteIsFatal(t *testing.T) {
	if _, err := Tokenize(`-Load "unterminated`); err == nil {
		t.Error("expected an error for an unmatched quote")
	}
}

func TestTokenizeQuotedWhitespacePreserved(t *testing.T) {
	tokens, err := Tokenize(`-Seed "a	b c"`)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if tokens[1].Value != "a\tb c" {
		t.Errorf("quoted argument = %q, want internal whitespace preserved", tokens[1].Value)
	}
}
