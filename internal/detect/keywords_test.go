package detect

import (
	"context"
	"image"
	"testing"
)

func TestKeywordMatcher_Match(t *testing.T) {
	m := NewKeywordMatcher([]string{"Republic", "PHILIPPINES", "  "}, 0.25)

	tests := []struct {
		name  string
		words []string
		want  string
		ok    bool
	}{
		{"exact", []string{"REPUBLIC"}, "REPUBLIC", true},
		{"case and punctuation", []string{"republic,"}, "REPUBLIC", true},
		{"one ocr slip", []string{"PHILIPP1NES"}, "PHILIPPINES", true},
		{"two slips in long word", []string{"PH1LIPP1NES"}, "PHILIPPINES", true},
		{"too many edits", []string{"REP"}, "", false},
		{"unrelated", []string{"BANANA", "HELLO"}, "", false},
		{"empty input", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.Match(tt.words)
			if ok != tt.ok || got != tt.want {
				t.Errorf("Match(%v) = %q, %v; want %q, %v", tt.words, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestKeywordMatcher_Empty(t *testing.T) {
	if !NewKeywordMatcher(nil, 0.25).Empty() {
		t.Error("Expected matcher without keywords to be empty")
	}
	if NewKeywordMatcher([]string{"ID"}, 0.25).Empty() {
		t.Error("Expected matcher with keywords to be non-empty")
	}
}

func TestKeywordMatcher_Accept(t *testing.T) {
	m := NewKeywordMatcher([]string{"LICENSE"}, 0.25)

	if _, ok := m.Accept([]string{"LICENSE"}, 2); ok {
		t.Error("Expected too few words to be rejected")
	}
	if k, ok := m.Accept([]string{"DRIVER", "L1CENSE"}, 2); !ok || k != "LICENSE" {
		t.Errorf("Expected fuzzy keyword to be accepted, got %q %v", k, ok)
	}
	if _, ok := m.Accept([]string{"GROCERY", "RECEIPT"}, 2); ok {
		t.Error("Expected missing keyword to be rejected")
	}
	if _, ok := NewKeywordMatcher(nil, 0.25).Accept([]string{"ANY", "TEXT"}, 2); !ok {
		t.Error("Expected word count alone to suffice without keywords")
	}
}

func TestFunc_AndAlways(t *testing.T) {
	calls := 0
	f := Func(func(context.Context, image.Image) (bool, error) {
		calls++
		return false, nil
	})
	ok, err := f.Detect(context.Background(), nil)
	if ok || err != nil || calls != 1 {
		t.Errorf("Unexpected Func result %v %v %d", ok, err, calls)
	}
	ok, _ = Always.Detect(context.Background(), nil)
	if !ok {
		t.Error("Expected Always to detect")
	}
}
