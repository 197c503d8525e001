package wikicode

import "testing"

func TestParseIncludeTags(t *testing.T) {
	tests := []struct {
		name           string
		code           string
		nonTranscluded string
		transcluded    string
	}{
		{"plain", "abc", "abc", "abc"},
		{"noinclude", "a<noinclude>b</noinclude>c", "abc", "ac"},
		{"includeonly", "a<includeonly>b</includeonly>c", "ac", "abc"},
		{"both", "<noinclude>doc</noinclude><includeonly>body</includeonly>", "doc", "body"},
		{"onlyinclude", "x<onlyinclude>y</onlyinclude>z", "xyz", "y"},
		{"two onlyinclude", "a<onlyinclude>b</onlyinclude>c<onlyinclude>d</onlyinclude>", "abcd", "bd"},
		{"nowiki shields tags", "<nowiki><noinclude></nowiki>", "<nowiki><noinclude></nowiki>", "<nowiki><noinclude></nowiki>"},
		{"comment shields tags", "a<!--<includeonly>-->b", "a<!--<includeonly>-->b", "a<!--<includeonly>-->b"},
		{"case insensitive", "a<NoInclude>b</NOINCLUDE>c", "abc", "ac"},
		{"space before gt", "a<noinclude >b</noinclude >c", "abc", "ac"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts, errs := ParseIncludeTags(tt.code)
			if len(errs) != 0 {
				t.Fatalf("unexpected errors: %v", errs)
			}
			if parts.NonTranscluded != tt.nonTranscluded {
				t.Errorf("NonTranscluded = %q, want %q", parts.NonTranscluded, tt.nonTranscluded)
			}
			if parts.Transcluded != tt.transcluded {
				t.Errorf("Transcluded = %q, want %q", parts.Transcluded, tt.transcluded)
			}
		})
	}
}

func TestParseIncludeTagsErrors(t *testing.T) {
	tests := []struct {
		name string
		code string
		kind IncludeTagErrorKind
		tag  string
	}{
		{"unclosed includeonly", "<includeonly>a", IncludeTagMismatch, "includeonly"},
		{"lone closing", "a</noinclude>", IncludeTagMismatch, "noinclude"},
		{"nested noinclude", "<noinclude>a<noinclude>b</noinclude></noinclude>", IncludeTagNested, "noinclude"},
		{"includeonly in noinclude", "<noinclude><includeonly>x</includeonly></noinclude>", IncludeTagConflict, "includeonly"},
		{"noinclude in includeonly", "<includeonly><noinclude>x</noinclude></includeonly>", IncludeTagConflict, "noinclude"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errs := ParseIncludeTags(tt.code)
			for _, err := range errs {
				tagErr, ok := err.(*IncludeTagError)
				if !ok {
					t.Fatalf("error %v is %T, want *IncludeTagError", err, err)
				}
				if tagErr.Kind == tt.kind && tagErr.Tag == tt.tag {
					return
				}
			}
			t.Errorf("no error with kind %d tag %q in %v", tt.kind, tt.tag, errs)
		})
	}
}

func TestParseIncludeTagsErrorRecovery(t *testing.T) {
	// Errors never prevent splitting; the text outside the broken span
	// is still classified.
	parts, errs := ParseIncludeTags("a<includeonly>b")
	if len(errs) == 0 {
		t.Fatal("expected an error")
	}
	if parts.NonTranscluded != "a" {
		t.Errorf("NonTranscluded = %q, want %q", parts.NonTranscluded, "a")
	}
	if parts.Transcluded != "ab" {
		t.Errorf("Transcluded = %q, want %q", parts.Transcluded, "ab")
	}
}
