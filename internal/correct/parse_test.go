package correct

import "testing"

func TestParseStrictReplyDirect(t *testing.T) {
	reply, err := parseStrictReply(`{"original":"helo","corrected":"hello","changes":[{"from":"helo","to":"hello"}],"confidence":0.9,"language_hint":"en"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *reply.Corrected != "hello" {
		t.Fatalf("unexpected corrected %q", *reply.Corrected)
	}
	if len(reply.Changes) != 1 || reply.Changes[0].From != "helo" {
		t.Fatalf("unexpected changes %+v", reply.Changes)
	}
	if reply.LanguageHint != "en" {
		t.Fatalf("unexpected language hint %q", reply.LanguageHint)
	}
}

func TestParseStrictReplyFenced(t *testing.T) {
	content := "Here is the result:\n```json\n{\"original\":\"a\",\"corrected\":\"A\",\"changes\":[],\"confidence\":1.0,\"language_hint\":\"en\"}\n```\nDone."
	reply, err := parseStrictReply(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *reply.Corrected != "A" {
		t.Fatalf("unexpected corrected %q", *reply.Corrected)
	}
}

func TestParseStrictReplyBraceSpan(t *testing.T) {
	content := `The corrected version follows. {"original":"x","corrected":"X","changes":[],"confidence":0.8,"language_hint":"fr"} Hope that helps.`
	reply, err := parseStrictReply(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *reply.Corrected != "X" || reply.LanguageHint != "fr" {
		t.Fatalf("unexpected reply %+v", reply)
	}
}

func TestParseStrictReplyRejectsGarbage(t *testing.T) {
	for _, content := range []string{
		"",
		"I cannot correct this text.",
		`{"original":"a","confidence":1.0}`, // missing corrected field
		"``` not json ```",
	} {
		if _, err := parseStrictReply(content); err == nil {
			t.Fatalf("expected error for %q", content)
		}
	}
}

func TestParseStrictReplyEmptyCorrection(t *testing.T) {
	// An explicitly empty corrected string is a valid reply, distinct from a
	// missing field.
	reply, err := parseStrictReply(`{"original":"","corrected":"","changes":[],"confidence":1.0,"language_hint":"en"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *reply.Corrected != "" {
		t.Fatalf("unexpected corrected %q", *reply.Corrected)
	}
}

func TestTruncateInput(t *testing.T) {
	if got := truncateInput("hello", 0); got != "hello" {
		t.Fatalf("no limit should pass through, got %q", got)
	}
	if got := truncateInput("hello", 3); got != "hel" {
		t.Fatalf("expected rune truncation, got %q", got)
	}
	if got := truncateInput("héllo", 2); got != "hé" {
		t.Fatalf("expected rune-safe truncation, got %q", got)
	}
}
