package pipeline

import "testing"

func TestVoterQuorum(t *testing.T) {
	v := NewVoter(5, 3, 0)
	v.Add("hello")
	v.Add("hello")
	if v.IsStable() {
		t.Fatal("two votes should not reach quorum of three")
	}
	v.Add("hello")
	if !v.IsStable() {
		t.Fatal("three votes should reach quorum")
	}
	if got := v.Stable(); got != "hello" {
		t.Fatalf("expected stable %q, got %q", "hello", got)
	}
}

func TestVoterFallbackToMostRecent(t *testing.T) {
	v := NewVoter(5, 3, 0)
	v.Add("alpha")
	v.Add("beta")
	v.Add("gamma")
	if v.IsStable() {
		t.Fatal("no quorum expected")
	}
	if got := v.Stable(); got != "gamma" {
		t.Fatalf("expected most recent sample, got %q", got)
	}
}

func TestVoterEmptyWindow(t *testing.T) {
	v := NewVoter(5, 3, 0)
	if v.Stable() != "" {
		t.Fatal("empty window should yield empty stable text")
	}
	if v.IsStable() {
		t.Fatal("empty window should not be stable")
	}
	if v.IsSoftStable(0.9) {
		t.Fatal("empty window should not be soft stable")
	}
}

func TestVoterWindowEviction(t *testing.T) {
	v := NewVoter(3, 2, 0)
	v.Add("a")
	v.Add("a")
	v.Add("b")
	v.Add("b")
	// Window is now [a b b]; "a" lost a vote to eviction.
	if got := v.Stable(); got != "b" {
		t.Fatalf("expected %q after eviction, got %q", "b", got)
	}
}

func TestVoterNormalizesWhitespace(t *testing.T) {
	v := NewVoter(4, 2, 0)
	v.Add("  hello   world ")
	v.Add("hello world")
	if !v.IsStable() {
		t.Fatal("whitespace variants should count as the same sample")
	}
	if got := v.Stable(); got != "hello world" {
		t.Fatalf("expected normalized text, got %q", got)
	}
}

func TestVoterSimilarityMode(t *testing.T) {
	v := NewVoter(5, 3, 0.85)
	v.Add("the quick brown fox")
	v.Add("the quick brown foxx")
	v.Add("the quick brown fox")
	if !v.IsStable() {
		t.Fatal("near-duplicates should cluster above the similarity threshold")
	}
	got := v.Stable()
	if got != "the quick brown fox" && got != "the quick brown foxx" {
		t.Fatalf("stable text should come from the cluster, got %q", got)
	}
}

func TestVoterSimilarityModeRejectsDissimilar(t *testing.T) {
	v := NewVoter(5, 3, 0.85)
	v.Add("completely different")
	v.Add("the quick brown fox")
	v.Add("zebra crossing ahead")
	if v.IsStable() {
		t.Fatal("dissimilar samples must not cluster")
	}
}

func TestVoterSoftStable(t *testing.T) {
	v := NewVoter(6, 4, 0)
	v.Add("reading lamp")
	v.Add("reading lamp")
	v.Add("reading lampp")
	if v.IsStable() {
		t.Fatal("quorum of four not reached")
	}
	if !v.IsSoftStable(0.9) {
		t.Fatal("latest sample closely matches consensus, expected soft stability")
	}
	v.Add("unrelated words entirely")
	if v.IsSoftStable(0.9) {
		t.Fatal("divergent latest sample must not be soft stable")
	}
}

func TestTextSimilarity(t *testing.T) {
	if got := textSimilarity("abc", "abc"); got != 1.0 {
		t.Fatalf("identical strings should score 1.0, got %f", got)
	}
	if got := textSimilarity("abc", "xyz"); got != 0.0 {
		t.Fatalf("disjoint strings should score 0.0, got %f", got)
	}
	if got := textSimilarity("", ""); got != 1.0 {
		t.Fatalf("two empty strings should score 1.0, got %f", got)
	}
	if got := textSimilarity("abc", ""); got != 0.0 {
		t.Fatalf("empty versus non-empty should score 0.0, got %f", got)
	}
	// ratio = 2*M/T: "abcd" vs "abxd" share 3 runes over 8 total.
	if got := textSimilarity("abcd", "abxd"); got != 0.75 {
		t.Fatalf("expected 0.75, got %f", got)
	}
}
