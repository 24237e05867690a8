package prompt

import "testing"

func TestBuild_SubstitutesAllPlaceholders(t *testing.T) {
	got, err := Build("{title}|{url}|{content}", Fields{Title: "T", URL: "U", Content: "C"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "T|U|C" {
		t.Fatalf("expected 'T|U|C', got %q", got)
	}
}

func TestBuild_RepeatedPlaceholders(t *testing.T) {
	got, err := Build("{title} / {title}", Fields{Title: "T", URL: "U", Content: "C"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "T / T" {
		t.Fatalf("unexpected result %q", got)
	}
}

func TestBuild_MissingFieldFails(t *testing.T) {
	cases := []Fields{
		{Title: "", URL: "U", Content: "C"},
		{Title: "T", URL: "", Content: "C"},
		{Title: "T", URL: "U", Content: ""},
	}
	for _, f := range cases {
		if out, err := Build("{title}|{url}|{content}", f); err == nil {
			t.Fatalf("expected error for %+v, got %q", f, out)
		}
	}
}

func TestBuild_EmptyTemplateFails(t *testing.T) {
	if _, err := Build("  ", Fields{Title: "T", URL: "U", Content: "C"}); err == nil {
		t.Fatalf("expected error for empty template")
	}
}
