package parser

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExtractWikilinks_Basic(t *testing.T) {
	body := "See [[Note A]] and [[Note B|alias]].\nAlso [[Note A]] again."
	got := ExtractWikilinks(body)
	want := []Wikilink{{Target: "Note A"}, {Target: "Note B", Display: "alias"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("links (-want +got):\n%s", diff)
	}
}

func TestExtractWikilinks_EmptyTarget(t *testing.T) {
	if links := ExtractWikilinks("see [[ ]] and [[|alias]]"); len(links) != 0 {
		t.Errorf("expected no links, got %v", links)
	}
}

func TestRewriteWikilinks_KeepsDisplayText(t *testing.T) {
	body := "Ref [[Old Title]] and [[Old Title|custom text]] but not [[Old Title Two]] or [[Other]]."
	got := RewriteWikilinks(body, "Old Title", "New Title")
	want := "Ref [[New Title]] and [[New Title|custom text]] but not [[Old Title Two]] or [[Other]]."
	if got != want {
		t.Errorf("got  %q\nwant %q", got, want)
	}
}

func TestRewriteWikilinks_NoOpWhenEqual(t *testing.T) {
	body := "keep [[Same]]"
	if got := RewriteWikilinks(body, "Same", "Same"); got != body {
		t.Errorf("got %q", got)
	}
}

func TestRewriteWikilinks_EscapesSpecialCharacters(t *testing.T) {
	body := "[[C++ (draft) v1.0?]] and [[C   (draft) v1x0]]"
	got := RewriteWikilinks(body, "C++ (draft) v1.0?", "C++ final")
	want := "[[C++ final]] and [[C   (draft) v1x0]]"
	if got != want {
		t.Errorf("got  %q\nwant %q", got, want)
	}
}

func TestRewriteWikilinks_DollarInNewTitle(t *testing.T) {
	got := RewriteWikilinks("[[Price]]", "Price", "Cost $1")
	if got != "[[Cost $1]]" {
		t.Errorf("got %q", got)
	}
}

func TestRewriteWikilinks_NotMarkupAware(t *testing.T) {
	body := "```\n[[Old]]\n```\n"
	got := RewriteWikilinks(body, "Old", "New")
	if got != "```\n[[New]]\n```\n" {
		t.Errorf("markers inside code blocks are rewritten too, got %q", got)
	}
}

func TestAppendRelated_CreatesSection(t *testing.T) {
	got := AppendRelated("Intro text.", Marker("Target", ""))
	want := "Intro text.\n\n## Related\n\n- [[Target]]\n"
	if got != want {
		t.Errorf("got  %q\nwant %q", got, want)
	}
}

func TestAppendRelated_EmptyBody(t *testing.T) {
	got := AppendRelated("", Marker("Target", "see"))
	if got != "## Related\n\n- [[Target|see]]\n" {
		t.Errorf("got %q", got)
	}
}

func TestAppendRelated_ExistingSectionBeforeNextHeading(t *testing.T) {
	body := "Intro\n\n## Related\n\n- [[A]]\n\n## Notes\n\ntext\n"
	got := AppendRelated(body, Marker("B", ""))
	want := "Intro\n\n## Related\n\n- [[A]]\n- [[B]]\n\n## Notes\n\ntext\n"
	if got != want {
		t.Errorf("got  %q\nwant %q", got, want)
	}
}

func TestRemoveWikilinks_DropsListItemAndEmptySection(t *testing.T) {
	body := "Intro\n\n## Related\n\n- [[B|bee]]\n"
	got := RemoveWikilinks(body, "B")
	if got != "Intro\n" {
		t.Errorf("got %q", got)
	}
}

func TestRemoveWikilinks_KeepsOtherMarkers(t *testing.T) {
	body := "Intro\n\n## Related\n\n- [[A]]\n- [[B]]\n"
	got := RemoveWikilinks(body, "B")
	want := "Intro\n\n## Related\n\n- [[A]]\n"
	if got != want {
		t.Errorf("got  %q\nwant %q", got, want)
	}
}

func TestRemoveThenAppend_IsStable(t *testing.T) {
	body := AppendRelated("Intro", Marker("B", ""))
	again := AppendRelated(RemoveWikilinks(body, "B"), Marker("B", ""))
	if again != body {
		t.Errorf("re-linking changed body:\n%q\n%q", body, again)
	}
}

func TestMarker(t *testing.T) {
	cases := map[string][2]string{
		"[[T]]":       {"T", ""},
		"[[T|shown]]": {"T", " shown "},
		"[[Same]]":    {"Same", "Same"},
	}
	for want, in := range cases {
		if got := Marker(in[0], in[1]); got != want {
			t.Errorf("Marker(%q, %q) = %q, want %q", in[0], in[1], got, want)
		}
	}
}
