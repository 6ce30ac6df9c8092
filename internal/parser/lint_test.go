package parser

import "testing"

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"Hello World":            "hello-world",
		"  Leading & trailing  ": "leading-trailing",
		"C++ (draft) v1.0":       "c-draft-v1-0",
		"already-slugged":        "already-slugged",
		"UPPER__under":           "upper-under",
		"!!!":                    "",
		"Grüße":                  "gr-e",
	}
	for in, want := range cases {
		if got := Slug(in); got != want {
			t.Errorf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFindInvalidReferences(t *testing.T) {
	body := "Valid [[Note]] and [[Note|alias]].\n" +
		"See [setup](setup-guide.md) for details.\n" +
		"Also [other](0195b7a2-6f1e-7c3d-9a41-2f0c5d8e9b10).\n" +
		"Broken [[half] and [other half]] here.\n" +
		"Empty [[]] marker.\n"

	refs := FindInvalidReferences(body)
	kinds := map[string]int{}
	for _, r := range refs {
		kinds[r.Kind]++
	}
	if kinds[RefMarkdownFile] != 1 || kinds[RefMarkdownID] != 1 || kinds[RefUnbalanced] != 2 || kinds[RefEmpty] != 1 {
		t.Errorf("kinds = %v, refs = %+v", kinds, refs)
	}
	for _, r := range refs {
		if r.Line == 1 {
			t.Errorf("valid markers reported as invalid: %+v", r)
		}
	}
}

func TestFindInvalidReferences_CleanBody(t *testing.T) {
	if refs := FindInvalidReferences("Plain [[A]] text with [a link](https://example.com)."); len(refs) != 0 {
		t.Errorf("unexpected findings: %+v", refs)
	}
}
