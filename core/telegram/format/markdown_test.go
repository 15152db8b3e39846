package format

import "testing"

func TestEscapeMarkdown(t *testing.T) {
	got, err := EscapeMarkdown("a_b*c[d`e", MarkdownV1)
	if err != nil {
		t.Fatal(err)
	}
	if got != `a\_b\*c\[d` + "\\`" + `e` {
		t.Errorf("v1 escape = %q", got)
	}

	got, err = EscapeMarkdown("x.y!z", MarkdownV2)
	if err != nil {
		t.Fatal(err)
	}
	if got != `x\.y\!z` {
		t.Errorf("v2 escape = %q", got)
	}

	if _, err := EscapeMarkdown("x", 3); err == nil {
		t.Error("expected error for unsupported version")
	}
}

func TestCodeStripsBackticks(t *testing.T) {
	if got := Code("pass`word"); got != "`pass'word`" {
		t.Errorf("Code = %q", got)
	}
}
