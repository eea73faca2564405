package diag

import (
	"bytes"
	"strings"
	"testing"

	"github.com/eis-lang/eisc/internal/token"
)

func TestErrorFormat(t *testing.T) {
	var out bytes.Buffer
	rep := New(&out)
	rep.SetSource([]byte("var x = @\n"))
	rep.SetModuleName("main.eis")

	rep.Error("Unrecognized character in source", token.Token{
		Kind: token.NONE, Lexeme: "@", Line: 1, Start: 8, End: 9,
	})

	got := out.String()
	if !strings.HasPrefix(got, "main.eis:1:9: error: Unrecognized character in source\n") {
		t.Errorf("unexpected header: %q", got)
	}
	if !strings.Contains(got, "var x = @") {
		t.Errorf("missing source excerpt: %q", got)
	}
	caretLine := ""
	for _, line := range strings.Split(got, "\n") {
		if strings.Contains(line, "^") {
			caretLine = line
		}
	}
	if caretLine == "" {
		t.Fatalf("missing caret line: %q", got)
	}
	if !strings.HasSuffix(caretLine, "        ^") {
		t.Errorf("caret not under offending byte: %q", caretLine)
	}
	if !rep.HadError {
		t.Error("HadError not set")
	}
}

func TestSeverities(t *testing.T) {
	var out bytes.Buffer
	rep := New(&out)
	rep.SetSource([]byte("x\n"))
	rep.SetModuleName("m.eis")
	where := token.Token{Line: 1, Start: 0, End: 1}

	rep.Warning("w", where)
	if rep.HadError || rep.HadRuntimeError {
		t.Error("warning must not set error flags")
	}
	rep.RuntimeError("r", where)
	if !rep.HadRuntimeError {
		t.Error("HadRuntimeError not set")
	}
	rep.Error("e", where)
	if !rep.HadError {
		t.Error("HadError not set")
	}

	got := out.String()
	for _, want := range []string{"warning: w", "runtime error: r", "error: e"} {
		if !strings.Contains(got, want) {
			t.Errorf("output %q missing %q", got, want)
		}
	}
}

func TestNoteAttachesToLastMessage(t *testing.T) {
	var out bytes.Buffer
	rep := New(&out)
	rep.SetSource([]byte("y\n"))
	rep.SetModuleName("m.eis")

	rep.Error("bad", token.Token{Line: 1, Start: 0, End: 1})
	rep.Note("try something else")

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	last := lines[len(lines)-1]
	if last != "  note: try something else" {
		t.Errorf("note line = %q", last)
	}
}

// Emission is ordered: messages appear in call order.
func TestOrderedEmission(t *testing.T) {
	var out bytes.Buffer
	rep := New(&out)
	rep.SetSource([]byte("a b\n"))
	rep.SetModuleName("m.eis")

	rep.Error("first", token.Token{Line: 1, Start: 0, End: 1})
	rep.Error("second", token.Token{Line: 1, Start: 2, End: 3})

	got := out.String()
	if strings.Index(got, "first") > strings.Index(got, "second") {
		t.Errorf("messages out of order: %q", got)
	}
}

func TestSourceSwap(t *testing.T) {
	var out bytes.Buffer
	rep := New(&out)
	rep.SetSource([]byte("aaa\n"))
	rep.SetModuleName("a.eis")

	prevSrc, prevName := rep.Source(), rep.ModuleName()
	rep.SetSource([]byte("bbb\n"))
	rep.SetModuleName("b.eis")
	rep.Error("inner", token.Token{Line: 1, Start: 0, End: 3})
	rep.SetSource(prevSrc)
	rep.SetModuleName(prevName)
	rep.Error("outer", token.Token{Line: 1, Start: 0, End: 3})

	got := out.String()
	if !strings.Contains(got, "b.eis:1:1: error: inner") || !strings.Contains(got, "bbb") {
		t.Errorf("nested module diagnostics wrong: %q", got)
	}
	if !strings.Contains(got, "a.eis:1:1: error: outer") || !strings.Contains(got, "aaa") {
		t.Errorf("restored module diagnostics wrong: %q", got)
	}
}
