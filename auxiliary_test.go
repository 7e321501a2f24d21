package lua

import "testing"

func TestLoadFileSyntaxError(t *testing.T) {
	l := NewState()
	err := LoadFile(l, "fixtures/syntax_error.lua", "")
	if err != SyntaxError {
		t.Error("didn't return SyntaxError on file with syntax error")
	}
	if l.Top() != 1 {
		t.Error("didn't push anything to the stack")
	}
	if l.IsString(-1) != true {
		t.Error("didn't push a string to the stack")
	}
	estr, _ := l.ToString(-1)
	if estr != "fixtures/syntax_error.lua:4: syntax error near <eof>" {
		t.Error("didn't push the correct error string")
	}
}

func TestLoadStringSyntaxError(t *testing.T) {
	l := NewState()
	err := LoadString(l, "this_is_a_syntax_error")
	if err != SyntaxError {
		t.Error("didn't return SyntaxError on string with syntax error")
	}
	if l.Top() != 1 {
		t.Error("didn't push anything to the stack")
	}
	if l.IsString(-1) != true {
		t.Error("didn't push a string to the stack")
	}
	estr, _ := l.ToString(-1)
	if estr != "[string \"this_is_a_syntax_error\"]:1: syntax error near <eof>" {
		t.Error("didn't push the correct error string")
	}
}

func TestDoStringReportsRuntimeErrors(t *testing.T) {
	l := NewState()
	OpenLibraries(l)
	err := DoString(l, `error("kaboom")`)
	if err != RuntimeError {
		t.Errorf("expected RuntimeError, got %v", err)
	}
	estr, _ := l.ToString(-1)
	if estr != chunkID(`error("kaboom")`)+":1: kaboom" {
		t.Errorf("unexpected error message %q", estr)
	}
}

func TestLoadBufferBindsGlobals(t *testing.T) {
	l := NewState()
	OpenLibraries(l)
	if err := LoadBuffer(l, `answer = 42`, "=bind", ""); err != nil {
		t.Fatal(err)
	}
	l.Run()
	l.Global("answer")
	if n, ok := l.ToNumber(-1); !ok || n != 42 {
		t.Errorf("chunk did not write through the globals table, got %v", n)
	}
}
