package lua_test

import (
	"testing"

	"github.com/pinepeak/lua"
)

func TestCanRemoveNilFromStack(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("failed to remove `nil`, %v", r)
		}
	}()

	l := lua.NewState()

	l.PushString("hello")
	l.Remove(-1)

	l.PushNil()
	l.Remove(-1)
}
