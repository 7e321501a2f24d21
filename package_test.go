package lua_test

import (
	"testing"

	"github.com/pinepeak/lua"
)

func TestUserDataNewIndexMetaMethod(t *testing.T) {
	type step struct {
		name     string
		function interface{}
	}
	steps := []step{}
	l := lua.NewState()
	lua.BaseOpen(l)
	_ = lua.NewMetaTable(l, "stepMetaTable")
	lua.SetFunctions(l, []lua.RegistryFunction{{"__newindex", func(l lua.State) int {
		k, v := lua.CheckString(l, 2), l.ToInterface(3)
		steps = append(steps, step{name: k, function: v})
		return 0
	}}}, 0)
	l.PushUserData(steps)
	l.PushValue(-1)
	l.SetGlobal("step")
	lua.SetMetaTableNamed(l, "stepMetaTable")
	if err := lua.LoadString(l, `step.request_tracking_js = function ()
    get(config.domain..'/javascripts/shopify_stats.js')
  end`); err != nil {
		t.Fatal(err)
	}
	l.Call(0, 0)
	if len(steps) != 1 || steps[0].name != "request_tracking_js" {
		t.Fatalf("expected one recorded step named request_tracking_js, got %v", steps)
	}
}
