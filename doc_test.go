package lua_test

import (
	"github.com/pinepeak/lua"
)

// average receives a variable number of numerical arguments on the stack
// and returns their average and sum.
func average(l lua.State) int {
	n := l.Top() // Number of arguments.
	var sum float64
	for i := 1; i <= n; i++ {
		f, ok := l.ToNumber(i)
		if !ok {
			l.PushString("incorrect argument")
			l.Error()
		}
		sum += f
	}
	l.PushNumber(sum / float64(n)) // First result.
	l.PushNumber(sum)              // Second result.
	return 2                       // Result count.
}

func Example() {
	l := lua.NewState()
	lua.OpenLibraries(l)
	l.Register("average", average)
	lua.DoString(l, `print(average(1, 2, 3))`)
	// Output: 2	6
}
