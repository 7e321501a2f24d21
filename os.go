package lua

import (
	"fmt"
	"io/ioutil"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// dateDirectives maps the strftime-style verbs os.date accepts to their
// expansions. Unknown verbs pass through unchanged, '%' included.
var dateDirectives = map[byte]func(t time.Time) string{
	'a': func(t time.Time) string { return t.Weekday().String()[:3] },
	'A': func(t time.Time) string { return t.Weekday().String() },
	'b': func(t time.Time) string { return t.Month().String()[:3] },
	'B': func(t time.Time) string { return t.Month().String() },
	'c': func(t time.Time) string { return t.Format("Mon Jan  2 15:04:05 2006") },
	'd': func(t time.Time) string { return fmt.Sprintf("%02d", t.Day()) },
	'H': func(t time.Time) string { return fmt.Sprintf("%02d", t.Hour()) },
	'I': func(t time.Time) string { return t.Format("03") },
	'j': func(t time.Time) string { return fmt.Sprintf("%03d", t.YearDay()) },
	'm': func(t time.Time) string { return fmt.Sprintf("%02d", int(t.Month())) },
	'M': func(t time.Time) string { return fmt.Sprintf("%02d", t.Minute()) },
	'p': func(t time.Time) string { return t.Format("PM") },
	'S': func(t time.Time) string { return fmt.Sprintf("%02d", t.Second()) },
	'w': func(t time.Time) string { return fmt.Sprintf("%d", int(t.Weekday())) },
	'x': func(t time.Time) string { return t.Format("01/02/06") },
	'X': func(t time.Time) string { return t.Format("15:04:05") },
	'y': func(t time.Time) string { return fmt.Sprintf("%02d", t.Year()%100) },
	'Y': func(t time.Time) string { return fmt.Sprintf("%d", t.Year()) },
	'%': func(time.Time) string { return "%" },
}

func formatDate(t time.Time, layout string) string {
	var b strings.Builder
	for i := 0; i < len(layout); i++ {
		if layout[i] != '%' || i+1 == len(layout) {
			b.WriteByte(layout[i])
			continue
		}
		i++
		if expand, ok := dateDirectives[layout[i]]; ok {
			b.WriteString(expand(t))
		} else {
			b.WriteByte('%')
			b.WriteByte(layout[i])
		}
	}
	return b.String()
}

// dateField reads an integer field of an os.time table argument; def < 0
// marks it required.
func dateField(l State, key string, def int) int {
	l.Field(-1, key)
	n, ok := l.ToInteger(-1)
	if !ok {
		if def < 0 {
			Errorf(l, "field '%s' missing in date table", key)
		}
		n = def
	}
	l.Pop(1)
	return n
}

func pushDateTable(l State, t time.Time) {
	l.CreateTable(0, 8)
	set := func(key string, v int) {
		l.PushInteger(v)
		l.SetField(-2, key)
	}
	set("year", t.Year())
	set("month", int(t.Month()))
	set("day", t.Day())
	set("hour", t.Hour())
	set("min", t.Minute())
	set("sec", t.Second())
	set("wday", int(t.Weekday())+1)
	set("yday", t.YearDay())
}

func osDate(l State) int {
	layout := OptString(l, 1, "%c")
	t := time.Unix(int64(OptNumber(l, 2, float64(time.Now().Unix()))), 0)
	if strings.HasPrefix(layout, "!") {
		layout, t = layout[1:], t.UTC()
	} else {
		t = t.Local()
	}
	if layout == "*t" {
		pushDateTable(l, t)
	} else {
		l.PushString(formatDate(t, layout))
	}
	return 1
}

func osTime(l State) int {
	if l.IsNoneOrNil(1) {
		l.PushNumber(float64(time.Now().Unix()))
		return 1
	}
	CheckType(l, 1, TypeTable)
	l.SetTop(1)
	year := dateField(l, "year", -1)
	month := dateField(l, "month", -1)
	day := dateField(l, "day", -1)
	hour := dateField(l, "hour", 12)
	min := dateField(l, "min", 0)
	sec := dateField(l, "sec", 0)
	t := time.Date(year, time.Month(month), day, hour, min, sec, 0, time.Local)
	l.PushNumber(float64(t.Unix()))
	return 1
}

// osExecute runs a shell command, reporting the three-value status shape
// os.execute has in 5.2-era Lua.
func osExecute(l State) int {
	command := OptString(l, 1, "")
	if command == "" {
		l.PushBoolean(true) // a shell is available
		return 1
	}
	cmd := exec.Command("sh", "-c", command)
	cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
	err := cmd.Run()
	if err == nil {
		l.PushBoolean(true)
		l.PushString("exit")
		l.PushInteger(0)
		return 3
	}
	reason, status := "exit", 1
	if exitErr, ok := err.(*exec.ExitError); ok {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if ws.Signaled() {
				reason, status = "signal", int(ws.Signal())
			} else {
				status = ws.ExitStatus()
			}
		}
	} else {
		status = -1 // the command could not be started at all
	}
	l.PushNil()
	l.PushString(reason)
	l.PushInteger(status)
	return 3
}

func osExit(l State) int {
	status := 0
	if l.IsBoolean(1) {
		if !l.ToBoolean(1) {
			status = 1
		}
	} else {
		status = OptInteger(l, 1, 0)
	}
	os.Exit(status)
	panic("unreachable")
}

var osLibrary = []RegistryFunction{
	{"clock", clock},
	{"date", osDate},
	{"difftime", func(l State) int {
		l.PushNumber(CheckNumber(l, 1) - OptNumber(l, 2, 0))
		return 1
	}},
	{"execute", osExecute},
	{"exit", osExit},
	{"getenv", func(l State) int { l.PushString(os.Getenv(CheckString(l, 1))); return 1 }},
	{"remove", func(l State) int {
		name := CheckString(l, 1)
		return FileResult(l, os.Remove(name), name)
	}},
	{"rename", func(l State) int {
		return FileResult(l, os.Rename(CheckString(l, 1), CheckString(l, 2)), "")
	}},
	{"time", osTime},
	{"tmpname", func(l State) int {
		f, err := ioutil.TempFile("", "lua_")
		if err != nil {
			Errorf(l, "unable to generate a unique filename")
		}
		defer f.Close()
		l.PushString(f.Name())
		return 1
	}},
}

// OSOpen opens the os library. Usually passed to Require.
func OSOpen(l State) int {
	NewLibrary(l, osLibrary)
	return 1
}
