package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"zombiezen.com/go/log"

	lua "github.com/pinepeak/lua"
)

// chunkListFlag is an implementation of [pflag.Value] that collects every
// occurrence of -e, so several chunks can run in order like the reference
// interpreter allows.
type chunkListFlag []string

func (f *chunkListFlag) String() string   { return strings.Join(*f, "; ") }
func (f *chunkListFlag) Set(s string) error { *f = append(*f, s); return nil }
func (f *chunkListFlag) Type() string     { return "code" }

var _ pflag.Value = (*chunkListFlag)(nil)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "lua:", err)
		os.Exit(1)
	}
}

func run() error {
	var execute chunkListFlag
	var interactive bool

	root := &cobra.Command{
		Use:           "lua [script]",
		Short:         "run a Lua 5.1 script",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.MaximumNArgs(1),
	}
	root.Flags().VarP(&execute, "execute", "e", "execute `code` and exit")
	root.Flags().BoolVarP(&interactive, "interactive", "i", false, "enter a read-eval-print loop")

	root.RunE = func(cmd *cobra.Command, args []string) error {
		log.SetDefault(&log.LevelFilter{
			Min:    log.Info,
			Output: log.New(os.Stderr, "lua: ", log.StdFlags, nil),
		})
		l := lua.NewState()
		lua.WithContext(l, context.Background())
		lua.OpenLibraries(l)

		switch {
		case len(execute) > 0:
			for _, chunk := range execute {
				if err := runChunk(l, chunk, "=(command line)"); err != nil {
					return err
				}
			}
			return nil
		case interactive:
			return repl(l)
		case len(args) == 1:
			return lua.DoFile(l, args[0])
		default:
			return cmd.Usage()
		}
	}

	return root.Execute()
}

func runChunk(l lua.State, source, name string) error {
	if err := lua.LoadBuffer(l, source, name, ""); err != nil {
		return chunkError(l, err)
	}
	if err := l.ProtectedCall(0, 0, 0); err != nil {
		return chunkError(l, err)
	}
	return nil
}

// chunkError folds the message value the interpreter left on the stack into
// the returned error.
func chunkError(l lua.State, err error) error {
	if s, ok := l.ToString(-1); ok {
		l.Pop(1)
		return fmt.Errorf("%w: %s", err, s)
	}
	return err
}

// repl reads statements from stdin until EOF or a line consisting solely of
// "exit" or "quit", printing any error a chunk raises without aborting the
// session.
func repl(l lua.State) error {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil && err != io.EOF {
				return err
			}
			return nil
		}
		line := scanner.Text()
		if line == "exit" || line == "quit" {
			return nil
		}
		if err := runChunk(l, line, "=stdin"); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}
