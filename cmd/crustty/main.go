// main.go — a minimal demonstration binary exercising the public Engine API
// end to end. It owns neither a C parser nor a real TUI (see SPEC_FULL.md
// §6.1): it loads one of the embedded example programs (programs.go) and
// drives it either step by step over a raw terminal, or straight through in
// -batch mode for scripting/CI use.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/peterh/liner"
	"golang.org/x/term"

	"github.com/aicheye/crustty"
)

const historyFile = ".crustty_history"

func red(s string) string   { return "\x1b[31m" + s + "\x1b[0m" }
func green(s string) string { return "\x1b[32m" + s + "\x1b[0m" }
func blue(s string) string  { return "\x1b[94m" + s + "\x1b[0m" }

func main() {
	batch := flag.Bool("batch", false, "run to completion non-interactively and exit")
	name := flag.String("example", "sum", "embedded example program to run (see -list)")
	list := flag.Bool("list", false, "list embedded example programs and exit")
	cfgPath := flag.String("config", "crustty.toml", "path to an engine config file (optional)")
	flag.Parse()

	if *list {
		for _, ex := range examples {
			fmt.Printf("%-10s %s\n", ex.name, ex.doc)
		}
		return
	}

	ex := findExample(*name)
	if ex == nil {
		fmt.Fprintf(os.Stderr, "crustty: unknown example %q (see -list)\n", *name)
		os.Exit(1)
	}

	cfg, err := crustty.LoadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, red("crustty: "+err.Error()))
		os.Exit(1)
	}
	cfg.ScanfSource = strings.NewReader("")

	eng, err := crustty.New(ex.prog(), cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, red("crustty: "+err.Error()))
		os.Exit(1)
	}

	if *batch {
		os.Exit(runBatch(eng))
	}
	os.Exit(runInteractive(eng))
}

// runBatch drives the engine straight through and prints everything it
// would have shown a terminal, matching spec.md §6's exit-code contract:
// 0 clean termination, 2 an unhandled runtime error surfaced without an
// interactive session.
func runBatch(eng *crustty.Engine) int {
	status, err := eng.RunToEnd(nil)
	for _, line := range eng.Terminal().Lines() {
		fmt.Println(line)
	}
	if status == crustty.StatusAwaitingInput {
		fmt.Fprintln(os.Stderr, red("crustty: program is waiting on scanf input; -batch has none to give it"))
		return 2
	}
	if status == crustty.StatusFaulted {
		fmt.Fprintln(os.Stderr, red(crustty.FormatWithSource(err, "")))
		return 2
	}
	return 0
}

// runInteractive puts the terminal in raw mode so single keypresses drive
// stepping, temporarily dropping to liner's cooked-mode line editing only
// while a scanf is actually pending input.
func runInteractive(eng *crustty.Engine) int {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		fmt.Fprintln(os.Stderr, "crustty: stdin is not a terminal; use -batch")
		return 2
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigc)

	printHelp()
	printed := 0
	stdin := bufio.NewReader(os.Stdin)

	for {
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			fmt.Fprintln(os.Stderr, red("crustty: "+err.Error()))
			return 1
		}
		key, readErr := readKey(stdin, sigc)
		term.Restore(fd, oldState)

		if readErr != nil {
			fmt.Println()
			return 0
		}

		var status crustty.Status
		switch key {
		case 'n', ' ':
			status, err = eng.StepForward()
		case 'p':
			status, err = eng.StepBackward()
		case 'r':
			status, err = eng.RunToEnd(nil)
		case 'R':
			eng.Restart()
			status = crustty.StatusAdvanced
		case 'q':
			return 0
		case '?':
			printHelp()
			continue
		default:
			continue
		}

		printed = flushTerminal(eng, printed)
		reportStatus(eng, status, err)

		if status == crustty.StatusAwaitingInput {
			line, ok := promptForInput()
			if !ok {
				return 0
			}
			eng.ProvideInput(line)
		}
	}
}

func printHelp() {
	fmt.Println(blue("crustty — n=step p=back r=run-to-end R=restart q=quit ?=help"))
}

func flushTerminal(eng *crustty.Engine, alreadyPrinted int) int {
	lines := eng.Terminal().Lines()
	for i := alreadyPrinted; i < len(lines); i++ {
		fmt.Println(lines[i])
	}
	return len(lines)
}

func reportStatus(eng *crustty.Engine, status crustty.Status, err error) {
	loc := eng.CurrentLocation()
	switch status {
	case crustty.StatusAdvanced:
		fmt.Printf(green("[step %d] %d:%d\n"), eng.StepIndex(), loc.Line, loc.Col)
	case crustty.StatusHalted:
		fmt.Println(green("[halted] program returned from main"))
	case crustty.StatusFaulted:
		fmt.Println(red(crustty.FormatWithSource(err, "")))
	case crustty.StatusRefused:
		fmt.Println(blue("[refused] that action is not valid right now"))
	}
}

// promptForInput drops out of raw mode entirely (liner needs cooked mode of
// its own) to read one line of scanf input with history/editing support.
func promptForInput() (string, bool) {
	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)
	if f, err := os.Open(histPath); err == nil {
		ln.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			ln.WriteHistory(f)
			f.Close()
		}
	}()

	line, err := ln.Prompt("scanf> ")
	if errors.Is(err, io.EOF) || err != nil {
		return "", false
	}
	ln.AppendHistory(line)
	return line, true
}

// readKey reads one raw byte from stdin, or reports a signal/EOF as an
// error so the caller can exit cleanly. r is reused across calls so a
// pending read from a prior, interrupted call never races a later one.
func readKey(r *bufio.Reader, sigc <-chan os.Signal) (byte, error) {
	type result struct {
		b   byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		b, err := r.ReadByte()
		done <- result{b, err}
	}()
	select {
	case res := <-done:
		return res.b, res.err
	case <-sigc:
		return 0, io.EOF
	}
}
