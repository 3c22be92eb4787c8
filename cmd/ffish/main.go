package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"ctrlffi"
)

const (
	historyFile = ".ffish_history"
	prompt      = "ffi> "
)

func red(s string) string { return "\x1b[31m" + s + "\x1b[0m" }

func main() {
	var (
		cfgPath = flag.String("config", "", "YAML configuration file")
		command = flag.String("c", "", "run one command and exit")
		script  = flag.String("f", "", "run commands from a file and exit")
	)
	flag.Parse()
	os.Exit(run(*cfgPath, *command, *script))
}

func run(cfgPath, command, script string) int {
	cfg := &ctrlffi.Config{}
	if cfgPath != "" {
		var err error
		if cfg, err = ctrlffi.LoadConfig(cfgPath); err != nil {
			fmt.Fprintln(os.Stderr, red(err.Error()))
			return 1
		}
	}

	logger, closeLog, err := ctrlffi.NewLogger(cfg.Log, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		return 1
	}
	defer closeLog()
	slog.SetDefault(logger)

	sh := newShell(ctrlffi.NewHandler(cfg.Options(logger), nil), os.Stdout)
	if _, err := sh.h.DeclareManifest(cfg.Declare); err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		return 1
	}

	switch {
	case command != "":
		if err := sh.exec(command); err != nil {
			fmt.Fprintln(os.Stderr, red(err.Error()))
			return 1
		}
		return 0
	case script != "":
		f, err := os.Open(script)
		if err != nil {
			fmt.Fprintln(os.Stderr, red(err.Error()))
			return 1
		}
		defer f.Close()
		return runScript(sh, f)
	}
	return repl(sh)
}

// runScript stops at the first failing line.
func runScript(sh *shell, r io.Reader) int {
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		if err := sh.exec(sc.Text()); err != nil {
			if err == errQuit {
				return 0
			}
			fmt.Fprintf(os.Stderr, "%s\n", red(fmt.Sprintf("line %d: %v", n, err)))
			return 1
		}
	}
	if err := sc.Err(); err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		return 1
	}
	return 0
}

func repl(sh *shell) int {
	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	ln.SetCompleter(func(line string) []string {
		var out []string
		for _, c := range commandNames {
			if strings.HasPrefix(c, line) {
				out = append(out, c)
			}
		}
		return out
	})

	for {
		line, err := ln.Prompt(prompt)
		if err != nil {
			if err == liner.ErrPromptAborted {
				continue
			}
			fmt.Println()
			return 0
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		ln.AppendHistory(line)
		if err := sh.exec(line); err != nil {
			if err == errQuit {
				return 0
			}
			fmt.Fprintln(os.Stderr, red(err.Error()))
		}
	}
}
