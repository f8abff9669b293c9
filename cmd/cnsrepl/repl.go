package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/abaikov/cnstra-sub003/pkg/cascade"
	"github.com/abaikov/cnstra-sub003/pkg/core"
)

const replHelp = `
cnsrepl - available commands:

  stimulate <collateral> <payload>   Fire one signal and print its trace
    stimulate <collateral> <payload> --concurrency N --max-hops N
  history [n]                        Show the last n traced responses (default 10)
  scc                                 List strongly connected components
  neurons                             List every neuron in the topology
  \help                               Show this help
  \quit  (or exit, quit, Ctrl-D)      Exit
`

// runREPL starts the interactive shell.
func runREPL(s *shell) {
	core.PrintBanner()
	fmt.Println("Type \\help for commands, \\quit to exit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("cns> ")
		if !scanner.Scan() {
			fmt.Println()
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if dispatch(s, line) {
			fmt.Println("Bye.")
			break
		}
	}
}

// dispatch parses and executes one REPL line. Returns true to quit.
func dispatch(s *shell, line string) bool {
	parts := tokenize(line)
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])

	switch cmd {
	case `\quit`, `\q`, "exit", "quit":
		return true

	case `\help`, `\h`, "help":
		fmt.Print(replHelp)

	case "stimulate":
		replStimulate(s, parts[1:])

	case "history":
		replHistory(s, parts[1:])

	case "scc":
		replSCC(s)

	case "neurons":
		for _, n := range s.facade.GetNeurons() {
			fmt.Printf("  %s (concurrency=%d, dendrites=%d)\n", n.Name, n.Concurrency, len(n.Dendrites))
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown command %q - type \\help for available commands\n", cmd)
	}

	return false
}

func replStimulate(s *shell, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: stimulate <collateral> <payload> [--concurrency N] [--max-hops N]")
		return
	}
	collateral := core.CollateralName(args[0])
	payload := parsePayload(args[1])

	opts := cascade.Options{}
	for i := 2; i < len(args); i++ {
		switch args[i] {
		case "--concurrency":
			if i+1 < len(args) {
				i++
				if n, err := strconv.Atoi(args[i]); err == nil {
					opts.Concurrency = n
				}
			}
		case "--max-hops":
			if i+1 < len(args) {
				i++
				if n, err := strconv.Atoi(args[i]); err == nil {
					opts.MaxNeuronHops = n
				}
			}
		}
	}

	before := len(s.history)
	h := s.facade.StimulateOne(core.Signal{CollateralName: collateral, Payload: payload}, opts)
	err := h.WaitUntilComplete()

	fmt.Printf("stimulation %s: %d task(s), %d failed\n", h.StimulationID(), len(h.GetAllActivationTasks()), len(h.GetFailedTasks()))
	for _, r := range s.history[before:] {
		line, _ := json.Marshal(r)
		fmt.Println(string(line))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
}

func replHistory(s *shell, args []string) {
	n := 10
	if len(args) > 0 {
		if v, err := strconv.Atoi(args[0]); err == nil {
			n = v
		}
	}
	start := len(s.history) - n
	if start < 0 {
		start = 0
	}
	for _, r := range s.history[start:] {
		line, _ := json.Marshal(r)
		fmt.Println(string(line))
	}
}

func replSCC(s *shell) {
	sccs := s.facade.StronglyConnectedComponents()
	if sccs == nil {
		fmt.Println("(auto-cleanup disabled, no SCC analysis available - rerun with --auto-cleanup)")
		return
	}
	for i, members := range sccs {
		fmt.Printf("  scc %d: %v\n", i, members)
	}
}

// parsePayload tries to interpret a token as JSON (number, bool, quoted
// string), falling back to the raw token as a plain string.
func parsePayload(tok string) any {
	var v any
	if err := json.Unmarshal([]byte(tok), &v); err == nil {
		return v
	}
	return tok
}

// tokenize splits a line into tokens respecting quoted strings.
func tokenize(line string) []string {
	var tokens []string
	var cur strings.Builder
	inQuote := false
	quoteChar := rune(0)

	for _, ch := range line {
		switch {
		case inQuote:
			if ch == quoteChar {
				inQuote = false
			} else {
				cur.WriteRune(ch)
			}
		case ch == '"' || ch == '\'':
			inQuote = true
			quoteChar = ch
		case ch == ' ' || ch == '\t':
			if cur.Len() > 0 {
				tokens = append(tokens, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(ch)
		}
	}
	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}
	return tokens
}
