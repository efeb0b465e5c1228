package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

type programRunner interface {
	Run() (tea.Model, error)
}

type programFactory func(tea.Model, ...tea.ProgramOption) programRunner

func run(args []string, stdin io.Reader, stdout, stderr io.Writer, newProgram programFactory) error {
	fs := flag.NewFlagSet("bloom-triage", flag.ContinueOnError)
	fs.SetOutput(stderr)
	serverAddr := fs.String("server", "http://localhost:8080", "bloom server address")
	adminToken := fs.String("admin-token", os.Getenv("BLOOM_ADMIN_TOKEN"), "operator admin token")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*serverAddr) == "" {
		return errors.New("server address is required")
	}
	if strings.TrimSpace(*adminToken) == "" {
		return errors.New("admin token is required")
	}

	api := NewAPIClient(*serverAddr, *adminToken)
	m := newTriageModel(api)

	if newProgram == nil {
		newProgram = func(model tea.Model, options ...tea.ProgramOption) programRunner {
			return tea.NewProgram(model, options...)
		}
	}

	p := newProgram(m, tea.WithAltScreen(), tea.WithInput(stdin), tea.WithOutput(stdout))
	_, err := p.Run()
	return err
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr, nil); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
