package main

import (
	"fmt"
	"os"

	"github.com/mitchellh/cli"

	"github.com/pagestore/pagestore/cmd/pagestore/command"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		args = append(args, "shell")
	}

	commands := map[string]cli.CommandFactory{
		"query": func() (cli.Command, error) {
			return &command.QueryCommand{}, nil
		},
		"shell": func() (cli.Command, error) {
			return &command.ShellCommand{}, nil
		},
	}

	pagestoreCLI := &cli.CLI{
		Args:     args,
		Commands: commands,
		HelpFunc: cli.BasicHelpFunc("pagestore"),
	}

	exitCode, err := pagestoreCLI.Run()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
		os.Exit(1)
	}

	os.Exit(exitCode)
}
