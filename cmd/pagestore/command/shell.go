package command

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pagestore/pagestore/internal/config"
)

// ShellCommand is an interactive REPL over a database, reading
// semicolon-terminated statements from stdin and printing their
// results, the same onSemicolon splitting the teacher used for its
// listener connections but applied to a local terminal instead of a
// socket.
type ShellCommand struct{}

func (c *ShellCommand) Help() string {
	return strings.TrimSpace(`
Usage: pagestore shell [options]

Options:

	-config=""	Database configuration file
	-db=""		Path to the database file (overrides the config file)
`)
}

func (c *ShellCommand) Synopsis() string {
	return "Starts an interactive SQL shell against a database"
}

func (c *ShellCommand) Run(args []string) int {
	var configPath, dbPath string

	flags := flag.NewFlagSet("shell", flag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "config file")
	flags.StringVar(&dbPath, "db", "", "database file path")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %s\n", err)
		return 1
	}
	if dbPath != "" {
		cfg.DataFile = dbPath
	}

	log := logrus.New()
	log.SetLevel(cfg.LogLevel)

	db, err := cfg.Open(log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %s\n", err)
		return 1
	}
	defer db.Close()

	fmt.Fprintf(os.Stdout, "pagestore shell (%s). Statements end with ';'.\n", describeTarget(cfg.DataFile))

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Split(onSemicolon)

	for {
		fmt.Fprint(os.Stdout, "> ")
		if !scanner.Scan() {
			break
		}

		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "exit" || text == "quit" {
			break
		}

		if err := runStatement(db, text, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "error: %s\n", err)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "input error: %s\n", err)
		return 1
	}
	return 0
}

func describeTarget(dataFile string) string {
	if dataFile == "" {
		return "in-memory"
	}
	return dataFile
}

// onSemicolon splits input on ';', the statement terminator for every
// command issued interactively.
func onSemicolon(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == ';' {
			return i + 1, data[:i], nil
		}
	}

	if atEOF {
		return len(data), data, bufio.ErrFinalToken
	}

	return 0, nil, nil
}
