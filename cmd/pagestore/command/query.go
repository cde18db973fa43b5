package command

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pagestore/pagestore"
	"github.com/pagestore/pagestore/internal/config"
)

// QueryCommand runs a single SQL statement against a database and
// prints the result, mirroring the teacher's one-shot command shape
// but driving an in-process Database instead of dialing a listener.
type QueryCommand struct{}

func (c *QueryCommand) Help() string {
	return strings.TrimSpace(`
Usage: pagestore query [options] <sql>

Options:

	-config=""	Database configuration file
	-db=""		Path to the database file (overrides the config file)
`)
}

func (c *QueryCommand) Synopsis() string {
	return "Runs a single SQL statement against a database"
}

func (c *QueryCommand) Run(args []string) int {
	var configPath, dbPath string

	flags := flag.NewFlagSet("query", flag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "config file")
	flags.StringVar(&dbPath, "db", "", "database file path")
	if err := flags.Parse(args); err != nil {
		return 1
	}

	sqlText := strings.Join(flags.Args(), " ")
	if strings.TrimSpace(sqlText) == "" {
		fmt.Fprintln(os.Stderr, "no SQL statement given")
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

	if err := runStatement(db, sqlText, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		return 1
	}
	return 0
}

// runStatement tries sqlText as a SELECT first; any other statement
// kind falls back to Exec. The root package has no single combined
// dispatch entry point (Query and Exec reject each other's statement
// kinds by design, see db.go), so the CLI picks between them itself.
func runStatement(db *pagestore.Database, sqlText string, out *os.File) error {
	reader, err := db.Query(sqlText, nil)
	if err == nil {
		return printRows(reader, out)
	}

	res, execErr := db.Exec(sqlText, nil)
	if execErr != nil {
		return execErr
	}
	fmt.Fprintf(out, "OK (%d row(s) affected, last insert id %d)\n", res.RowsAffected, res.LastInsertID)
	return nil
}

func printRows(r *pagestore.Reader, out *os.File) error {
	cols := r.Columns()
	fmt.Fprintln(out, strings.Join(cols, "\t"))

	for r.HasRow() {
		vals := make([]string, len(cols))
		for i := range cols {
			v, err := r.Value(i)
			if err != nil {
				return err
			}
			vals[i] = fmt.Sprintf("%v", v)
		}
		fmt.Fprintln(out, strings.Join(vals, "\t"))

		if _, err := r.Next(); err != nil {
			return err
		}
	}
	return nil
}
