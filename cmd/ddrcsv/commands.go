package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/subcommands"

	"github.com/JonMunkholm/ddrcsv/internal/application"
	"github.com/JonMunkholm/ddrcsv/internal/core"
	"github.com/JonMunkholm/ddrcsv/internal/dvcs"
	"github.com/JonMunkholm/ddrcsv/internal/logging"
	"github.com/JonMunkholm/ddrcsv/internal/models"
)

// service is the part of core.Service the commands use.
type service interface {
	CollectionPath(collectionID string) (string, error)
	Run(ctx context.Context, req core.ImportRequest) (*core.Report, error)
	Export(ctx context.Context, kind models.Kind, collectionPath, csvPath string) (core.ExportResult, error)
}

func serviceFrom(args []interface{}) (service, bool) {
	for _, a := range args {
		switch v := a.(type) {
		case *application.App:
			return v.Service, true
		case service:
			return v, true
		}
	}
	return nil, false
}

// resolveCollection accepts a collection ID or a repository path.
func resolveCollection(svc service, arg string) (string, error) {
	if strings.ContainsRune(arg, filepath.Separator) || arg == "." {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return "", err
		}
		if _, err := models.ParseCollectionID(filepath.Base(abs)); err != nil {
			return "", err
		}
		return abs, nil
	}
	return svc.CollectionPath(arg)
}

type importCmd struct {
	out io.Writer

	kind       string
	csvPath    string
	collection string
	user       string
	mail       string
	dryRun     bool
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "import entities or files from a CSV into a collection" }
func (*importCmd) Usage() string {
	return `import -kind entities|files -csv PATH -collection ID|PATH -user NAME -mail EMAIL [-dry-run]:
  Validate every row, then create or update one record per row and commit it.
  Any invalid row, header mismatch or missing reference aborts before anything is written.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.kind, "kind", "", "record kind: entities or files")
	f.StringVar(&c.csvPath, "csv", "", "CSV file to import")
	f.StringVar(&c.collection, "collection", "", "collection ID or repository path")
	f.StringVar(&c.user, "user", "", "git user name for commits")
	f.StringVar(&c.mail, "mail", "", "git user email for commits")
	f.BoolVar(&c.dryRun, "dry-run", false, "validate and check references only")
}

func (c *importCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	svc, ok := serviceFrom(args)
	if !ok {
		return subcommands.ExitFailure
	}
	kind, err := models.ParseKind(c.kind)
	if err != nil || c.csvPath == "" || c.collection == "" || (!c.dryRun && (c.user == "" || c.mail == "")) {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	coll, err := resolveCollection(svc, c.collection)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ddrcsv: %v\n", err)
		return subcommands.ExitUsageError
	}
	csvPath, err := filepath.Abs(c.csvPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ddrcsv: %v\n", err)
		return subcommands.ExitUsageError
	}

	rep, err := svc.Run(ctx, core.ImportRequest{
		Kind:           kind,
		CSVPath:        csvPath,
		CollectionPath: coll,
		Actor:          dvcs.Actor{Name: c.user, Email: c.mail},
		DryRun:         c.dryRun,
	})
	printReport(c.out, rep, err)
	if err != nil || (rep != nil && rep.Failed > 0) {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// printReport writes a human summary of a batch.
func printReport(w io.Writer, rep *core.Report, err error) {
	if err != nil {
		msg := core.MapError(err)
		fmt.Fprintf(w, "ABORTED [%s] %s\n  %v\n", msg.Code, msg.Message, err)
		if rep != nil {
			for _, p := range rep.Problems {
				fmt.Fprintf(w, "  %s\n", p)
			}
		}
		if msg.Action != "" {
			fmt.Fprintf(w, "  %s\n", msg.Action)
		}
		return
	}
	if rep.Status == core.StatusChecked {
		fmt.Fprintf(w, "OK %d %s row(s) valid, nothing written\n", rep.Total, rep.Kind)
		return
	}
	fmt.Fprintf(w, "%d of %d %s row(s) imported in %s\n", rep.Succeeded, rep.Total, rep.Kind, rep.Elapsed.Round(time.Millisecond))
	for _, o := range rep.FailedRows() {
		fmt.Fprintf(w, "  line %d %s: %s\n", o.Line, o.ID, o.Error)
	}
}

type exportCmd struct {
	out io.Writer

	kind       string
	collection string
	csvPath    string
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "export a collection's entities or files to CSV" }
func (*exportCmd) Usage() string {
	return `export -kind entities|files -collection ID|PATH [-out PATH]:
  Write every record of the kind as a fully quoted CSV in schema order.
  Without -out the file goes to the configured export directory.
`
}

func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.kind, "kind", "", "record kind: entities or files")
	f.StringVar(&c.collection, "collection", "", "collection ID or repository path")
	f.StringVar(&c.csvPath, "out", "", "output CSV path")
}

func (c *exportCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	svc, ok := serviceFrom(args)
	if !ok {
		return subcommands.ExitFailure
	}
	kind, err := models.ParseKind(c.kind)
	if err != nil || c.collection == "" {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	coll, err := resolveCollection(svc, c.collection)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ddrcsv: %v\n", err)
		return subcommands.ExitUsageError
	}

	res, err := svc.Export(ctx, kind, coll, c.csvPath)
	if err != nil {
		msg := core.MapError(err)
		fmt.Fprintf(c.out, "[%s] %s\n  %v\n", msg.Code, msg.Message, err)
		return subcommands.ExitFailure
	}
	size := ""
	if fi, err := os.Stat(res.Path); err == nil {
		size = " (" + logging.HumanizeBytes(fi.Size()) + ")"
	}
	fmt.Fprintf(c.out, "%d %s record(s) written to %s%s\n", res.Records, res.Kind, res.Path, size)
	return subcommands.ExitSuccess
}
