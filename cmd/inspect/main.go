// Command inspect lists HubSpot pipelines and owners and drafts the sales
// rep mapping file, the setup steps that precede a first sync.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/erp/crmsync/internal/bootstrap"
	"github.com/erp/crmsync/internal/infrastructure/epicor"
	"github.com/erp/crmsync/internal/infrastructure/hubspot"
	"github.com/erp/crmsync/internal/infrastructure/owner"
)

const usage = `Usage: inspect <command> [flags]

Commands:
  pipelines     List HubSpot deal pipelines and their stages
  owners        List HubSpot owners
  rep-template  Write a sales rep mapping template from Epicor and HubSpot
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}

	cmd := args[0]
	switch cmd {
	case "pipelines", "owners", "rep-template":
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (default: ./config.toml)")
	out := fs.String("out", "sales_rep_mapping.template.json", "Template output path (rep-template)")
	_ = fs.Parse(args[1:])

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, *configPath, "inspect")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = app.Close(shutdownCtx)
	}()

	crm, err := app.CRM()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	switch cmd {
	case "pipelines":
		err = listPipelines(ctx, crm)
	case "owners":
		err = listOwners(ctx, crm)
	case "rep-template":
		var source *epicor.Client
		if source, err = app.Source(); err == nil {
			err = writeRepTemplate(ctx, source, crm, *out)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		return 1
	}
	return 0
}

func listPipelines(ctx context.Context, crm *hubspot.Client) error {
	pipelines, err := crm.ListDealPipelines(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, p := range pipelines {
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.ID, p.Label, archivedMark(p.Archived))
		for _, s := range p.Stages {
			fmt.Fprintf(w, "  %s\t%s\t%s\n", s.ID, s.Label, archivedMark(s.Archived))
		}
	}
	return w.Flush()
}

func listOwners(ctx context.Context, crm *hubspot.Client) error {
	owners, err := crm.ListOwners(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMAIL")
	for _, o := range owners {
		fmt.Fprintf(w, "%s\t%s\t%s\n", o.ID, o.FullName(), o.Email)
	}
	return w.Flush()
}

func writeRepTemplate(ctx context.Context, source *epicor.Client, crm *hubspot.Client, path string) error {
	reps, err := source.FetchSalesReps(ctx)
	if err != nil {
		return fmt.Errorf("fetch sales reps: %w", err)
	}
	owners, err := crm.ListOwners(ctx)
	if err != nil {
		return fmt.Errorf("list owners: %w", err)
	}

	t := owner.BuildTemplate(toReps(reps), toCRMOwners(owners))
	if err := owner.WriteTemplate(path, t); err != nil {
		return err
	}
	fmt.Printf("Wrote %s: %d matched, %d unmatched of %d sales reps\n",
		path, len(t.Mappings), len(t.Unmatched), len(reps))
	return nil
}

func toReps(reps []epicor.SalesRep) []owner.Rep {
	out := make([]owner.Rep, 0, len(reps))
	for _, r := range reps {
		out = append(out, owner.Rep{Code: r.SalesRepCode, Name: r.Name, Email: r.EMailAddress})
	}
	return out
}

func toCRMOwners(owners []hubspot.Owner) []owner.CRMOwner {
	out := make([]owner.CRMOwner, 0, len(owners))
	for _, o := range owners {
		if o.Archived {
			continue
		}
		out = append(out, owner.CRMOwner{ID: o.ID, Name: o.FullName(), Email: o.Email})
	}
	return out
}

func archivedMark(archived bool) string {
	if archived {
		return "(archived)"
	}
	return ""
}
