package cmd

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/emrgen/notesync/internal/audit"
	"github.com/emrgen/notesync/internal/config"
	"github.com/emrgen/notesync/internal/report"
	"github.com/emrgen/notesync/internal/store"
	"github.com/emrgen/notesync/internal/tags"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// tags commands work on the database directly, the server does not have to run.
var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "audit and repair tag pivots and usage counters",
}

func init() {
	tagsCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
	tagsCmd.AddCommand(auditTagsCmd())
	tagsCmd.AddCommand(ownerTagsCmd("backfill", "patch pivot rows that miss a tag id", backfillOwner))
	tagsCmd.AddCommand(ownerTagsCmd("dedupe", "remove duplicate pivot rows", dedupeOwner))
	tagsCmd.AddCommand(ownerTagsCmd("reconcile", "recompute tag usage counters", reconcileOwner))
	tagsCmd.AddCommand(ownerTagsCmd("repair", "backfill, dedupe, reconcile then audit", repairOwner))
}

func toolkit() *audit.Toolkit {
	cfg := config.LoadConfig()
	s := store.NewGormStore(config.GetDb(cfg), store.WithTables(cfg.Tables()))
	return audit.NewToolkit(s, tags.NewReadModifyWriteCounter(s))
}

// owners returns the given owner, or every owner with tags.
func owners(ctx context.Context, tk *audit.Toolkit, owner string) []string {
	if owner != "" {
		return []string{owner}
	}

	list, err := tk.Owners(ctx)
	if err != nil {
		logrus.Fatalf("list owners: %v", err)
	}
	return list
}

func printWarnings(rep *report.Report) {
	for _, e := range rep.Errors() {
		color.Yellow("warning: %v", e)
	}
}

func auditTagsCmd() *cobra.Command {
	var owner string

	command := &cobra.Command{
		Use:   "audit",
		Short: "report pivot drift without changing anything",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			tk := toolkit()

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Owner", "Rows", "Missing Tag ID", "Orphans", "Duplicate Pairs"})
			var suggestions []string
			for _, o := range owners(ctx, tk, owner) {
				res, err := tk.AuditTagPivots(ctx, o)
				if err != nil {
					logrus.Errorf("audit %s: %v", o, err)
					continue
				}
				table.Append([]string{
					o,
					strconv.Itoa(res.TotalRows),
					strconv.Itoa(res.MissingTagIDCount),
					strconv.Itoa(res.OrphanCount),
					strconv.Itoa(len(res.DuplicatePairs)),
				})
				for _, s := range res.Suggestions {
					suggestions = append(suggestions, o+": "+s)
				}
			}
			table.Render()

			if len(suggestions) > 0 {
				color.Cyan("%s", strings.Join(suggestions, "\n"))
			}
		},
	}

	command.Flags().StringVarP(&owner, "owner", "o", "", "owner id, all owners when empty")

	return command
}

type ownerFunc func(ctx context.Context, tk *audit.Toolkit, owner string) ([]string, *report.Report, error)

func ownerTagsCmd(use, short string, run ownerFunc) *cobra.Command {
	var owner string

	command := &cobra.Command{
		Use:   use,
		Short: short,
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			tk := toolkit()

			table := tablewriter.NewWriter(os.Stdout)
			var header bool
			for _, o := range owners(ctx, tk, owner) {
				row, rep, err := run(ctx, tk, o)
				if err != nil {
					logrus.Errorf("%s %s: %v", use, o, err)
					continue
				}
				if !header {
					table.SetHeader(append([]string{"Owner"}, ownerHeaders[use]...))
					header = true
				}
				table.Append(append([]string{o}, row...))
				printWarnings(rep)
			}
			table.Render()
		},
	}

	command.Flags().StringVarP(&owner, "owner", "o", "", "owner id, all owners when empty")

	return command
}

var ownerHeaders = map[string][]string{
	"backfill":  {"Patched", "Unresolved"},
	"dedupe":    {"Removed"},
	"reconcile": {"Checked", "Corrected"},
	"repair":    {"Patched", "Removed", "Corrected", "Missing Tag ID", "Duplicate Pairs"},
}

func backfillOwner(ctx context.Context, tk *audit.Toolkit, owner string) ([]string, *report.Report, error) {
	res, rep, err := tk.BackfillNoteTagPivots(ctx, owner)
	if err != nil {
		return nil, nil, err
	}
	return []string{strconv.Itoa(res.Patched), strings.Join(res.Unresolved, ", ")}, rep, nil
}

func dedupeOwner(ctx context.Context, tk *audit.Toolkit, owner string) ([]string, *report.Report, error) {
	res, rep, err := tk.RemoveDuplicatePivots(ctx, owner)
	if err != nil {
		return nil, nil, err
	}
	return []string{strconv.Itoa(res.Removed)}, rep, nil
}

func reconcileOwner(ctx context.Context, tk *audit.Toolkit, owner string) ([]string, *report.Report, error) {
	res, rep, err := tk.ReconcileTagUsage(ctx, owner)
	if err != nil {
		return nil, nil, err
	}
	return []string{strconv.Itoa(res.Checked), strconv.Itoa(res.Corrected)}, rep, nil
}

func repairOwner(ctx context.Context, tk *audit.Toolkit, owner string) ([]string, *report.Report, error) {
	res, rep, err := tk.Repair(ctx, owner)
	if err != nil {
		return nil, nil, err
	}
	return []string{
		strconv.Itoa(res.Backfill.Patched),
		strconv.Itoa(res.Dedupe.Removed),
		strconv.Itoa(res.Reconcile.Corrected),
		strconv.Itoa(res.Audit.MissingTagIDCount),
		strconv.Itoa(len(res.Audit.DuplicatePairs)),
	}, rep, nil
}
