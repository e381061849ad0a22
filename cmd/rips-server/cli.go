package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rips/rips/internal/config"
	"github.com/rips/rips/internal/domain/catalog"
	"github.com/rips/rips/internal/domain/compliance"
	"github.com/rips/rips/internal/domain/ingest"
	"github.com/rips/rips/internal/domain/session"
	"github.com/rips/rips/internal/platform/export"
	"github.com/rips/rips/internal/platform/textdecode"
)

// batchFlags are shared by the offline ingest and export commands.
type batchFlags struct {
	catalog   string
	goals     string
	allActive bool
	scale     int
	persist   bool
}

func (f *batchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.catalog, "catalog", "", "Service catalog CSV (required)")
	cmd.Flags().StringVar(&f.goals, "goals", "", "YAML file with monthly goals")
	cmd.Flags().BoolVar(&f.allActive, "all-active", false, "Activate every catalog service type with a zero goal")
	cmd.Flags().IntVar(&f.scale, "scale", 0, "Period multiplier in months (1, 2, 3, 6, 12)")
	cmd.Flags().BoolVar(&f.persist, "save", false, "Save the resulting session to the configured store")
	_ = cmd.MarkFlagRequired("catalog")
}

func ingestCmd() *cobra.Command {
	var flags batchFlags
	var top int
	cmd := &cobra.Command{
		Use:   "ingest [flags] FILE...",
		Short: "Ingest RIPS files and print the compliance summary",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, summary, cleanup, err := runBatch(cmd.Context(), &flags, args, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer cleanup()
			return printSummary(cmd.OutOrStdout(), summary, svc.Report(), top)
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&top, "top", 10, "Rows to print per ranking")
	return cmd
}

func exportCmd() *cobra.Command {
	var flags batchFlags
	var view, format, out string
	cmd := &cobra.Command{
		Use:   "export [flags] FILE...",
		Short: "Ingest RIPS files and write one report view",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			svc, _, cleanup, err := runBatch(cmd.Context(), &flags, args, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer cleanup()

			table, ok := compliance.ExportTable(svc.Report(), view)
			if !ok {
				return fmt.Errorf("unknown view %q (want one of %v)", view, compliance.Views)
			}
			if out == "" || out == "-" {
				return export.Write(cmd.OutOrStdout(), table, f)
			}
			return writeFile(out, func(w io.Writer) error { return export.Write(w, table, f) })
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&view, "view", compliance.ViewChart, "Report view (chart, codes, patients, duplicates)")
	cmd.Flags().StringVar(&format, "format", string(export.FormatCSV), "Output format (csv, json, parquet)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default stdout)")
	return cmd
}

// runBatch builds a service from configuration, applies goal flags and ingests
// the named files. cleanup releases the stores.
func runBatch(ctx context.Context, flags *batchFlags, paths []string, logOut io.Writer) (*session.Service, *session.IngestSummary, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	logger := newLogger(cfg, logOut)

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	svc, err := newService(cfg, st, logger)
	if err != nil {
		st.Close()
		return nil, nil, nil, err
	}

	cat, err := loadCatalogFile(flags.catalog)
	if err != nil {
		st.Close()
		return nil, nil, nil, err
	}
	if err := applyGoalFlags(ctx, svc, flags, cat, logger); err != nil {
		st.Close()
		return nil, nil, nil, err
	}

	summary, err := svc.IngestWithCatalog(ctx, filesFromPaths(paths), cat)
	if err != nil {
		st.Close()
		return nil, nil, nil, err
	}
	if flags.persist && !svc.SaveSession(ctx) {
		st.Close()
		return nil, nil, nil, fmt.Errorf("save session failed")
	}
	return svc, summary, st.Close, nil
}

// applyGoalFlags picks goals from --goals, then --all-active, then the saved
// configuration.
func applyGoalFlags(ctx context.Context, svc *session.Service, flags *batchFlags, cat *catalog.Catalog, logger zerolog.Logger) error {
	switch {
	case flags.goals != "":
		goals, err := readGoalsFile(flags.goals)
		if err != nil {
			return err
		}
		if err := svc.SetGoals(goals); err != nil {
			return err
		}
	case flags.allActive:
		goals := compliance.DefaultGoals(cat.ServiceTypes())
		for i := range goals {
			goals[i].Active = true
		}
		if err := svc.SetGoals(goals); err != nil {
			return err
		}
	default:
		if !svc.LoadConfig(ctx) {
			logger.Warn().Msg("no saved goals; chart will be empty")
		}
	}
	if flags.scale != 0 {
		return svc.SetScale(flags.scale)
	}
	return nil
}

func readGoalsFile(path string) ([]compliance.Goal, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read goals: %w", err)
	}
	var goals []compliance.Goal
	if err := yaml.Unmarshal(raw, &goals); err != nil {
		return nil, fmt.Errorf("parse goals: %w", err)
	}
	return goals, nil
}

func loadCatalogFile(path string) (*catalog.Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	text, err := textdecode.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return catalog.Load(catalog.NewCSVRowReader(strings.NewReader(text)))
}

func filesFromPaths(paths []string) []ingest.File {
	files := make([]ingest.File, 0, len(paths))
	for _, p := range paths {
		files = append(files, ingest.File{
			Name: filepath.Base(p),
			Open: func() (io.ReadCloser, error) { return os.Open(p) },
		})
	}
	return files
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printSummary(out io.Writer, summary *session.IngestSummary, rep *compliance.Report, top int) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Files\t%d\n", summary.Stats.Files)
	fmt.Fprintf(tw, "Records\t%d\n", summary.Records)
	fmt.Fprintf(tw, "Patients\t%d\n", summary.Patients)
	fmt.Fprintf(tw, "Skipped lines\t%d\n", summary.Stats.Skipped)
	fmt.Fprintf(tw, "Duplicate groups\t%d (%d extra records)\n", rep.Stats.DuplicateGroups, rep.Stats.DuplicateRecords)
	fmt.Fprintln(tw)

	if len(rep.Chart) > 0 {
		fmt.Fprintln(tw, "SERVICE TYPE\tEXECUTED\tTARGET\tPERCENT\tSTATUS")
		for _, p := range rep.Chart {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d%%\t%s\n", p.ServiceType, p.Executed, p.Target, p.Percent, p.Color)
		}
		fmt.Fprintln(tw)
	}

	fmt.Fprintln(tw, "CODE\tNAME\tCOUNT\tTOP PATIENT")
	for i, r := range rep.CodeRanking {
		if i >= top {
			break
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s (%d)\n", r.ServiceCode, r.ServiceName, r.Count, r.TopPatientID, r.TopPatientCount)
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "PATIENT\tNAME\tCOUNT")
	for i, r := range rep.PatientRanking {
		if i >= top {
			break
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\n", r.PatientID, r.Demographics.FullName, r.Count)
	}
	return tw.Flush()
}
