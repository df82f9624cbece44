package main

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"refinerycore/internal/core"
	"refinerycore/internal/dataset"
	"refinerycore/internal/report"
	"refinerycore/internal/solver"
	"refinerycore/pkg/domain"
)

const allCases = "all"

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "refinery",
		Short:         "Assemble and solve refinery planning models",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup()
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "path to a YAML configuration file")
	pf.StringVar(&a.logLevel, "log-level", "", "override the configured log level")
	pf.StringVar(&a.tracePath, "trace", "", "write operation spans as JSON lines to this file")
	pf.StringVar(&a.metricsPath, "metrics", "", "write Prometheus metrics in text format to this file on exit")

	root.AddCommand(
		newBuildCmd(a),
		newSolveCmd(a),
		newImportCmd(a),
		newExportCmd(a),
		newCasesCmd(a),
		newReportsCmd(a),
	)
	return root
}

func newBuildCmd(a *app) *cobra.Command {
	var (
		caseID string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Assemble the model of a case and print its summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			ids := []string{caseID}
			if caseID == allCases {
				ids = core.SampleCases
			}
			builds := make([]*core.Build, len(ids))
			g, gctx := errgroup.WithContext(ctx)
			for i, id := range ids {
				svc, err := a.service(ctx)
				if err != nil {
					return err
				}
				g.Go(func() error {
					b, err := svc.Build(gctx, id)
					if err != nil {
						return fmt.Errorf("%s: %w", id, err)
					}
					builds[i] = b
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			if asJSON {
				summaries := make([]core.Summary, len(builds))
				for i, b := range builds {
					summaries[i] = b.Summary()
				}
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(summaries)
			}
			for _, b := range builds {
				if _, err := b.Summary().WriteTo(a.stdout); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&caseID, "case", allCases, "case identifier, or all to build every variant concurrently")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print summaries as JSON")
	return cmd
}

func newSolveCmd(a *app) *cobra.Command {
	var (
		caseID    string
		name      string
		timeLimit string
		gap       float64
		top       int
		noSave    bool
		opts      map[string]string
	)
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Build a case, solve it and store the solution report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := solver.Config{
				Solver:      a.cfg.Solver.Name,
				TimeLimit:   a.cfg.Solver.TimeLimit,
				RelativeGap: a.cfg.Solver.Gap,
			}
			if cmd.Flags().Changed("solver") {
				cfg.Solver = name
			}
			if cmd.Flags().Changed("time-limit") {
				d, err := parseTimeLimit(timeLimit)
				if err != nil {
					return err
				}
				cfg.TimeLimit = d
			}
			if cmd.Flags().Changed("gap") {
				cfg.RelativeGap = gap
			}
			if len(a.cfg.Solver.Options) > 0 || len(opts) > 0 {
				cfg.Options = make(map[string]string, len(a.cfg.Solver.Options)+len(opts))
				maps.Copy(cfg.Options, a.cfg.Solver.Options)
				maps.Copy(cfg.Options, opts)
			}
			svc, err := a.service(ctx)
			if err != nil {
				return err
			}
			b, res, err := svc.Run(ctx, caseID, cfg)
			if err != nil {
				return err
			}
			r := report.New(uuid.New(), b, cfg, res, a.now(), report.DefaultTolerance)
			if err := r.WriteText(a.stdout, top); err != nil {
				return err
			}
			if !noSave {
				store, err := a.artifactStore(ctx)
				if err != nil {
					return err
				}
				info, err := report.Save(ctx, store, r)
				if err != nil {
					return fmt.Errorf("save report: %w", err)
				}
				fmt.Fprintf(a.stdout, "report %s\n", info.Key)
			}
			if code := terminationCode(res.Termination); code != exitOK {
				return &exitError{code: code}
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&caseID, "case", "", "case identifier")
	f.StringVar(&name, "solver", "", "solver identifier (default from configuration)")
	f.StringVar(&timeLimit, "time-limit", "", "wall-clock limit, as a duration or in seconds")
	f.Float64Var(&gap, "gap", 0, "relative optimality gap")
	f.IntVar(&top, "top", 20, "number of largest values to print")
	f.BoolVar(&noSave, "no-save", false, "do not store the solution report")
	f.StringToStringVar(&opts, "option", nil, "solver option as name=value, passed verbatim (repeatable)")
	_ = cmd.MarkFlagRequired("case")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	var samples []string
	cmd := &cobra.Command{
		Use:   "import [bundle files...]",
		Short: "Store case bundles or the built-in sample cases in the case store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if len(args) == 0 && len(samples) == 0 {
				return fmt.Errorf("nothing to import: pass bundle files or --sample")
			}
			bundles := make([]dataset.Bundle, 0, len(args)+len(samples))
			for _, id := range samples {
				if _, err := domain.LookupVariant(id); err != nil {
					return err
				}
				bundles = append(bundles, *dataset.SampleBundle(id))
			}
			for _, path := range args {
				b, err := readBundle(path)
				if err != nil {
					return err
				}
				bundles = append(bundles, b)
			}
			store, err := a.caseStore(ctx)
			if err != nil {
				return err
			}
			for _, b := range bundles {
				if err := store.Save(ctx, b); err != nil {
					return fmt.Errorf("import %s: %w", b.Case, err)
				}
				fmt.Fprintf(a.stdout, "imported %s (%d sets, %d parameters)\n", b.Case, len(b.Sets), len(b.Params))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&samples, "sample", nil, "built-in sample case to import (repeatable)")
	return cmd
}

func readBundle(path string) (dataset.Bundle, error) {
	format, err := dataset.FormatFromPath(path)
	if err != nil {
		return dataset.Bundle{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return dataset.Bundle{}, err
	}
	defer f.Close()
	b, err := dataset.Decode(f, format)
	if err != nil {
		return dataset.Bundle{}, fmt.Errorf("%s: %w", path, err)
	}
	if b.Case == "" {
		return dataset.Bundle{}, fmt.Errorf("%s: bundle has no case identifier", path)
	}
	return b, nil
}

func newExportCmd(a *app) *cobra.Command {
	var (
		caseID   string
		format   string
		output   string
		artifact bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the assembled model of a case in pip, json or yaml form",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			svc, err := a.service(ctx)
			if err != nil {
				return err
			}
			b, err := svc.Build(ctx, caseID)
			if err != nil {
				return err
			}
			switch {
			case artifact:
				store, err := a.artifactStore(ctx)
				if err != nil {
					return err
				}
				info, err := report.SaveModel(ctx, store, b, uuid.NewString(), f)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "model %s\n", info.Key)
				return nil
			case output != "" && output != "-":
				out, err := os.Create(output)
				if err != nil {
					return err
				}
				if err := report.Export(out, b.Model, f); err != nil {
					out.Close()
					return err
				}
				return out.Close()
			default:
				return report.Export(a.stdout, b.Model, f)
			}
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&caseID, "case", "", "case identifier")
	fl.StringVar(&format, "format", string(report.FormatPIP), "pip, json or yaml")
	fl.StringVarP(&output, "output", "o", "", "output file (default stdout)")
	fl.BoolVar(&artifact, "artifact", false, "store the export in the artifact store instead")
	_ = cmd.MarkFlagRequired("case")
	return cmd
}

func newCasesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cases",
		Short: "List the cases held by the case store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.caseStore(cmd.Context())
			if err != nil {
				return err
			}
			ids, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(a.stdout, id)
			}
			return nil
		},
	}
}

func newReportsCmd(a *app) *cobra.Command {
	var (
		caseID string
		show   string
		top    int
	)
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "List stored solution reports or print one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := a.artifactStore(ctx)
			if err != nil {
				return err
			}
			if show != "" {
				r, err := report.Load(ctx, store, show)
				if err != nil {
					return err
				}
				return r.WriteText(a.stdout, top)
			}
			infos, err := report.List(ctx, store, caseID)
			if err != nil {
				return err
			}
			for _, info := range infos {
				fmt.Fprintf(a.stdout, "%s\t%s\n", info.Key, info.Metadata["termination"])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&caseID, "case", "", "only list reports of this case")
	cmd.Flags().StringVar(&show, "show", "", "print the report stored under this key")
	cmd.Flags().IntVar(&top, "top", 20, "number of largest values to print")
	return cmd
}

// parseTimeLimit accepts Go durations and plain seconds.
func parseTimeLimit(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, domain.ConfigError{Field: "time_limit", Value: s, Reason: "not a duration"}
	}
	return time.Duration(secs * float64(time.Second)), nil
}
