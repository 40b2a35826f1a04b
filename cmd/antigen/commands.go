package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mkoziy/antigen/sequencing/internal/migrations"
	"github.com/mkoziy/antigen/sequencing/internal/pipeline"
	"github.com/mkoziy/antigen/sequencing/internal/repositories"
	"github.com/mkoziy/antigen/sequencing/internal/search"
)

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := c.openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			return migrations.RunMigrations(cmd.Context(), db, c.logger.Named("migrations"))
		},
	}
}

func (c *cli) seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "seed <fixtures.yaml>",
		Short:   "Insert projects, ELISA plates, nanobodies and sequencing runs from YAML",
		Example: "  antigen seed testdata/fixtures.yaml",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			f, err := repositories.LoadFixtures(data)
			if err != nil {
				return err
			}
			db, err := c.openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			if err := repositories.InsertFixtures(cmd.Context(), db, f); err != nil {
				return err
			}
			c.logger.Info("fixtures inserted",
				zap.String("file", args[0]),
				zap.Int("sequencing_runs", len(f.SequencingRuns)),
			)
			return nil
		},
	}
}

func (c *cli) uploadCmd() *cobra.Command {
	var addedBy string
	cmd := &cobra.Command{
		Use:   "upload <run> <page> <archive.zip>",
		Short: "Validate, align and store a results archive for one run page",
		Long: `Checks the archive against the wells sent on the page, submits the
sequences to IMGT/V-QUEST and stores the archive with the alignment results.
An earlier upload of the same page is replaced.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := parseID("run", args[0])
			if err != nil {
				return err
			}
			page, err := parseID("page", args[1])
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[2])
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				out, err := a.svc.UploadResults(ctx, pipeline.Upload{
					RunID:    runID,
					Page:     int(page),
					Filename: filepath.Base(args[2]),
					Data:     data,
					AddedBy:  addedBy,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"sequencing_run":  out.Results.SequencingRunID,
					"seq":             out.Results.Seq,
					"version":         out.Results.Version,
					"well_pos_offset": out.Offset,
					"nanobodies":      out.Nanobodies,
					"duplicates":      out.Duplicates,
					"replaced":        out.Replaced,
				})
			})
		},
	}
	cmd.Flags().StringVar(&addedBy, "added-by", os.Getenv("USER"), "user recorded on the results")
	return cmd
}

func (c *cli) resultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "results <run>",
		Short: "Print the alignment results of a sequencing run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := parseID("run", args[0])
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				records, err := a.svc.RunResults(ctx, runID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), records)
			})
		},
	}
}

func (c *cli) searchCDR3Cmd() *cobra.Command {
	return &cobra.Command{
		Use:     "search-cdr3 <query>",
		Short:   "Find stored sequences whose CDR3 contains query",
		Example: "  antigen search-cdr3 CARDY",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				matches, err := a.svc.SearchCDR3(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), matches)
			})
		},
	}
}

func (c *cli) blastCmd() *cobra.Command {
	var queryType string
	cmd := &cobra.Command{
		Use:   "blast <run>",
		Short: "Search the sequences of a run against every stored run with blastp",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := parseID("run", args[0])
			if err != nil {
				return err
			}
			mode, err := search.ParseMode(queryType)
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				hits, err := a.svc.Blast(ctx, runID, mode)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), hits)
			})
		},
	}
	cmd.Flags().StringVar(&queryType, "query-type", string(search.ModeFull), "full or cdr3")
	return cmd
}

func (c *cli) fastaCmd() *cobra.Command {
	var (
		queryType string
		run       int64
		output    string
	)
	cmd := &cobra.Command{
		Use:   "fasta",
		Short: "Export stored sequences as FASTA",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := search.ParseMode(queryType)
			if err != nil {
				return err
			}
			var runID *int64
			if cmd.Flags().Changed("run") {
				runID = &run
			}
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				data, err := a.svc.CorpusFASTA(ctx, runID, mode)
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), output, data)
			})
		},
	}
	cmd.Flags().StringVar(&queryType, "query-type", string(search.ModeFull), "full, cdr3 or cdr3_unagg")
	cmd.Flags().Int64Var(&run, "run", 0, "export only this sequencing run")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	return cmd
}

func (c *cli) plateLayoutCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "plate-layout <run> <page>",
		Short: "Print the submission sheet of a run page as TSV",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, err := parseID("run", args[0])
			if err != nil {
				return err
			}
			page, err := parseID("page", args[1])
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				tsv, err := a.svc.PlateLayoutTSV(ctx, runID, int(page))
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), output, []byte(tsv))
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	return cmd
}

func parseID(name, raw string) (int64, error) {
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer, got %q", name, raw)
	}
	return v, nil
}

func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" {
		_, err := stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
