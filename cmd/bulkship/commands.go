package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bft-labs/bulkship/internal/inbox"
	"github.com/bft-labs/bulkship/pkg/batch"
	"github.com/bft-labs/bulkship/pkg/codec"
	"github.com/bft-labs/bulkship/pkg/log"
	"github.com/bft-labs/bulkship/pkg/ship"
	"github.com/bft-labs/bulkship/pkg/source"
)

// fileReport is printed once per input file.
type fileReport struct {
	File string `json:"file"`
	ship.RunReport
}

func (a *app) sendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send FILE...",
		Short: "Ship the records in one or more files",
		Long: `Ship the records in one or more .jsonl, .ndjson or .json files (optionally
gzip-compressed). Use "-" to read JSON Lines from stdin.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd); err != nil {
				return err
			}
			stop := a.serveMetrics()
			defer stop()

			s, err := a.newShipper()
			if err != nil {
				return err
			}
			ctx, cancel := a.signalContext()
			defer cancel()

			var total ship.RunReport
			for _, path := range args {
				name, records, err := a.readInput(ctx, path)
				if err != nil {
					return err
				}
				report, runErr := s.Run(ctx, name, records)
				if err := printJSON(cmd.OutOrStdout(), fileReport{File: path, RunReport: report}); err != nil {
					return err
				}
				total.Add(report)
				if runErr != nil {
					return runErr
				}
			}
			return outcome(total, nil)
		},
	}
	cmd.Flags().StringVar(&a.cfg.Source, "source", a.cfg.Source, "source name used in batch IDs (default: file name)")
	return cmd
}

func (a *app) readInput(ctx context.Context, path string) (string, []batch.Record, error) {
	name := a.cfg.Source
	if path == "-" {
		if name == "" {
			name = "stdin"
		}
		r, err := source.NewReader(os.Stdin, source.FormatJSONLines, false)
		if err != nil {
			return "", nil, err
		}
		defer r.Close()
		records, err := source.ReadAll(ctx, r)
		return name, records, err
	}
	if name == "" {
		name = source.Name(path)
	}
	records, err := source.ReadFile(ctx, path)
	if err != nil {
		return "", nil, fmt.Errorf("read %s: %w", path, err)
	}
	return name, records, nil
}

func (a *app) replayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Resend batches persisted in the failure directory",
		Long: `Resend every batch persisted in the failure directory. Documents whose
records were all delivered (or persisted again under a new name) are removed.
Batches persisted because a record could not be encoded are left untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd); err != nil {
				return err
			}
			stop := a.serveMetrics()
			defer stop()

			s, err := a.newShipper()
			if err != nil {
				return err
			}
			ctx, cancel := a.signalContext()
			defer cancel()

			report, err := s.Replay(ctx)
			if perr := printJSON(cmd.OutOrStdout(), report); perr != nil {
				return perr
			}
			return outcome(report, err)
		},
	}
}

func (a *app) watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Ship record files as they appear in a directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(cmd); err != nil {
				return err
			}
			if a.cfg.InboxDir == "" {
				return errors.New("watch: --inbox is required")
			}
			stop := a.serveMetrics()
			defer stop()

			s, err := a.newShipper()
			if err != nil {
				return err
			}
			ctx, cancel := a.signalContext()
			defer cancel()

			w := inbox.New(inbox.Config{
				Dir:      a.cfg.InboxDir,
				DoneDir:  a.cfg.DoneDir,
				Debounce: a.cfg.WatchDebounce,
				Source:   a.cfg.Source,
			}, s, a.logger)
			return w.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&a.cfg.InboxDir, "inbox", a.cfg.InboxDir, "directory to watch for record files")
	cmd.Flags().StringVar(&a.cfg.DoneDir, "done-dir", a.cfg.DoneDir, "where shipped files are moved (default: <inbox>/done)")
	cmd.Flags().DurationVar(&a.cfg.WatchDebounce, "debounce", a.cfg.WatchDebounce, "quiet period before a file is shipped")
	cmd.Flags().StringVar(&a.cfg.Source, "source", a.cfg.Source, "source name used in batch IDs (default: file name)")
	return cmd
}

// planSummary is the dry-run output of the plan command.
type planSummary struct {
	Source         string   `json:"source"`
	Records        int      `json:"records"`
	PlannedBatches int      `json:"plannedBatches"`
	Batches        int      `json:"batches"`
	SplitEvents    int      `json:"splitEvents"`
	LargestBytes   int      `json:"largestBatchBytes"`
	TotalBytes     int      `json:"totalBytes"`
	Oversized      []string `json:"oversized"`
	Unencodable    []string `json:"unencodable"`
}

func (a *app) planCmd() *cobra.Command {
	var verify bool
	cmd := &cobra.Command{
		Use:   "plan FILE",
		Short: "Show how a file would be batched, without sending anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// plan needs no endpoint or token
			if a.cfg.Endpoint == "" {
				a.cfg.Endpoint = "http://localhost"
			}
			if a.cfg.AuthToken == "" {
				a.cfg.AuthToken = "unused"
			}
			if err := a.setup(cmd); err != nil {
				return err
			}

			name, records, err := a.readInput(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			planned, err := batch.Plan(name, records, a.cfg.TargetBatchCount)
			if err != nil {
				return err
			}

			c := codec.New(a.cfg.CompressionLevel)
			sum := planSummary{
				Source:         name,
				Records:        len(records),
				PlannedBatches: len(planned),
				Oversized:      []string{},
				Unencodable:    []string{},
			}
			for _, b := range planned {
				res := batch.Fit(b, c.SizeOf, a.cfg.MaxPayloadBytes)
				sum.SplitEvents += res.Splits
				sum.Batches += len(res.Leaves)
				for _, o := range res.Oversized {
					sum.Oversized = append(sum.Oversized, o.ID.String())
				}
				for i, u := range res.Unencodable {
					sum.Unencodable = append(sum.Unencodable, u.ID.String())
					a.logger.Warn("unencodable record", log.Batch(u.ID.String()), log.Err(res.Errors[i]))
				}
				for _, leaf := range res.Leaves {
					body, err := c.Encode(leaf)
					if err != nil {
						return err
					}
					sum.TotalBytes += len(body)
					if len(body) > sum.LargestBytes {
						sum.LargestBytes = len(body)
					}
					if verify {
						decoded, err := codec.Decode(body)
						if err != nil {
							return fmt.Errorf("verify %s: %w", leaf.ID, err)
						}
						if len(decoded) != leaf.Size() {
							return fmt.Errorf("verify %s: decoded %d records, want %d", leaf.ID, len(decoded), leaf.Size())
						}
					}
				}
			}
			return printJSON(cmd.OutOrStdout(), sum)
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "decode every encoded batch and check its record count")
	cmd.Flags().StringVar(&a.cfg.Source, "source", a.cfg.Source, "source name used in batch IDs (default: file name)")
	return cmd
}
