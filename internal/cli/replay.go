package cli

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/ydb/internal/journal"
	"github.com/roach88/ydb/internal/ydb"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	StoreOptions

	From     string
	Source   string // journal store to replay; defaults to --name
	Interval time.Duration
	Summary  bool
}

// ReplayResult holds the outcome of a replay.
type ReplayResult struct {
	Store   string `json:"store"`
	Merges  int    `json:"merges"`
	Deletes int    `json:"deletes"`
	Tree    string `json:"tree,omitempty"`
}

func (r ReplayResult) String() string {
	s := fmt.Sprintf("replayed %d change(s) of %s: %d merge(s), %d delete(s)",
		r.Merges+r.Deletes, r.Store, r.Merges, r.Deletes)
	if r.Tree != "" {
		s += "\n" + r.Tree
	}
	return s
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{StoreOptions: StoreOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay recorded changes into a store",
		Long: `Apply the changes recorded with serve --record-to to a store, in the
order they were recorded. Connected peers receive every change as it is
applied; --interval paces the changes and serves the connections between
them.

Exit codes:
  0 - All changes applied
  1 - A change could not be applied
  2 - Command error (journal not found, etc.)

Examples:
  ydb replay --from ./top.db --name top --role loc --summary
  ydb replay --from ./top.db --name top --role pub --interval 500ms`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.resolve(cmd); err != nil {
				return err
			}
			return runReplay(cmd, opts)
		},
	}

	addStoreFlags(cmd, &opts.StoreOptions)
	cmd.Flags().StringVar(&opts.From, "from", "", "journal database to replay (required)")
	_ = cmd.MarkFlagRequired("from")
	cmd.Flags().StringVar(&opts.Source, "source", "", "recorded store to replay (default: --name)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "pause between changes")
	cmd.Flags().BoolVarP(&opts.Summary, "summary", "s", false, "print the tree after the replay")

	return cmd
}

func runReplay(cmd *cobra.Command, opts *ReplayOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := newFormatter(cmd, opts.RootOptions)

	// journal.Open creates missing databases; replaying one is a mistake
	if _, err := os.Stat(opts.From); err != nil {
		return WrapExitError(ExitCommandError, "journal not found", err)
	}
	j, err := journal.Open(opts.From)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	source := opts.Source
	if source == "" {
		source = opts.Name
	}
	entries, err := j.Entries(ctx, source)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}
	slog.Info("replaying", "journal", opts.From, "source", source, "entries", len(entries))

	s, err := opts.openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	result := ReplayResult{Store: source}
	for i, e := range entries {
		if i > 0 && opts.Interval > 0 {
			if err := pause(ctx, s, opts.Interval); err != nil {
				return WrapExitError(ExitFailure, "replay interrupted", err)
			}
		}
		if err := applyEntry(s, e); err != nil {
			return storeError(fmt.Sprintf("failed to apply change %d", e.Seq), err)
		}
		switch e.Op {
		case "merge":
			result.Merges++
		case "delete":
			result.Deletes++
		}
		out.VerboseLog("applied %s #%d", e.Op, e.Seq)
	}

	if opts.Summary {
		var buf bytes.Buffer
		if _, err := s.Dump(&buf); err != nil {
			return storeError("dump failed", err)
		}
		result.Tree = buf.String()
	}
	return out.Success(result)
}

// applyEntry applies one recorded change to s.
func applyEntry(s *ydb.Store, e journal.Entry) error {
	switch e.Op {
	case "merge":
		return s.Write(e.Body)
	case "delete":
		return s.Delete(e.Body)
	default:
		return fmt.Errorf("unknown op %q", e.Op)
	}
}

// pause serves the connections of s for d. A store without connections
// just sleeps.
func pause(ctx context.Context, s *ydb.Store, d time.Duration) error {
	deadline := time.Now().Add(d)
	for {
		left := time.Until(deadline)
		if left <= 0 {
			return nil
		}
		err := s.Serve(ctx, left)
		switch {
		case ydb.IsCode(err, ydb.CodeNoConnection):
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(left):
				return nil
			}
		case err != nil:
			return err
		}
	}
}
