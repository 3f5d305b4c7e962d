package cli

import (
	"bytes"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/ydb/internal/ydb"
)

// readResult is the output of the read command.
type readResult struct {
	Path  string `json:"path"`
	Value string `json:"value"`
}

func (r readResult) String() string { return r.Value }

// storeCommand builds a one-shot command: it opens the configured store,
// runs fn against it and closes it.
func storeCommand(rootOpts *RootOptions, use, short, long string, args cobra.PositionalArgs,
	prepare func(*StoreOptions), fn func(*OutputFormatter, *ydb.Store, []string) error) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		Long:          long,
		Args:          args,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.resolve(cmd); err != nil {
				return err
			}
			if prepare != nil {
				prepare(opts)
			}
			s, err := opts.openStore()
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := s.Close(); closeErr != nil {
					slog.Error("error closing store", "store", opts.Name, "error", closeErr)
				}
			}()

			out := newFormatter(cmd, rootOpts)
			if err := fn(out, s, args); err != nil {
				if out.Format == "json" {
					_ = out.StoreError(err)
				}
				return err
			}
			return nil
		},
	}
	addStoreFlags(cmd, opts)
	return cmd
}

// writable turns on --writable so the change reaches the publisher.
func writable(o *StoreOptions) { o.Writable = true }

// NewReadCommand creates the read command.
func NewReadCommand(rootOpts *RootOptions) *cobra.Command {
	return storeCommand(rootOpts, "read <path>", "Print the value at a path",
		`Print the scalar value at a path.

Example:
  ydb read --name top /system/hostname
  ydb read --role loc --file config.yaml /interfaces/eth0/mtu`,
		cobra.ExactArgs(1), nil,
		func(out *OutputFormatter, s *ydb.Store, args []string) error {
			v, err := s.PathRead(args[0])
			if err != nil {
				return storeError("read failed", err)
			}
			return out.Success(readResult{Path: args[0], Value: v})
		})
}

// NewPrintCommand creates the print command.
func NewPrintCommand(rootOpts *RootOptions) *cobra.Command {
	return storeCommand(rootOpts, "print <path>", "Print the subtree at a path as YAML",
		`Print the subtree at a path as YAML, nested under its ancestor keys.

Example:
  ydb print --name top /system`,
		cobra.ExactArgs(1), nil,
		func(out *OutputFormatter, s *ydb.Store, args []string) error {
			var buf bytes.Buffer
			if _, err := s.PathFprint(&buf, args[0]); err != nil {
				return storeError("print failed", err)
			}
			return out.Text(buf.String())
		})
}

// NewWriteCommand creates the write command.
func NewWriteCommand(rootOpts *RootOptions) *cobra.Command {
	return storeCommand(rootOpts, "write <path=value>...", "Write values at paths",
		`Write one or more values and publish them. Implies --writable.

Example:
  ydb write --name top /system/hostname=my-pc /system/domain=lan`,
		cobra.MinimumNArgs(1), writable,
		func(out *OutputFormatter, s *ydb.Store, args []string) error {
			for _, arg := range args {
				if err := s.PathWrite(arg); err != nil {
					return storeError("write failed", err)
				}
				out.VerboseLog("wrote %s", arg)
			}
			return out.Done()
		})
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return storeCommand(rootOpts, "delete <path>...", "Delete paths",
		`Delete one or more paths and publish the deletion. Implies --writable.

Example:
  ydb delete --name top /system/domain`,
		cobra.MinimumNArgs(1), writable,
		func(out *OutputFormatter, s *ydb.Store, args []string) error {
			for _, arg := range args {
				if err := s.PathDelete(arg); err != nil {
					return storeError("delete failed", err)
				}
				out.VerboseLog("deleted %s", arg)
			}
			return out.Done()
		})
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return storeCommand(rootOpts, "sync [path]", "Fetch a subtree from peers and print it",
		`Ask every peer for the subtree at path (the whole tree when omitted),
merge the answers and print the result.

Example:
  ydb sync --name top --unsubscribe /status`,
		cobra.MaximumNArgs(1), nil,
		func(out *OutputFormatter, s *ydb.Store, args []string) error {
			var buf bytes.Buffer
			if len(args) == 0 {
				if err := s.Sync(""); err != nil {
					return storeError("sync failed", err)
				}
				if _, err := s.Dump(&buf); err != nil {
					return storeError("dump failed", err)
				}
				return out.Text(buf.String())
			}
			if err := s.PathSync(args[0]); err != nil {
				return storeError("sync failed", err)
			}
			if _, err := s.PathFprint(&buf, args[0]); err != nil {
				return storeError("print failed", err)
			}
			return out.Text(buf.String())
		})
}

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	return storeCommand(rootOpts, "dump", "Print the whole tree as YAML",
		`Print the whole tree of the store as YAML.

Example:
  ydb dump --name top
  ydb dump --role loc --file a.yaml --file b.yaml`,
		cobra.NoArgs, nil,
		func(out *OutputFormatter, s *ydb.Store, _ []string) error {
			var buf bytes.Buffer
			if _, err := s.Dump(&buf); err != nil {
				return storeError("dump failed", err)
			}
			return out.Text(buf.String())
		})
}
