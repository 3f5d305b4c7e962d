package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/ydb/internal/journal"
	"github.com/roach88/ydb/internal/metrics"
	"github.com/roach88/ydb/internal/ydb"
	"github.com/roach88/ydb/internal/ynode"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	StoreOptions

	Watch       bool
	ChangeLog   bool
	Summary     bool
	RecordTo    string
	MetricsAddr string
	Interval    time.Duration
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{StoreOptions: StoreOptions{RootOptions: rootOpts}}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a store until interrupted",
		Long: `Open a store, load its files, connect it and serve its connections
until interrupted.

Example:
  ydb serve --name top --role pub --file base.yaml --watch
  ydb serve --name top --role sub --writable --change-log
  ydb serve --name top --role pub --record-to ./top.db --metrics-addr :9100`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.resolve(cmd); err != nil {
				return err
			}
			return runServe(cmd, opts)
		},
	}

	addStoreFlags(cmd, &opts.StoreOptions)
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "reload --file files when they change")
	cmd.Flags().BoolVarP(&opts.ChangeLog, "change-log", "c", false, "print every change applied to the store")
	cmd.Flags().BoolVarP(&opts.Summary, "summary", "s", false, "print the tree on exit")
	cmd.Flags().StringVar(&opts.RecordTo, "record-to", "", "record every change to a journal database")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "upper bound of one poll (default: --timeout)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	var storeOpts []ydb.Option
	if opts.RecordTo != "" {
		j, err := journal.Open(opts.RecordTo)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer func() {
			if closeErr := j.Close(); closeErr != nil {
				slog.Error("error closing journal", "error", closeErr)
			}
		}()
		slog.Info("recording changes", "journal", opts.RecordTo)
		storeOpts = append(storeOpts, ydb.WithJournal(j))
	}

	out := cmd.OutOrStdout()
	s := ydb.Open(opts.Name, append([]ydb.Option{
		ydb.WithTimeout(time.Duration(opts.Timeout)),
		ydb.WithLogger(slog.Default()),
	}, storeOpts...)...)
	defer s.Close()

	if opts.ChangeLog {
		if err := s.AddWriteHook("/", func(c ynode.Change) {
			fmt.Fprintln(out, changeLine(c))
		}, false); err != nil {
			return storeError("failed to add change log", err)
		}
	}
	for _, path := range opts.Files {
		if err := loadFile(s, path); err != nil {
			return err
		}
	}
	if err := opts.connect(s); err != nil {
		return err
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Run(ctx, opts.Interval)
	})
	if opts.Watch && len(opts.Files) > 0 {
		g.Go(func() error {
			return watchFiles(ctx, opts.Files, defaultDebounce, func(path string) {
				s.Post(func(s *ydb.Store) {
					slog.Info("reloading file", "store", s.Name(), "file", path)
					if err := loadFile(s, path); err != nil {
						slog.Warn("reload failed", "store", s.Name(), "file", path, "error", err)
					}
				})
			})
		})
	}
	if opts.MetricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(ctx, opts.MetricsAddr)
		})
	}

	slog.Info("store started", "name", opts.Name, "role", opts.Role, "addrs", opts.Addrs)
	err := g.Wait()
	if opts.Summary {
		if _, dumpErr := s.Dump(out); dumpErr != nil {
			slog.Error("error printing summary", "error", dumpErr)
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return storeError("store stopped", err)
	}
	slog.Info("store stopped gracefully", "name", opts.Name)
	return nil
}

// serveMetrics runs the prometheus endpoint until ctx is done.
func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// changeLine renders one change for --change-log, e.g.
// "replace /system/hostname: old-pc -> my-pc".
func changeLine(c ynode.Change) string {
	var b strings.Builder
	b.WriteString(c.Op.String())
	b.WriteByte(' ')
	b.WriteString(c.Path)
	switch {
	case c.Op == ynode.OpReplace && (c.Old != "" || c.New != ""):
		fmt.Fprintf(&b, ": %s -> %s", c.Old, c.New)
	case c.Op == ynode.OpCreate && c.New != "":
		fmt.Fprintf(&b, ": %s", c.New)
	case c.Op == ynode.OpDelete && c.Old != "":
		fmt.Fprintf(&b, ": %s", c.Old)
	}
	return b.String()
}
