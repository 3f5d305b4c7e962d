package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/ydb/internal/ydb"
)

// Roles accepted by --role. loc keeps the store local and opens no
// connection.
const (
	RolePublisher  = "pub"
	RoleSubscriber = "sub"
	RoleLocal      = "loc"
)

// Config is the store setup shared by every command. It can be loaded
// from a YAML file with --config; flags given on the command line win.
type Config struct {
	Name           string   `yaml:"name"`
	Role           string   `yaml:"role"`
	Addrs          []string `yaml:"addr"`
	Writable       bool     `yaml:"writable"`
	Unsubscribe    bool     `yaml:"unsubscribe"`
	SyncBeforeRead bool     `yaml:"sync-before-read"`
	Timeout        Duration `yaml:"timeout"`
	Files          []string `yaml:"file"`
}

// Duration decodes "500ms", "3s" or a bare number of milliseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := parseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Duration(v)
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if strings.Trim(s, "0123456789") == "" {
		s += "ms"
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", s, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("invalid timeout %q: negative", s)
	}
	return v, nil
}

// StoreOptions holds the store flags of a command.
type StoreOptions struct {
	*RootOptions
	Config

	ConfigFile string
}

// addStoreFlags registers the flags shared by every store command.
func addStoreFlags(cmd *cobra.Command, opts *StoreOptions) {
	f := cmd.Flags()
	f.StringVarP(&opts.Name, "name", "n", "top", "store name")
	f.StringVarP(&opts.Role, "role", "r", RoleSubscriber, "connection role (pub|sub|loc)")
	f.StringArrayVarP(&opts.Addrs, "addr", "a", nil, "connection address (repeatable; default uss://NAME)")
	f.BoolVarP(&opts.Writable, "writable", "w", false, "send local changes to the publisher")
	f.BoolVarP(&opts.Unsubscribe, "unsubscribe", "u", false, "do not receive published changes")
	f.BoolVarP(&opts.SyncBeforeRead, "sync-before-read", "S", false, "fetch from peers before every read")
	f.DurationVarP((*time.Duration)(&opts.Timeout), "timeout", "t", ydb.DefaultTimeout, "request timeout")
	f.StringArrayVarP(&opts.Files, "file", "f", nil, "YAML file loaded into the store (repeatable)")
	f.StringVar(&opts.ConfigFile, "config", "", "YAML config file")
}

// resolve applies the config file under the flags the user set explicitly
// and validates the result.
func (o *StoreOptions) resolve(cmd *cobra.Command) error {
	if o.ConfigFile != "" {
		data, err := os.ReadFile(o.ConfigFile)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read config", err)
		}
		var file Config
		if err := yaml.Unmarshal(data, &file); err != nil {
			return WrapExitError(ExitCommandError, "failed to parse config", err)
		}
		o.merge(cmd, file)
	}
	switch o.Role {
	case RolePublisher, RoleSubscriber, RoleLocal:
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid role %q: must be one of pub, sub, loc", o.Role))
	}
	if o.Name == "" {
		return NewExitError(ExitCommandError, "store name must not be empty")
	}
	return nil
}

// merge copies the values of file for every flag left at its default.
func (o *StoreOptions) merge(cmd *cobra.Command, file Config) {
	changed := cmd.Flags().Changed
	if !changed("name") && file.Name != "" {
		o.Name = file.Name
	}
	if !changed("role") && file.Role != "" {
		o.Role = file.Role
	}
	if !changed("addr") && len(file.Addrs) > 0 {
		o.Addrs = file.Addrs
	}
	if !changed("writable") && file.Writable {
		o.Writable = true
	}
	if !changed("unsubscribe") && file.Unsubscribe {
		o.Unsubscribe = true
	}
	if !changed("sync-before-read") && file.SyncBeforeRead {
		o.SyncBeforeRead = true
	}
	if !changed("timeout") && file.Timeout > 0 {
		o.Timeout = file.Timeout
	}
	if !changed("file") && len(file.Files) > 0 {
		o.Files = file.Files
	}
}

// connFlags renders the connection flag string of the options, e.g.
// "sub:writable:sync-before-read".
func (o *StoreOptions) connFlags() string {
	flags := []string{o.Role}
	if o.Writable {
		flags = append(flags, "writable")
	}
	if o.Unsubscribe {
		flags = append(flags, "unsubscribe")
	}
	if o.SyncBeforeRead {
		flags = append(flags, "sync-before-read")
	}
	return strings.Join(flags, ":")
}

// openStore opens the configured store, loads its files and connects it.
// extra options are applied after the defaults.
func (o *StoreOptions) openStore(extra ...ydb.Option) (*ydb.Store, error) {
	opts := []ydb.Option{
		ydb.WithTimeout(time.Duration(o.Timeout)),
		ydb.WithLogger(slog.Default()),
	}
	s := ydb.Open(o.Name, append(opts, extra...)...)

	for _, path := range o.Files {
		if err := loadFile(s, path); err != nil {
			s.Close()
			return nil, err
		}
	}
	if err := o.connect(s); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// connect opens every configured address. A local store opens none.
func (o *StoreOptions) connect(s *ydb.Store) error {
	if o.Role == RoleLocal {
		return nil
	}
	addrs := o.Addrs
	if len(addrs) == 0 {
		addrs = []string{""}
	}
	flags := o.connFlags()
	for _, addr := range addrs {
		slog.Debug("connecting", "store", o.Name, "addr", addr, "flags", flags)
		if err := s.Connect(addr, flags); err != nil {
			return storeError(fmt.Sprintf("failed to connect %q", addr), err)
		}
	}
	return nil
}

// loadFile merges a YAML file into the store.
func loadFile(s *ydb.Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read file", err)
	}
	if err := s.Write(string(data)); err != nil {
		return storeError(fmt.Sprintf("failed to load %s", path), err)
	}
	return nil
}
