package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rowjay/collection-backup/internal/app"
	"github.com/rowjay/collection-backup/internal/backup"
	"github.com/rowjay/collection-backup/internal/config"
	"github.com/rowjay/collection-backup/internal/logging"
	"github.com/rowjay/collection-backup/internal/storage"
	"github.com/rowjay/collection-backup/internal/store"
	"github.com/rowjay/collection-backup/internal/version"
)

type rootFlags struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
}

type overrideFlags struct {
	StoreDriver string
	SQLitePath  string
	StoragePath string
	Prefix      string
	TilesFile   string
	Compression string
}

func main() {
	root := &rootFlags{}
	overrides := &overrideFlags{}

	rootCmd := &cobra.Command{
		Use:           "cbu",
		Short:         "Collection backup and restore utility",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&root.ConfigPath, "config", "", "Path to config file (yaml/toml/json)")
	rootCmd.PersistentFlags().StringVar(&root.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&root.LogFormat, "log-format", "", "Log format (json, console)")

	rootCmd.PersistentFlags().StringVar(&overrides.StoreDriver, "store", "", "Record store driver (sqlite, memory)")
	rootCmd.PersistentFlags().StringVar(&overrides.SQLitePath, "sqlite-path", "", "SQLite store file path")
	rootCmd.PersistentFlags().StringVar(&overrides.StoragePath, "storage-path", "", "Directory backups are written to")
	rootCmd.PersistentFlags().StringVar(&overrides.Prefix, "prefix", "", "Key prefix inside the storage directory")
	rootCmd.PersistentFlags().StringVar(&overrides.TilesFile, "tiles-file", "", "YAML tile catalog replacing the built-in one")
	rootCmd.PersistentFlags().StringVar(&overrides.Compression, "compression", "", "Compression for plain exports (none/gzip/zstd)")

	rootCmd.AddCommand(newExportCmd(root, overrides))
	rootCmd.AddCommand(newPreviewCmd(root, overrides))
	rootCmd.AddCommand(newRestoreCmd(root, overrides))
	rootCmd.AddCommand(newListCmd(root, overrides))
	rootCmd.AddCommand(newTilesCmd(root, overrides))
	rootCmd.AddCommand(newVersionCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newExportCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	var (
		all      bool
		selected []string
		tileKeys []string
		encrypt  bool
		password string
		note     string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every collection or a tile selection",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(selected)+len(tileKeys) > 0) {
				return fmt.Errorf("pass --all or a selection (--select/--tile), not both")
			}
			env, err := setup(cmd.Context(), root, overrides)
			if err != nil {
				return err
			}
			defer env.close()

			req := app.ExportRequest{All: all, Selection: selected, Tiles: tileKeys, Note: note}
			if encrypt || env.cfg.Backup.Encrypt {
				req.Encrypt = true
				req.Password, req.Confirm, err = exportPassword(password, env.cfg.Backup.Password)
				if err != nil {
					return err
				}
			}

			res, err := env.app.Export(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%s\t%d records\n", res.Key, humanize.Bytes(uint64(res.Manifest.SizeBytes)), res.Manifest.TotalRecords)
			if len(res.Unavailable) > 0 {
				fmt.Fprintf(os.Stderr, "skipped unreadable collections: %s\n", strings.Join(res.Unavailable, ", "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Export every known collection")
	cmd.Flags().StringSliceVar(&selected, "select", nil, "Collection names to select; tiles whose collections are all selected are exported")
	cmd.Flags().StringSliceVar(&tileKeys, "tile", nil, "Tile keys to export exactly, without activating other tiles over the same collections")
	cmd.Flags().BoolVar(&encrypt, "encrypt", false, "Write a password-protected backup")
	cmd.Flags().StringVar(&password, "password", "", "Backup password (prompted when omitted)")
	cmd.Flags().StringVar(&note, "note", "", "Free-form note stored in the backup metadata")
	return cmd
}

func newPreviewCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	var src source
	var password string

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Summarize a backup without restoring it",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd.Context(), root, overrides)
			if err != nil {
				return err
			}
			defer env.close()

			raw, err := src.read(cmd.Context(), env.app)
			if err != nil {
				return err
			}
			password, err = restorePassword(raw, password, env.cfg.Backup.Password)
			if err != nil {
				return err
			}
			summary, err := env.app.Preview(raw, password)
			if err != nil {
				return err
			}
			printSummary(os.Stdout, summary)
			return nil
		},
	}

	src.bind(cmd)
	cmd.Flags().StringVar(&password, "password", "", "Backup password (prompted when the backup is encrypted)")
	return cmd
}

func newRestoreCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	var (
		src         source
		password    string
		dryRun      bool
		collections []string
	)

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Replace store collections with those in a backup",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd.Context(), root, overrides)
			if err != nil {
				return err
			}
			defer env.close()

			raw, err := src.read(cmd.Context(), env.app)
			if err != nil {
				return err
			}
			password, err = restorePassword(raw, password, env.cfg.Backup.Password)
			if err != nil {
				return err
			}
			report, err := env.app.Restore(cmd.Context(), raw, app.RestoreRequest{
				Password:    password,
				DryRun:      dryRun,
				Collections: collections,
			})
			if report != nil {
				printReport(os.Stdout, report)
			}
			var partial *backup.PartialRestoreError
			if errors.As(err, &partial) {
				for _, failure := range partial.Failures {
					fmt.Fprintf(os.Stderr, "failed: %s: %v\n", failure.Collection, failure.Err)
				}
			}
			return err
		},
	}

	src.bind(cmd)
	cmd.Flags().StringVar(&password, "password", "", "Backup password (prompted when the backup is encrypted)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be replaced without writing")
	cmd.Flags().StringSliceVar(&collections, "collections", nil, "Restore only these collections")
	return cmd
}

func newListCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored backups",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := setup(cmd.Context(), root, overrides)
			if err != nil {
				return err
			}
			defer env.close()

			entries, err := env.app.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, entry := range entries {
				kind, records, locked := "-", "-", ""
				if m := entry.Manifest; m != nil {
					kind = m.Kind
					records = fmt.Sprintf("%d", m.TotalRecords)
					if m.Encrypted {
						locked = "encrypted"
					}
				}
				fmt.Printf("%s\t%s\t%s\t%s\t%s\t%s\n",
					entry.Info.Key, kind, records, humanize.Bytes(uint64(entry.Info.Size)),
					humanize.Time(entry.Info.Modified), locked)
			}
			return nil
		},
	}
}

func newTilesCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tiles",
		Short: "Show the tile catalog used by export --select",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root, overrides)
			if err != nil {
				return err
			}
			tiles, err := loadTiles(cfg)
			if err != nil {
				return err
			}
			for _, tile := range tiles {
				filtered := make([]string, 0, len(tile.Predicates))
				for name := range tile.Predicates {
					filtered = append(filtered, name)
				}
				sort.Strings(filtered)
				line := fmt.Sprintf("%s\t%s\t%s", tile.Key, tile.Label, strings.Join(tile.Collections, ","))
				if len(filtered) > 0 {
					line += "\tfiltered: " + strings.Join(filtered, ",")
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cbu %s (commit %s, built %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}

// source names where preview and restore read a backup from.
type source struct {
	key  string
	file string
}

func (s *source) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.key, "key", "", "Backup key in the storage directory")
	cmd.Flags().StringVar(&s.file, "file", "", "Backup file path")
}

func (s *source) read(ctx context.Context, a *app.App) ([]byte, error) {
	switch {
	case s.file != "" && s.key != "":
		return nil, fmt.Errorf("pass only one of --key or --file")
	case s.file != "":
		return os.ReadFile(s.file)
	case s.key != "":
		return a.ReadBackup(ctx, s.key)
	default:
		return nil, fmt.Errorf("--key or --file is required")
	}
}

type session struct {
	cfg   *config.Config
	app   *app.App
	store store.Store
	log   zerolog.Logger
}

func (r *session) close() {
	if closer, ok := r.store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			r.log.Warn().Err(err).Msg("close store")
		}
	}
}

func setup(ctx context.Context, root *rootFlags, overrides *overrideFlags) (*session, error) {
	cfg, err := loadConfig(root, overrides)
	if err != nil {
		return nil, err
	}
	logger := logging.Configure(cfg.Global.LogLevel, cfg.Global.LogFormat)

	tiles, err := loadTiles(cfg)
	if err != nil {
		return nil, err
	}
	st, err := store.New(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	artifacts, err := storage.New(cfg.Storage)
	if err != nil {
		if closer, ok := st.(io.Closer); ok {
			_ = closer.Close()
		}
		return nil, err
	}
	return &session{
		cfg:   cfg,
		app:   app.New(cfg, st, artifacts, tiles, logger),
		store: st,
		log:   logger,
	}, nil
}

func loadTiles(cfg *config.Config) ([]backup.Tile, error) {
	return backup.LoadTiles(cfg.Backup.TilesFile, cfg.Backup.EventsCollection)
}

func loadConfig(root *rootFlags, overrides *overrideFlags) (*config.Config, error) {
	cfg, err := config.Load(root.ConfigPath)
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg, root, overrides)
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyOverrides(cfg *config.Config, root *rootFlags, overrides *overrideFlags) {
	if root.LogLevel != "" {
		cfg.Global.LogLevel = root.LogLevel
	}
	if root.LogFormat != "" {
		cfg.Global.LogFormat = root.LogFormat
	}
	if overrides.StoreDriver != "" {
		cfg.Store.Driver = overrides.StoreDriver
	}
	if overrides.SQLitePath != "" {
		cfg.Store.SQLitePath = overrides.SQLitePath
	}
	if overrides.StoragePath != "" {
		cfg.Storage.Path = overrides.StoragePath
	}
	if overrides.Prefix != "" {
		cfg.Storage.Prefix = overrides.Prefix
	}
	if overrides.TilesFile != "" {
		cfg.Backup.TilesFile = overrides.TilesFile
	}
	if overrides.Compression != "" {
		cfg.Backup.Compression = overrides.Compression
	}

	cfg.Store.Driver = strings.ToLower(cfg.Store.Driver)
	cfg.Backup.Compression = strings.ToLower(cfg.Backup.Compression)
}

// exportPassword returns the password and its confirmation. A password given
// on the command line or in config confirms itself; otherwise it is prompted twice.
func exportPassword(flagValue, configured string) (string, string, error) {
	if flagValue != "" {
		return flagValue, flagValue, nil
	}
	if configured != "" {
		return configured, configured, nil
	}
	password, err := prompt("Backup password: ")
	if err != nil {
		return "", "", err
	}
	confirm, err := prompt("Confirm password: ")
	if err != nil {
		return "", "", err
	}
	return password, confirm, nil
}

func restorePassword(raw []byte, flagValue, configured string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if configured != "" {
		return configured, nil
	}
	if !backup.IsEncrypted(raw) {
		return "", nil
	}
	return prompt("Backup password: ")
}

func prompt(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", backup.ErrPasswordRequired
	}
	fmt.Fprint(os.Stderr, label)
	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(secret), nil
}

func printSummary(w io.Writer, s *backup.Summary) {
	kind := "partial"
	if s.IsComprehensive {
		kind = "comprehensive"
	}
	fmt.Fprintf(w, "format:     %s\n", kind)
	fmt.Fprintf(w, "encrypted:  %t\n", s.Encrypted)
	if s.Source != "" {
		fmt.Fprintf(w, "source:     %s\n", s.Source)
	}
	if !s.CreatedAt.IsZero() {
		fmt.Fprintf(w, "created:    %s (%s)\n", s.CreatedAt.Format(time.RFC3339), humanize.Time(s.CreatedAt))
	}
	fmt.Fprintf(w, "records:    %s\n", humanize.Comma(int64(s.TotalRecords)))
	for _, name := range s.Collections {
		fmt.Fprintf(w, "  %-28s %s\n", name, humanize.Comma(int64(s.Counts[name])))
	}
}

func printReport(w io.Writer, r *backup.RestoreReport) {
	verb := "restored"
	names := r.Restored
	if r.DryRun {
		verb = "would replace"
		names = make([]string, 0, len(r.Records))
		for name := range r.Records {
			names = append(names, name)
		}
		sort.Strings(names)
	}
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%s\t%s records\n", verb, name, humanize.Comma(int64(r.Records[name])))
	}
	for _, name := range r.Skipped {
		fmt.Fprintf(w, "skipped\t%s\n", name)
	}
}
