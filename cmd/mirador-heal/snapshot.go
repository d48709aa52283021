package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-heal/internal/config"
	"github.com/miradorstack/mirador-heal/internal/models"
	"github.com/miradorstack/mirador-heal/internal/storage"
	"github.com/miradorstack/mirador-heal/internal/utils"
)

var errNoSQLite = errors.New("storage.sqlitePath is not configured")

func exportCmd(opts *rootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the persisted records to a zstd-compressed JSON snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadCLIConfig(cmd, opts)
			if err != nil {
				return err
			}
			store, closeStore, err := openPersistedStore(cmd, cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			records := store.Export()
			if err := writeSnapshotFile(out, records); err != nil {
				return err
			}
			info, err := os.Stat(out)
			if err != nil {
				return fmt.Errorf("stat snapshot: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %s records to %s (%s)\n",
				humanize.Comma(int64(len(records))), out, humanize.Bytes(uint64(info.Size())))
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "errors.json.zst", "Snapshot file to write")
	return cmd
}

func importCmd(opts *rootOptions) *cobra.Command {
	var in string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load a snapshot into the persisted store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if in == "" {
				return errors.New("--in is required")
			}
			cfg, logger, err := loadCLIConfig(cmd, opts)
			if err != nil {
				return err
			}
			records, err := readSnapshotFile(in)
			if err != nil {
				return err
			}
			store, closeStore, err := openPersistedStore(cmd, cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			n, err := store.Import(cmd.Context(), records)
			if err != nil {
				return utils.NewAppError("import", "store snapshot records", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %s records, store now holds %s\n",
				humanize.Comma(int64(n)), humanize.Comma(int64(store.Len())))
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "Snapshot file to read")
	return cmd
}

func loadCLIConfig(cmd *cobra.Command, opts *rootOptions) (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	return *cfg, utils.NewLoggerTo(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.JSON), nil
}

func openPersistedStore(cmd *cobra.Command, cfg config.Config, logger *slog.Logger) (*storage.Store, func(), error) {
	if cfg.Storage.SQLitePath == "" {
		return nil, nil, errNoSQLite
	}
	store, persister, err := openStore(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = persister.Close() }, nil
}

func writeSnapshotFile(path string, records []models.ErrorRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	if err := storage.WriteSnapshot(f, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func readSnapshotFile(path string) ([]models.ErrorRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	return storage.ReadSnapshot(f)
}
