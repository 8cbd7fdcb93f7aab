package commands

import (
	"context"
	goerrors "errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/XiaoConstantine/ace-go/pkg/config"
	"github.com/XiaoConstantine/ace-go/pkg/llms"
	"github.com/XiaoConstantine/ace-go/pkg/logging"
	"github.com/XiaoConstantine/ace-go/pkg/playbook"
)

// engine bundles everything a command needs to work with one playbook.
type engine struct {
	cfg      *config.Config
	playbook *playbook.Playbook
	embedder playbook.Embedder
	store    *playbook.SQLiteStore
}

// loadEngine builds the engine from the --config flag, falling back to
// defaults when no file is given. The playbook is loaded from the
// configured storage backend; a missing snapshot starts empty.
func loadEngine(cmd *cobra.Command) (*engine, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	var cfg *config.Config
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.NewManager().Load()
	}
	if err != nil {
		return nil, err
	}

	configureLogging(cfg.Logging)

	e := &engine{
		cfg: cfg,
		// Queries and item contents repeat across commands; cache the
		// vectors so repeated retrievals don't re-hit the provider.
		embedder: llms.NewCachingEmbedder(llms.NewOllamaEmbedderFromConfig(cfg.Embedding), 1024),
	}

	switch cfg.Storage.Backend {
	case "sqlite":
		store, err := playbook.NewSQLiteStore(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		pb, err := store.Load(context.Background(), cfg.PlaybookConfig())
		if err != nil {
			store.Close()
			return nil, err
		}
		e.store = store
		e.playbook = pb
	default:
		pb, err := playbook.LoadSnapshot(cfg.Storage.Path, cfg.PlaybookConfig())
		if goerrors.Is(err, fs.ErrNotExist) {
			// A missing snapshot is a fresh start, not a failure.
			pb, err = playbook.New(cfg.PlaybookConfig())
		}
		if err != nil {
			return nil, err
		}
		e.playbook = pb
	}

	return e, nil
}

// save persists the playbook to the configured backend.
func (e *engine) save(ctx context.Context) error {
	if e.store != nil {
		return e.store.Save(ctx, e.playbook)
	}
	return e.playbook.SaveSnapshot(e.cfg.Storage.Path)
}

func (e *engine) close() {
	if e.store != nil {
		e.store.Close()
	}
}

func configureLogging(cfg config.LoggingConfig) {
	outputs := []logging.Output{logging.NewConsoleOutput(false)}
	if cfg.FilePath != "" {
		if fileOutput, err := logging.NewFileOutput(cfg.FilePath); err == nil {
			outputs = append(outputs, fileOutput)
		} else {
			fmt.Printf("warning: cannot open log file %s: %v\n", cfg.FilePath, err)
		}
	}

	logging.SetLogger(logging.NewLogger(logging.Config{
		Severity: logging.ParseSeverity(cfg.Level),
		Outputs:  outputs,
	}))
}
