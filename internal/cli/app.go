package cli

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"aira/internal/config"
	"aira/internal/editor"
	"aira/internal/llm"
	"aira/internal/llm/mockclient"
	"aira/internal/logging"
	"aira/internal/openai"
	"aira/internal/storage"
	"aira/internal/workspace"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	dataDir    string
	storage    string
	verbose    bool
	jsonLogs   bool
}

func (o *globalOptions) loadConfig() (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if path := strings.TrimSpace(o.configPath); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadUserConfig()
	}
	if err != nil {
		return config.Config{}, err
	}
	if dir := strings.TrimSpace(o.dataDir); dir != "" {
		cfg.DataDir = dir
	}
	if kind := strings.TrimSpace(o.storage); kind != "" {
		cfg.Storage = strings.ToLower(kind)
	}
	if o.jsonLogs {
		cfg.LogJSON = true
	}
	return cfg, nil
}

// app is the process-wide wiring: config, log file, storage and the store.
type app struct {
	cfg     config.Config
	logger  *log.Logger
	backend storage.Backend
	store   *workspace.Store

	logCloser io.Closer
}

func (o *globalOptions) open() (*app, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	fileOpts := logging.FileOptions{
		Path:       cfg.LogPath,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Prefix:     "aira ",
	}
	if o.verbose || logging.DevMode {
		fileOpts.Mirror = os.Stderr
	}
	logger, logCloser, err := logging.NewFileLogger(fileOpts)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	logging.SetLogger(logger)

	backend, err := storage.Open(cfg.Storage, cfg.DataDir)
	if err != nil {
		logCloser.Close()
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage, err)
	}
	store, err := workspace.NewStore(backend, logger)
	if err != nil {
		_ = storage.Close(backend)
		logCloser.Close()
		return nil, fmt.Errorf("load workspace: %w", err)
	}
	logger.Printf("workspace loaded from %s (%s storage)", cfg.DataDir, cfg.Storage)
	return &app{cfg: cfg, logger: logger, backend: backend, store: store, logCloser: logCloser}, nil
}

// Close flushes the store and releases storage and the log file.
func (a *app) Close() error {
	var errs []error
	if err := a.store.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := storage.Close(a.backend); err != nil {
		errs = append(errs, err)
	}
	logging.SetLogger(nil)
	if err := a.logCloser.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *app) editors() *editor.Manager {
	return editor.NewManager(a.store, editor.ManagerOptions{
		Interval: a.cfg.SampleInterval(),
		Debounce: a.cfg.Debounce(),
		Logger:   a.logger,
		JSONLogs: a.cfg.LogJSON,
	})
}

// client builds the model client. AIRA_MOCK_LLM=1 swaps in the offline mock.
func (a *app) client() (llm.Client, error) {
	if os.Getenv("AIRA_MOCK_LLM") == "1" {
		a.logger.Println("AIRA_MOCK_LLM=1 detected; using mock LLM client")
		return mockclient.New(), nil
	}
	if a.cfg.APIKey == "" {
		return nil, errors.New("no API key configured: set AIRA_API_KEY or api_key in " + config.ConfigPath())
	}
	a.logger.Printf("using %s at %s", a.cfg.Model, a.cfg.BaseURL)
	return openai.NewClient(a.cfg.BaseURL, a.cfg.APIKey, a.cfg.RequestTimeout(), a.logger), nil
}
