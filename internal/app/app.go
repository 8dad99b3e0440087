package app

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"DigestPipeline/internal/condenser"
	"DigestPipeline/internal/config"
	"DigestPipeline/internal/dispatch"
	"DigestPipeline/internal/fetcher"
	"DigestPipeline/internal/infrastructure/llm"
	"DigestPipeline/internal/infrastructure/search"
	"DigestPipeline/internal/infrastructure/smtp"
	"DigestPipeline/internal/infrastructure/storage"
	"DigestPipeline/internal/logging"
	"DigestPipeline/internal/ports"
	"DigestPipeline/internal/renderer"
	"DigestPipeline/internal/usecase"
)

// ErrStoreUnavailable is returned by Store when the database could not be opened.
var ErrStoreUnavailable = errors.New("recipient store unavailable")

// Application wires configs to use cases.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	db       *sql.DB
	store    *storage.SQLiteRepository
	storeErr error
	channels *dispatch.Registry
	pipeline *usecase.Pipeline
}

// New builds the application. A database that cannot be opened is logged and
// leaves only placeholder runs working.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	a := &Application{cfg: cfg, logger: baseLogger}

	db, err := storage.Open(cfg.Database.Path)
	if err != nil {
		a.storeErr = err
		baseLogger.Warn("database unavailable, stored recipients disabled", "path", cfg.Database.Path, "error", err)
	} else {
		a.db = db
		a.store = storage.NewSQLiteRepository(db)
	}

	httpClient := &http.Client{Timeout: cfg.HTTP.Timeout}

	var generator ports.TextGenerator
	if cfg.ChatGPT.APIKey != "" {
		generator = llm.NewChatGPTClient(cfg.ChatGPT, cfg.HTTP.Timeout)
	} else {
		baseLogger.Info("chatgpt api key not set, generated copy uses fallbacks")
	}

	searcher := newSearcher(cfg.Search, httpClient, baseLogger)

	var templates renderer.TemplateSet
	if cfg.Render.TemplateDir != "" {
		loaded, err := renderer.LoadTemplates(cfg.Render.TemplateDir)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("load templates: %w", err)
		}
		templates = loaded
	}

	a.channels = dispatch.NewRegistry(baseLogger.With("component", "dispatch"),
		dispatch.NewMail(dispatch.MailSettings{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		}, smtp.NewTransport(cfg.HTTP.Timeout, cfg.Mail.ImplicitTLS()), baseLogger.With("component", "dispatch.mail")),
		dispatch.NewWhatsApp(baseLogger.With("component", "dispatch.whatsapp")),
		dispatch.NewTelegram(baseLogger.With("component", "dispatch.telegram")),
	)

	deps := usecase.PipelineDeps{
		Fetcher: fetcher.New(generator, searcher, fetcher.Options{
			QueriesPerTopic:  cfg.Fetch.QueriesPerTopic,
			MaxItemsPerTopic: cfg.Fetch.MaxItemsPerTopic,
			PageSize:         cfg.Search.PageSize,
			Concurrency:      cfg.Fetch.Concurrency,
			CallTimeout:      cfg.Fetch.CallTimeout,
		}, baseLogger.With("component", "fetcher")),
		Condenser: condenser.New(generator, condenser.Options{
			MaxSynopsisWords: cfg.Condense.MaxSynopsisWords,
			IncludeRelevance: cfg.Condense.Relevance(),
			Concurrency:      cfg.Condense.Concurrency,
			CallTimeout:      cfg.Condense.CallTimeout,
		}, baseLogger.With("component", "condenser")),
		Renderer: renderer.New(generator, templates, renderer.Options{
			Template:    cfg.Render.Template,
			DateLayout:  cfg.Render.DateLayout,
			Location:    cfg.Render.Location(),
			CallTimeout: cfg.Render.CallTimeout,
		}, baseLogger.With("component", "renderer")),
		Dispatcher:      a.channels,
		DefaultChannel:  cfg.Pipeline.DefaultChannel,
		DefaultLanguage: cfg.Pipeline.DefaultLanguage,
		Concurrency:     cfg.Pipeline.Concurrency,
		Logger:          baseLogger.With("component", "pipeline"),
	}
	if a.store != nil {
		deps.Store = a.store
	}
	a.pipeline = usecase.NewPipeline(deps)

	return a, nil
}

// newSearcher picks the configured backend; nil means every search fails soft.
func newSearcher(cfg config.SearchConfig, client *http.Client, logger *slog.Logger) ports.Searcher {
	var base ports.Searcher
	switch strings.ToLower(cfg.Provider) {
	case "arxiv":
		base = search.NewArxiv(cfg.Arxiv.Endpoint, client)
	case "newsapi", "":
		if cfg.NewsAPI.APIKey == "" {
			logger.Info("news api key not set, searches return nothing")
			return nil
		}
		base = search.NewNewsAPI(cfg.NewsAPI.Endpoint, cfg.NewsAPI.APIKey, client)
	default:
		logger.Warn("unknown search provider", "provider", cfg.Provider)
		return nil
	}

	if cfg.ExtractBodies {
		return search.WithBodies(base, client, cfg.BodyMaxChars, logger.With("component", "search.bodies"))
	}
	return base
}

// Pipeline returns the orchestrator.
func (a *Application) Pipeline() *usecase.Pipeline {
	return a.pipeline
}

// Channels lists the registered delivery channels.
func (a *Application) Channels() []string {
	return a.channels.Names()
}

// Store returns the recipient repository, or ErrStoreUnavailable.
func (a *Application) Store() (*storage.SQLiteRepository, error) {
	if a.store == nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, a.storeErr)
	}
	return a.store, nil
}

// Close releases the database handle.
func (a *Application) Close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}
