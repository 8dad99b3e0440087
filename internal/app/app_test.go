package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"DigestPipeline/internal/config"
	"DigestPipeline/internal/domain"
	"DigestPipeline/internal/infrastructure/search"
	"DigestPipeline/internal/logging"
	"DigestPipeline/internal/usecase"
)

func offlineConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "digest.db")
	cfg.ChatGPT.APIKey = ""
	cfg.Search.NewsAPI.APIKey = ""
	return cfg
}

func TestPlaceholderRunOffline(t *testing.T) {
	t.Parallel()

	a, err := New(offlineConfig(t), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	require.Equal(t, []string{"mail", "telegram", "whatsapp"}, a.Channels())

	res := a.Pipeline().Run(context.Background(), usecase.RunRequest{UsePlaceholderData: true})
	require.True(t, res.Success, res.Message)
	require.Equal(t, []string{"AI"}, res.Topics)
	require.NotNil(t, res.Delivery)
	require.True(t, res.Delivery.Simulated)
}

func TestStoredRecipientRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	a, err := New(offlineConfig(t), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	store, err := a.Store()
	require.NoError(t, err)
	rec, err := store.UpsertRecipient(ctx, domain.Recipient{
		Name:      "Ana",
		Addresses: map[domain.ChannelName]string{domain.ChannelWhatsApp: "+15550100"},
	})
	require.NoError(t, err)
	_, err = store.Subscribe(ctx, rec.ID, "Climate", "")
	require.NoError(t, err)

	res := a.Pipeline().Run(ctx, usecase.RunRequest{RecipientID: rec.ID, Channel: "whatsapp"})
	require.True(t, res.Success, res.Message)
	require.NotNil(t, res.Record)

	history, err := store.ListDeliveries(ctx, rec.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "whatsapp", history[0].Channel)
}

func TestUnavailableDatabaseKeepsPlaceholderRuns(t *testing.T) {
	t.Parallel()

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	cfg := offlineConfig(t)
	cfg.Database.Path = filepath.Join(blocker, "digest.db")

	a, err := New(cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	_, err = a.Store()
	require.ErrorIs(t, err, ErrStoreUnavailable)

	res := a.Pipeline().Run(context.Background(), usecase.RunRequest{RecipientID: "ana"})
	require.Equal(t, usecase.CodeStorageError, res.Code)

	res = a.Pipeline().Run(context.Background(), usecase.RunRequest{UsePlaceholderData: true})
	require.True(t, res.Success, res.Message)
}

func TestMissingTemplateDir(t *testing.T) {
	t.Parallel()

	cfg := offlineConfig(t)
	cfg.Render.TemplateDir = filepath.Join(t.TempDir(), "missing")

	_, err := New(cfg, logging.Discard())
	require.ErrorContains(t, err, "load templates")
}

func TestNewSearcher(t *testing.T) {
	t.Parallel()
	logger := logging.Discard()

	cfg := config.Default().Search
	cfg.NewsAPI.APIKey = ""
	require.Nil(t, newSearcher(cfg, nil, logger))

	cfg.NewsAPI.APIKey = "key"
	require.IsType(t, &search.NewsAPI{}, newSearcher(cfg, nil, logger))

	cfg.Provider = "ArXiv"
	require.IsType(t, &search.Arxiv{}, newSearcher(cfg, nil, logger))

	cfg.ExtractBodies = true
	require.IsType(t, &search.BodyExtractor{}, newSearcher(cfg, nil, logger))

	cfg.Provider = "bing"
	require.Nil(t, newSearcher(cfg, nil, logger))
}
