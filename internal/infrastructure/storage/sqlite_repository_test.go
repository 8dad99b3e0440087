package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"DigestPipeline/internal/domain"
)

func newTestRepo(t *testing.T) (*SQLiteRepository, *sql.DB) {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "nested", "digest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewSQLiteRepository(db)
	clock := time.Date(2026, time.March, 5, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return repo, db
}

func TestOpenMigrates(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "digest.db")
	db, err := Open(path)
	require.NoError(t, err)

	version, err := userVersion(db)
	require.NoError(t, err)
	require.Equal(t, CurrentSchemaVersion, version)
	require.NoError(t, db.Close())

	// Reopening an up-to-date database is a no-op.
	db, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestRecipientRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	missing, err := repo.GetRecipient(ctx, "nobody")
	require.NoError(t, err)
	require.Nil(t, missing)

	saved, err := repo.UpsertRecipient(ctx, domain.Recipient{
		Name: "Ana",
		Addresses: map[domain.ChannelName]string{
			domain.ChannelMail:     "ana@example.com",
			domain.ChannelTelegram: "ana_reads",
		},
	})
	require.NoError(t, err)
	require.Len(t, saved.ID, 26)

	got, err := repo.GetRecipient(ctx, saved.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "Ana", got.Name)
	require.Equal(t, "ana@example.com", got.Address(domain.ChannelMail))
	require.Equal(t, "ana_reads", got.Address(domain.ChannelTelegram))
	require.Empty(t, got.Address(domain.ChannelWhatsApp))

	saved.Name = "Ana Maria"
	saved.Addresses[domain.ChannelWhatsApp] = "+15550100"
	_, err = repo.UpsertRecipient(ctx, saved)
	require.NoError(t, err)

	got, err = repo.GetRecipient(ctx, saved.ID)
	require.NoError(t, err)
	require.Equal(t, "Ana Maria", got.Name)
	require.Equal(t, "+15550100", got.Address(domain.ChannelWhatsApp))

	ids, err := repo.ListRecipientIDs(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{saved.ID}, ids)
}

func TestSubscribeKeepsOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	ana, err := repo.UpsertRecipient(ctx, domain.Recipient{ID: "ana", Name: "Ana"})
	require.NoError(t, err)
	bob, err := repo.UpsertRecipient(ctx, domain.Recipient{ID: "bob", Name: "Bob"})
	require.NoError(t, err)

	for _, name := range []string{"Space", "AI", "Climate"} {
		_, err := repo.Subscribe(ctx, ana.ID, name, "")
		require.NoError(t, err)
	}
	again, err := repo.Subscribe(ctx, ana.ID, "AI", "Artificial intelligence")
	require.NoError(t, err)
	require.Equal(t, "Artificial intelligence", again.Description)

	shared, err := repo.Subscribe(ctx, bob.ID, "AI", "")
	require.NoError(t, err)
	require.Equal(t, again.ID, shared.ID)
	require.Equal(t, "Artificial intelligence", shared.Description)

	topics, err := repo.GetTopics(ctx, ana.ID)
	require.NoError(t, err)
	require.Len(t, topics, 3)
	require.Equal(t, "Space", topics[0].Name)
	require.Equal(t, "AI", topics[1].Name)
	require.Equal(t, "Climate", topics[2].Name)

	none, err := repo.GetTopics(ctx, "nobody")
	require.NoError(t, err)
	require.Empty(t, none)

	_, err = repo.Subscribe(ctx, "nobody", "AI", "")
	require.ErrorIs(t, err, ErrRecipientNotFound)
}

func TestDeliveryHistory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	first, err := repo.SaveDeliveryRecord(ctx, "ana", "Morning digest", []string{"AI", "Space"}, "mail")
	require.NoError(t, err)
	require.Len(t, first.ID, 26)
	second, err := repo.SaveDeliveryRecord(ctx, "ana", "Evening digest", nil, "telegram")
	require.NoError(t, err)
	_, err = repo.SaveDeliveryRecord(ctx, "bob", "Bob digest", []string{"Music"}, "mail")
	require.NoError(t, err)

	records, err := repo.ListDeliveries(ctx, "ana", 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, second.ID, records[0].ID)
	require.Equal(t, []string{}, records[0].Topics)
	require.Equal(t, first.ID, records[1].ID)
	require.Equal(t, []string{"AI", "Space"}, records[1].Topics)
	require.Equal(t, "mail", records[1].Channel)
	require.True(t, first.SentAt.Equal(records[1].SentAt))

	all, err := repo.ListDeliveries(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "bob", all[0].RecipientID)
}
