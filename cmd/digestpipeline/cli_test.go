package main

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"DigestPipeline/internal/app"
	"DigestPipeline/internal/config"
	"DigestPipeline/internal/domain"
	"DigestPipeline/internal/logging"
	"DigestPipeline/internal/usecase"
)

func setupTestApp(t *testing.T) *app.Application {
	t.Helper()

	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "digest.db")

	a, err := app.New(cfg, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

// runCLI executes args and returns stdout.
func runCLI(t *testing.T, a *app.Application, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cliApp := newCLIApp(a)
	cliApp.Writer = &out
	cliApp.ErrWriter = io.Discard

	err := cliApp.Run(append([]string{"digestpipeline"}, args...))
	return out.String(), err
}

func TestChannelsCommand(t *testing.T) {
	t.Parallel()
	a := setupTestApp(t)

	out, err := runCLI(t, a, "channels")
	require.NoError(t, err)

	var names []string
	require.NoError(t, json.Unmarshal([]byte(out), &names))
	require.Equal(t, []string{"mail", "telegram", "whatsapp"}, names)
}

func TestRunPlaceholder(t *testing.T) {
	t.Parallel()
	a := setupTestApp(t)

	out, err := runCLI(t, a, "run", "--placeholder")
	require.NoError(t, err)

	var res usecase.RunResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.True(t, res.Success)
	require.Equal(t, "mail", res.Channel)
	require.Equal(t, []string{"AI"}, res.Topics)
}

func TestRunRequiresRecipient(t *testing.T) {
	t.Parallel()
	a := setupTestApp(t)

	out, err := runCLI(t, a, "run")
	require.ErrorContains(t, err, "--recipient is required")
	require.Empty(t, out)
}

func TestRunUnknownRecipientFails(t *testing.T) {
	t.Parallel()
	a := setupTestApp(t)

	out, err := runCLI(t, a, "run", "-r", "ghost")
	require.ErrorContains(t, err, "RECIPIENT_NOT_FOUND")

	var res usecase.RunResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.False(t, res.Success)
	require.Equal(t, usecase.CodeRecipientNotFound, res.Code)
}

func TestRecipientLifecycle(t *testing.T) {
	t.Parallel()
	a := setupTestApp(t)

	out, err := runCLI(t, a, "recipient", "add", "--id", "ana", "--name", "Ana", "--phone", "+15550100")
	require.NoError(t, err)
	var rec recipientOutput
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	require.Equal(t, "ana", rec.ID)
	require.Equal(t, map[string]string{"whatsapp": "+15550100"}, rec.Addresses)

	_, err = runCLI(t, a, "topic", "subscribe", "-r", "ana", "-d", "Weather and policy", "Climate")
	require.NoError(t, err)
	_, err = runCLI(t, a, "topic", "subscribe", "-r", "ana", "Space")
	require.NoError(t, err)

	out, err = runCLI(t, a, "recipient", "show", "ana")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	require.Equal(t, []string{"Climate", "Space"}, rec.Topics)

	out, err = runCLI(t, a, "run", "-r", "ana", "-c", "whatsapp")
	require.NoError(t, err)
	var res usecase.RunResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.True(t, res.Success, res.Message)
	require.NotNil(t, res.Record)

	out, err = runCLI(t, a, "history", "-r", "ana")
	require.NoError(t, err)
	var records []domain.DeliveryRecord
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 1)
	require.Equal(t, []string{"Climate", "Space"}, records[0].Topics)
}

func TestSubscribeUnknownRecipient(t *testing.T) {
	t.Parallel()
	a := setupTestApp(t)

	_, err := runCLI(t, a, "topic", "subscribe", "-r", "ghost", "AI")
	require.Error(t, err)
}

func TestRunAllReportsFailures(t *testing.T) {
	t.Parallel()
	a := setupTestApp(t)

	_, err := runCLI(t, a, "recipient", "add", "--id", "ana", "--name", "Ana", "--email", "ana@example.com")
	require.NoError(t, err)
	_, err = runCLI(t, a, "topic", "subscribe", "-r", "ana", "AI")
	require.NoError(t, err)
	_, err = runCLI(t, a, "recipient", "add", "--id", "bob", "--name", "Bob", "--email", "bob@example.com")
	require.NoError(t, err)

	out, err := runCLI(t, a, "run", "--all")
	require.ErrorContains(t, err, "1 of 2 runs failed")

	var results []usecase.RunResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)

	byID := map[string]usecase.RunResult{}
	for _, r := range results {
		byID[r.RecipientID] = r
	}
	require.True(t, byID["ana"].Success)
	require.Equal(t, usecase.CodeNoTopics, byID["bob"].Code)
}
