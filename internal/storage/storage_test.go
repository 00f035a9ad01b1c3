package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxstudio/pkg/model"
)

func TestArtifactKey(t *testing.T) {
	a := ArtifactKey("run-a", "generated_speech.wav")
	b := ArtifactKey("run-b", "generated_speech.wav")

	assert.Equal(t, "runs/run-a/generated_speech.wav", a)
	assert.NotEqual(t, a, b)
}

func TestMigrationsURL(t *testing.T) {
	dir := t.TempDir()

	u, err := migrationsURL(dir)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "file://"))
	assert.Contains(t, u, filepath.ToSlash(filepath.Base(dir)))

	u, err = migrationsURL("")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(u, "migrations"))
}

func TestNewArtifactStore_RequiresBucket(t *testing.T) {
	_, err := NewArtifactStore(context.Background(), S3Options{Region: "us-east-1"})
	assert.Error(t, err)
}

func TestRunJournal_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	journal, err := NewRunJournal(ctx, dsn, "../../migrations")
	require.NoError(t, err)
	defer journal.Close()

	run := model.NewRun(uuid.New().String(), model.FlowTranscription)
	run.Meta["file_name"] = "clip.mp3"
	require.NoError(t, journal.CreateRun(ctx, run))

	run.SetError(model.TransportError("transcribe", assert.AnError))
	require.NoError(t, journal.UpdateRun(ctx, run))

	got, err := journal.GetRunByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, got.Status)
	require.NotNil(t, got.ErrorKind)
	assert.Equal(t, model.ErrorKindTransport, *got.ErrorKind)
	assert.Equal(t, "clip.mp3", got.Meta["file_name"])

	recent, err := journal.ListRecentRuns(ctx, model.FlowTranscription, 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(recent))
	for _, r := range recent {
		ids = append(ids, r.ID)
	}
	assert.Contains(t, ids, run.ID)

	_, err = journal.GetRunByID(ctx, uuid.New().String())
	assert.ErrorIs(t, err, ErrRunNotFound)
}
