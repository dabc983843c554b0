package postprocess

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfarr/shelfarr/internal/downloader"
	"github.com/shelfarr/shelfarr/internal/downloader/types"
	"github.com/shelfarr/shelfarr/internal/release"
)

type fakeStore struct {
	book          Book
	requestStatus string
	issue         string
	bookFilePath  string
}

func (s *fakeStore) GetBookForRequest(ctx context.Context, requestID int64) (Book, error) {
	return s.book, nil
}

func (s *fakeStore) SetRequestProcessing(ctx context.Context, requestID int64) error {
	s.requestStatus = "processing"
	return nil
}

func (s *fakeStore) CompleteRequest(ctx context.Context, requestID int64) error {
	s.requestStatus = "completed"
	return nil
}

func (s *fakeStore) MarkRequestAttention(ctx context.Context, requestID int64, issue string) error {
	s.requestStatus = "attention_needed"
	s.issue = issue
	return nil
}

func (s *fakeStore) SetBookFilePath(ctx context.Context, bookID int64, path string) error {
	s.bookFilePath = path
	return nil
}

type fakeClient struct {
	protocol   types.Protocol
	removed    []string
	removedAll bool
	removeErr  error
}

func (c *fakeClient) Type() types.ClientType   { return types.ClientTypeQBittorrent }
func (c *fakeClient) Protocol() types.Protocol { return c.protocol }

func (c *fakeClient) Add(ctx context.Context, sourceRef string, opts types.AddOptions) (string, error) {
	return "", nil
}

func (c *fakeClient) Info(ctx context.Context, id string) (*types.TorrentInfo, error) {
	return nil, nil
}

func (c *fakeClient) List(ctx context.Context, filter types.ListFilter) ([]types.TorrentInfo, error) {
	return nil, nil
}

func (c *fakeClient) Remove(ctx context.Context, id string, deleteFiles bool) (bool, error) {
	if c.removeErr != nil {
		return false, c.removeErr
	}
	c.removed = append(c.removed, id)
	c.removedAll = deleteFiles
	return true, nil
}

func (c *fakeClient) Test(ctx context.Context) bool { return true }

func pipelineFixture(t *testing.T) (*Pipeline, *fakeStore, string, string) {
	t.Helper()
	source := t.TempDir()
	outputBase := t.TempDir()
	writeFile(t, filepath.Join(source, "audiobook.mp3"), "audio")

	store := &fakeStore{book: Book{
		ID:     1,
		Title:  "Test Audiobook",
		Author: "Test Author",
		Type:   release.FormatAudiobook,
	}}
	pipeline := NewPipeline(store, Config{
		LocalPath:             filepath.Dir(source),
		AudiobookOutputPath:   outputBase,
		RemoveCompletedUsenet: true,
	}, zerolog.Nop())
	return pipeline, store, source, outputBase
}

func completedDownload(path string) downloader.Download {
	return downloader.Download{
		ID:           7,
		RequestID:    3,
		ExternalID:   "abc123",
		State:        downloader.StateCompleted,
		DownloadPath: path,
	}
}

func TestHandleCompletedImportsAndCompletes(t *testing.T) {
	pipeline, store, source, outputBase := pipelineFixture(t)
	client := &fakeClient{protocol: types.ProtocolTorrent}

	err := pipeline.HandleCompleted(context.Background(), completedDownload(source), types.ClientConfig{Name: "qb"}, client)
	require.NoError(t, err)

	expected := filepath.Join(outputBase, "Test Author", "Test Audiobook")
	assert.Equal(t, "completed", store.requestStatus)
	assert.Equal(t, expected, store.bookFilePath)
	assert.FileExists(t, filepath.Join(expected, "audiobook.mp3"))

	// Torrent source preserved for seeding, never removed from the backend.
	assert.FileExists(t, filepath.Join(source, "audiobook.mp3"))
	assert.Empty(t, client.removed)
}

func TestHandleCompletedRemovesUsenetDownload(t *testing.T) {
	pipeline, store, source, _ := pipelineFixture(t)
	client := &fakeClient{protocol: types.ProtocolUsenet}

	err := pipeline.HandleCompleted(context.Background(), completedDownload(source), types.ClientConfig{Name: "sab"}, client)
	require.NoError(t, err)

	assert.Equal(t, "completed", store.requestStatus)
	assert.Equal(t, []string{"abc123"}, client.removed)
	assert.True(t, client.removedAll)
}

func TestHandleCompletedUsenetCleanupDisabled(t *testing.T) {
	pipeline, _, source, _ := pipelineFixture(t)
	pipeline.config.RemoveCompletedUsenet = false
	client := &fakeClient{protocol: types.ProtocolUsenet}

	err := pipeline.HandleCompleted(context.Background(), completedDownload(source), types.ClientConfig{}, client)
	require.NoError(t, err)
	assert.Empty(t, client.removed)
}

func TestHandleCompletedCleanupFailureIsNonFatal(t *testing.T) {
	pipeline, store, source, _ := pipelineFixture(t)
	client := &fakeClient{protocol: types.ProtocolUsenet, removeErr: os.ErrDeadlineExceeded}

	err := pipeline.HandleCompleted(context.Background(), completedDownload(source), types.ClientConfig{}, client)
	require.NoError(t, err)
	assert.Equal(t, "completed", store.requestStatus)
}

func TestHandleCompletedBlankPathNeedsAttention(t *testing.T) {
	pipeline, store, _, _ := pipelineFixture(t)
	client := &fakeClient{protocol: types.ProtocolTorrent}

	err := pipeline.HandleCompleted(context.Background(), completedDownload(""), types.ClientConfig{}, client)
	require.NoError(t, err)

	assert.Equal(t, "attention_needed", store.requestStatus)
	assert.Contains(t, store.issue, "source path is blank")
}

func TestHandleCompletedMissingPathNeedsAttention(t *testing.T) {
	pipeline, store, _, _ := pipelineFixture(t)
	client := &fakeClient{protocol: types.ProtocolTorrent}

	download := completedDownload("/nonexistent/path/that/does/not/exist")
	err := pipeline.HandleCompleted(context.Background(), download, types.ClientConfig{}, client)
	require.NoError(t, err)

	assert.Equal(t, "attention_needed", store.requestStatus)
	assert.Contains(t, store.issue, "source path not found")
}
