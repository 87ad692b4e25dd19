package backfill

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anatolykoptev/go_podqa/internal/engine/youtube"
)

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestReadURLs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "videos.txt")
	writeTestFile(t, path, "# playlist export\n\nhttps://www.youtube.com/watch?v=dQw4w9WgXcQ\n  9bZkp7q19f0  \n   # indented comment\n")

	urls, err := ReadURLs(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "9bZkp7q19f0"}, urls)

	_, err = ReadURLs(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestFindManualFiles(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "kJQP7kiw5Fk_description.txt"), "x")
	writeTestFile(t, filepath.Join(dir, "dQw4w9WgXcQ_decription.txt"), "x")
	writeTestFile(t, filepath.Join(dir, "dQw4w9WgXcQ_transcript.txt"), "x")
	writeTestFile(t, filepath.Join(dir, "notes.md"), "x")

	files, err := FindManualFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "dQw4w9WgXcQ_decription.txt"),
		filepath.Join(dir, "kJQP7kiw5Fk_description.txt"),
	}, files)

	files, err = FindManualFiles(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, files)

	_, err = FindManualFiles(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestManualVideoID(t *testing.T) {
	tests := []struct {
		path    string
		want    string
		wantErr bool
	}{
		{"/tmp/Q8rfyMrjlnI_description.txt", "Q8rfyMrjlnI", false},
		{"ucjegR-jiYo_decription.txt", "ucjegR-jiYo", false},
		{"short_description.txt", "", true},
		{"dQw4w9WgXcQ_transcript.txt", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := ManualVideoID(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ManualVideoID("short_description.txt")
	assert.ErrorIs(t, err, youtube.ErrInvalidVideoID)
}
