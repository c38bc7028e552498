package rest

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadUploads(t *testing.T) {
	dir := t.TempDir()
	body, contentType := multipartBody(t, []filePart{
		{field: "video", name: "clip.MP4", contentType: "video/mp4", data: []byte("frames")},
		{field: "extra", name: "ignored.bin", contentType: "application/octet-stream", data: []byte("junk")},
	}, map[string]string{"session_id": "  sess-1 "})

	req := httptest.NewRequest(http.MethodPost, "/vkyc", body)
	req.Header.Set("Content-Type", contentType)

	form, err := readUploads(req, 1<<20, dir, "video", "id_card")
	require.NoError(t, err)

	require.Contains(t, form.Files, "video")
	assert.NotContains(t, form.Files, "extra")
	assert.Equal(t, "sess-1", form.Values["session_id"])

	video := form.Files["video"]
	assert.True(t, strings.HasSuffix(video.Path, ".mp4"))
	assert.Equal(t, int64(6), video.Size)
	data, err := os.ReadFile(video.Path)
	require.NoError(t, err)
	assert.Equal(t, "frames", string(data))

	form.RemoveAll()
	_, err = os.Stat(video.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestReadUploads_TakeTransfersOwnership(t *testing.T) {
	body, contentType := multipartBody(t, []filePart{
		{field: "video", name: "a.webm", contentType: "video/webm", data: []byte("v")},
	}, nil)
	req := httptest.NewRequest(http.MethodPost, "/detect", body)
	req.Header.Set("Content-Type", contentType)

	form, err := readUploads(req, 1<<20, t.TempDir(), "video")
	require.NoError(t, err)

	taken := form.Take("video")
	require.NotNil(t, taken)
	form.RemoveAll()

	_, err = os.Stat(taken.Path)
	assert.NoError(t, err)
	assert.Nil(t, form.Take("video"))
}

func TestReadUploads_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		files []filePart
	}{
		{
			name:  "empty file",
			files: []filePart{{field: "video", name: "v.mp4", contentType: "video/mp4"}},
		},
		{
			name: "duplicate field",
			files: []filePart{
				{field: "video", name: "a.mp4", contentType: "video/mp4", data: []byte("a")},
				{field: "video", name: "b.mp4", contentType: "video/mp4", data: []byte("b")},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			body, contentType := multipartBody(t, tt.files, nil)
			req := httptest.NewRequest(http.MethodPost, "/detect", body)
			req.Header.Set("Content-Type", contentType)

			_, err := readUploads(req, 1<<20, dir, "video")
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Empty(t, entries, "partial uploads are removed")
		})
	}
}

func TestSanitizeExt(t *testing.T) {
	tests := map[string]string{
		".mp4":      ".mp4",
		".wav":      ".wav",
		"":          "",
		".":         "",
		".toolongx": "",
		".m-4":      "",
		"../x":      "",
	}
	for in, want := range tests {
		assert.Equal(t, want, sanitizeExt(in), in)
	}
}
