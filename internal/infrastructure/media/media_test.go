package media

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davidleathers/deepguard-backend/internal/domain/errors"
	"github.com/davidleathers/deepguard-backend/internal/domain/risk"
)

func writeWAV(t *testing.T, path string, sampleRate, channels, samples int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           make([]int, samples*channels),
		SourceBitDepth: 16,
	}
	for i := range buf.Data {
		buf.Data[i] = (i % 200) - 100
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
}

func TestValidateWAV(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.wav")
	writeWAV(t, good, 16000, 1, 16000)
	info, err := ValidateWAV(good)
	require.NoError(t, err)
	assert.True(t, info.Canonical())
	assert.Equal(t, 16, info.BitDepth)
	assert.InDelta(t, 1.0, info.Duration.Seconds(), 0.01)

	stereo := filepath.Join(dir, "stereo.wav")
	writeWAV(t, stereo, 44100, 2, 4410)
	info, err = ValidateWAV(stereo)
	require.NoError(t, err)
	assert.False(t, info.Canonical())

	junk := filepath.Join(dir, "junk.wav")
	require.NoError(t, os.WriteFile(junk, []byte("not a riff file at all"), 0o600))
	_, err = ValidateWAV(junk)
	assert.Error(t, err)

	_, err = ValidateWAV(filepath.Join(dir, "missing.wav"))
	assert.Error(t, err)
}

func TestFFmpegNormalizer(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	t.Run("canonical wav is passed through", func(t *testing.T) {
		path := filepath.Join(dir, "call.wav")
		writeWAV(t, path, 16000, 1, 1600)

		n := NewFFmpegNormalizer(dir, nil)
		n.transcode = func(context.Context, string, string) (string, error) {
			t.Fatal("transcode must not run")
			return "", nil
		}

		out, err := n.Normalize(ctx, risk.NewAudioArtifact(path, "audio/wav"))
		require.NoError(t, err)
		assert.Equal(t, path, out.Path)
		assert.Equal(t, 16000, out.SampleRate)
	})

	t.Run("other formats are transcoded", func(t *testing.T) {
		in := filepath.Join(dir, "call.mp3")
		require.NoError(t, os.WriteFile(in, []byte("ID3"), 0o600))

		n := NewFFmpegNormalizer(dir, nil)
		n.transcode = func(_ context.Context, src, dst string) (string, error) {
			assert.Equal(t, in, src)
			writeWAV(t, dst, 16000, 1, 800)
			return "", nil
		}

		out, err := n.Normalize(ctx, risk.NewAudioArtifact(in, "audio/mpeg"))
		require.NoError(t, err)
		assert.NotEqual(t, in, out.Path)
		assert.Equal(t, "wav", out.Format)
		assert.Equal(t, "audio/wav", out.ContentType)
		assert.FileExists(t, out.Path)
		require.NoError(t, out.Remove())
	})

	t.Run("transcode failure is unsupported format", func(t *testing.T) {
		in := filepath.Join(dir, "broken.ogg")
		require.NoError(t, os.WriteFile(in, []byte("garbage"), 0o600))

		n := NewFFmpegNormalizer(dir, nil)
		var tmp string
		n.transcode = func(_ context.Context, _, dst string) (string, error) {
			tmp = dst
			return "Invalid data found when processing input", fmt.Errorf("exit status 1")
		}

		_, err := n.Normalize(ctx, risk.NewAudioArtifact(in, "audio/ogg"))
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeUnsupportedFormat))
		assert.Equal(t, 415, errors.GetStatusCode(err))
		assert.NoFileExists(t, tmp)
	})

	t.Run("empty output is unsupported format", func(t *testing.T) {
		in := filepath.Join(dir, "silent.m4a")
		require.NoError(t, os.WriteFile(in, []byte("x"), 0o600))

		n := NewFFmpegNormalizer(dir, nil)
		n.transcode = func(context.Context, string, string) (string, error) { return "", nil }

		_, err := n.Normalize(ctx, risk.NewAudioArtifact(in, ""))
		assert.True(t, errors.IsType(err, errors.ErrorTypeUnsupportedFormat))
	})
}

func TestParseProbe(t *testing.T) {
	dims, err := parseProbe(`{"streams":[{"codec_type":"audio"},{"codec_type":"video","width":640,"height":360}]}`)
	require.NoError(t, err)
	assert.Equal(t, Dimensions{Width: 640, Height: 360}, dims)

	_, err = parseProbe(`{"streams":[{"codec_type":"audio"}]}`)
	assert.Error(t, err)

	_, err = parseProbe(`not json`)
	assert.Error(t, err)
}

// rgbStream builds n frames of w x h rgb24 where frame i is filled with byte i.
func rgbStream(n, w, h int) []byte {
	var buf bytes.Buffer
	for i := 0; i < n; i++ {
		buf.Write(bytes.Repeat([]byte{byte(i)}, w*h*3))
	}
	return buf.Bytes()
}

func TestRawFrameSource(t *testing.T) {
	data := append(rgbStream(3, 4, 2), 1, 2, 3) // trailing partial frame
	closed := false
	src := newRawFrameSource(io.NopCloser(bytes.NewReader(data)), Dimensions{Width: 4, Height: 2}, func() error {
		closed = true
		return nil
	})

	for i := 0; i < 3; i++ {
		img, err := src.Next()
		require.NoError(t, err)
		assert.Equal(t, 4, img.Bounds().Dx())
		r, g, b, a := img.At(1, 1).RGBA()
		assert.Equal(t, uint32(i)*0x101, r)
		assert.Equal(t, r, g)
		assert.Equal(t, r, b)
		assert.Equal(t, uint32(0xffff), a)
	}

	_, err := src.Next()
	assert.ErrorIs(t, err, io.EOF)
	require.NoError(t, src.Close())
	assert.True(t, closed)
}

func stubDecoder(probe string, probeErr error, stream []byte) *FFmpegFrameDecoder {
	return &FFmpegFrameDecoder{
		probe: func(context.Context, string) (string, error) { return probe, probeErr },
		start: func(context.Context, string) (io.ReadCloser, func() error, error) {
			return io.NopCloser(bytes.NewReader(stream)), nil, nil
		},
	}
}

func TestFFmpegFrameDecoder(t *testing.T) {
	ctx := context.Background()
	video := risk.NewVideoArtifact("/tmp/clip.mp4", "video/mp4")
	probe := `{"streams":[{"codec_type":"video","width":8,"height":8}]}`

	t.Run("first frame as jpeg", func(t *testing.T) {
		d := stubDecoder(probe, nil, rgbStream(2, 8, 8))
		data, err := d.FirstFrameJPEG(ctx, video)
		require.NoError(t, err)

		img, err := jpeg.Decode(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, 8, img.Bounds().Dx())
	})

	t.Run("video without frames", func(t *testing.T) {
		d := stubDecoder(probe, nil, nil)
		_, err := d.FirstFrameJPEG(ctx, video)
		assert.True(t, errors.IsType(err, errors.ErrorTypeUnsupportedFormat))
	})

	t.Run("probe failure", func(t *testing.T) {
		d := stubDecoder("", fmt.Errorf("moov atom not found"), nil)
		_, err := d.Open(ctx, video)
		assert.True(t, errors.IsType(err, errors.ErrorTypeUnsupportedFormat))
	})

	t.Run("cancelled before probing", func(t *testing.T) {
		d := stubDecoder(probe, nil, rgbStream(1, 8, 8))
		d.probe = func(context.Context, string) (string, error) {
			t.Fatal("probe must not run after cancellation")
			return "", nil
		}
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := d.Open(cancelled, video)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("deadline during probe", func(t *testing.T) {
		short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		d := stubDecoder("", nil, nil)
		d.probe = func(ctx context.Context, _ string) (string, error) {
			<-ctx.Done()
			return "", fmt.Errorf("signal: killed")
		}

		_, err := d.Open(short, video)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("probe honours an expired deadline", func(t *testing.T) {
		expired, cancel := context.WithDeadline(ctx, time.Now().Add(-time.Second))
		defer cancel()
		_, err := probeVideo(expired, "/tmp/clip.mp4")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("counts frames", func(t *testing.T) {
		d := stubDecoder(probe, nil, rgbStream(11, 8, 8))
		src, err := d.Open(ctx, video)
		require.NoError(t, err)
		defer src.Close()

		n := 0
		for {
			if _, err := src.Next(); err != nil {
				assert.ErrorIs(t, err, io.EOF)
				break
			}
			n++
		}
		assert.Equal(t, 11, n)
	})
}
