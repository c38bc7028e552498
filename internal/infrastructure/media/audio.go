package media

import (
	"context"
	"log/slog"
	"os"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/davidleathers/deepguard-backend/internal/domain/errors"
	"github.com/davidleathers/deepguard-backend/internal/domain/risk"
)

// FFmpegNormalizer converts uploaded audio to 16 kHz mono 16-bit PCM WAV.
type FFmpegNormalizer struct {
	tempDir string
	logger  *slog.Logger
	// transcode is swapped in tests
	transcode func(ctx context.Context, in, out string) (string, error)
}

// NewFFmpegNormalizer writes normalized copies into tempDir ("" means the
// OS temp directory).
func NewFFmpegNormalizer(tempDir string, logger *slog.Logger) *FFmpegNormalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpegNormalizer{tempDir: tempDir, logger: logger, transcode: transcodeWAV}
}

// Normalize returns audio unchanged when it is already a canonical WAV and
// otherwise a new artifact the caller must remove.
func (n *FFmpegNormalizer) Normalize(ctx context.Context, audio risk.AudioArtifact) (risk.AudioArtifact, error) {
	if audio.Format == "wav" {
		if info, err := ValidateWAV(audio.Path); err == nil && info.Canonical() {
			audio.SampleRate = info.SampleRate
			return audio, nil
		}
	}

	out, err := os.CreateTemp(n.tempDir, "normalized-*.wav")
	if err != nil {
		return risk.AudioArtifact{}, errors.NewInternalError("failed to create temp file").WithCause(err)
	}
	outPath := out.Name()
	out.Close()

	stderr, err := n.transcode(ctx, audio.Path, outPath)
	if err != nil {
		_ = os.Remove(outPath)
		if ctx.Err() != nil {
			return risk.AudioArtifact{}, ctx.Err()
		}
		n.logger.WarnContext(ctx, "audio transcode failed",
			"format", audio.Format,
			"ffmpeg", stderr,
			"error", err)
		return risk.AudioArtifact{}, errors.NewUnsupportedFormatError(audio.Format, "audio could not be converted to wav").WithCause(err)
	}

	info, err := ValidateWAV(outPath)
	if err != nil || !info.Canonical() {
		_ = os.Remove(outPath)
		appErr := errors.NewUnsupportedFormatError(audio.Format, "audio contains no decodable samples")
		if err != nil {
			appErr = appErr.WithCause(err)
		}
		return risk.AudioArtifact{}, appErr
	}

	return risk.AudioArtifact{
		Path:        outPath,
		Format:      "wav",
		SampleRate:  info.SampleRate,
		ContentType: "audio/wav",
	}, nil
}

func transcodeWAV(ctx context.Context, in, out string) (string, error) {
	stream := ffmpeg.Input(in).
		Output(out, ffmpeg.KwArgs{
			"ar":     CanonicalSampleRate,
			"ac":     CanonicalChannels,
			"acodec": "pcm_s16le",
			"f":      "wav",
		}).
		OverWriteOutput()
	return run(command(ctx, stream))
}
