package fraud

import (
	"context"
	stderrors "errors"
	"image"
	"io"
	"log/slog"

	"golang.org/x/image/draw"

	"github.com/davidleathers/deepguard-backend/internal/domain/errors"
	"github.com/davidleathers/deepguard-backend/internal/domain/risk"
)

// VideoScorer samples frames from a video and averages the classifier's
// fake probability over them.
type VideoScorer struct {
	decoder    FrameDecoder
	classifier FrameClassifier
	skip       int
	size       int
	logger     *slog.Logger
}

// NewVideoScorer creates a video scorer. classifier may be nil, in which case
// every call degrades with MODEL_UNAVAILABLE.
func NewVideoScorer(decoder FrameDecoder, classifier FrameClassifier, cfg VideoConfig, logger *slog.Logger) *VideoScorer {
	if cfg.FrameSkip <= 0 {
		cfg.FrameSkip = DefaultFrameSkip
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = DefaultFrameSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VideoScorer{
		decoder:    decoder,
		classifier: classifier,
		skip:       cfg.FrameSkip,
		size:       cfg.FrameSize,
		logger:     logger,
	}
}

// Ready reports whether a classifier is loaded.
func (s *VideoScorer) Ready(ctx context.Context) bool {
	return s.classifier != nil && s.classifier.Ready(ctx)
}

// Score returns the mean fake probability of frames 0, N, 2N, ... An empty or
// undecodable video scores NeutralScore with frames_analyzed 0 and no error.
func (s *VideoScorer) Score(ctx context.Context, video risk.VideoArtifact) risk.ChannelResult {
	evidence := map[string]interface{}{"frames_analyzed": 0}

	if !s.Ready(ctx) {
		return s.degrade(ctx, errors.NewModelUnavailableError(), evidence)
	}

	src, err := s.decoder.Open(ctx, video)
	if errors.IsType(err, errors.ErrorTypeUnsupportedFormat) {
		s.logger.InfoContext(ctx, "video has no decodable frames",
			"format", video.Format,
			"error", err)
		return risk.NewChannelResult(risk.ChannelVideo, risk.NeutralScore.Float64(), evidence)
	}
	if err != nil {
		return s.degrade(ctx, err, evidence)
	}
	defer src.Close()

	var (
		sum      float64
		analyzed int
	)
	for idx := 0; ; idx++ {
		if err := ctx.Err(); err != nil {
			return s.degrade(ctx, err, evidence)
		}

		frame, err := src.Next()
		if stderrors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return s.degrade(ctx, err, evidence)
		}
		if idx%s.skip != 0 {
			continue
		}

		p, err := s.classifier.Classify(ctx, resizeSquare(frame, s.size))
		if err != nil {
			return s.degrade(ctx, err, evidence)
		}
		sum += p
		analyzed++
	}

	evidence["frames_analyzed"] = analyzed
	if analyzed == 0 {
		return risk.NewChannelResult(risk.ChannelVideo, risk.NeutralScore.Float64(), evidence)
	}
	return risk.NewChannelResult(risk.ChannelVideo, sum/float64(analyzed), evidence)
}

func (s *VideoScorer) degrade(ctx context.Context, err error, evidence map[string]interface{}) risk.ChannelResult {
	s.logger.WarnContext(ctx, "video channel degraded",
		"channel", risk.ChannelVideo,
		"error", err)
	return risk.Degraded(risk.ChannelVideo, err, evidence)
}

// resizeSquare scales src to size x size with bilinear interpolation.
func resizeSquare(src image.Image, size int) image.Image {
	b := src.Bounds()
	if b.Dx() == size && b.Dy() == size {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}
