package media

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os/exec"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/davidleathers/deepguard-backend/internal/domain/errors"
	"github.com/davidleathers/deepguard-backend/internal/domain/risk"
	"github.com/davidleathers/deepguard-backend/internal/service/fraud"
)

// probeJPEGQuality is the JPEG quality of face-comparison probes
const probeJPEGQuality = 90

// Dimensions is the pixel size of a video stream
type Dimensions struct {
	Width  int
	Height int
}

// FFmpegFrameDecoder decodes videos to RGB frames through an ffmpeg pipe.
type FFmpegFrameDecoder struct {
	probe func(ctx context.Context, path string) (string, error)
	start func(ctx context.Context, path string) (io.ReadCloser, func() error, error)
}

func NewFFmpegFrameDecoder() *FFmpegFrameDecoder {
	return &FFmpegFrameDecoder{
		probe: probeVideo,
		start: startRawVideo,
	}
}

// probeVideo runs ffprobe bounded by the context deadline, if any.
func probeVideo(ctx context.Context, path string) (string, error) {
	var timeout time.Duration
	if deadline, ok := ctx.Deadline(); ok {
		if timeout = time.Until(deadline); timeout <= 0 {
			return "", context.DeadlineExceeded
		}
	}
	return ffmpeg.ProbeWithTimeout(path, timeout, ffmpeg.KwArgs{})
}

// Open probes the video's dimensions and starts decoding.
func (d *FFmpegFrameDecoder) Open(ctx context.Context, video risk.VideoArtifact) (fraud.FrameSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := d.probe(ctx, video.Path)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, errors.NewUnsupportedFormatError(video.Format, "video could not be probed").WithCause(err)
	}
	dims, err := parseProbe(out)
	if err != nil {
		return nil, errors.NewUnsupportedFormatError(video.Format, err.Error())
	}

	r, wait, err := d.start(ctx, video.Path)
	if err != nil {
		return nil, errors.NewInternalError("failed to start video decoder").WithCause(err)
	}
	return newRawFrameSource(r, dims, wait), nil
}

// FirstFrameJPEG encodes the first decodable frame as JPEG.
func (d *FFmpegFrameDecoder) FirstFrameJPEG(ctx context.Context, video risk.VideoArtifact) ([]byte, error) {
	src, err := d.Open(ctx, video)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	frame, err := src.Next()
	if stderrors.Is(err, io.EOF) {
		return nil, errors.NewUnsupportedFormatError(video.Format, "video has no frames")
	}
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: probeJPEGQuality}); err != nil {
		return nil, errors.NewInternalError("failed to encode probe frame").WithCause(err)
	}
	return buf.Bytes(), nil
}

type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// parseProbe picks the first video stream of ffprobe's JSON output.
func parseProbe(out string) (Dimensions, error) {
	var p probeOutput
	if err := json.Unmarshal([]byte(out), &p); err != nil {
		return Dimensions{}, fmt.Errorf("unreadable probe output: %w", err)
	}
	for _, s := range p.Streams {
		if s.CodecType == "video" && s.Width > 0 && s.Height > 0 {
			return Dimensions{Width: s.Width, Height: s.Height}, nil
		}
	}
	return Dimensions{}, fmt.Errorf("no video stream")
}

func startRawVideo(ctx context.Context, path string) (io.ReadCloser, func() error, error) {
	stream := ffmpeg.Input(path).Output("pipe:", ffmpeg.KwArgs{
		"format":  "rawvideo",
		"pix_fmt": "rgb24",
	})
	cmd := command(ctx, stream)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}
	return stdout, waiter(cmd), nil
}

// waiter stops ffmpeg early when the reader is closed before the end of
// the stream and reaps the process.
func waiter(cmd *exec.Cmd) func() error {
	return func() error {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil
	}
}

// rawFrameSource slices an rgb24 byte stream into frames.
type rawFrameSource struct {
	r    *bufio.Reader
	c    io.Closer
	dims Dimensions
	buf  []byte
	wait func() error
}

func newRawFrameSource(r io.ReadCloser, dims Dimensions, wait func() error) *rawFrameSource {
	return &rawFrameSource{
		r:    bufio.NewReaderSize(r, 1<<16),
		c:    r,
		dims: dims,
		buf:  make([]byte, dims.Width*dims.Height*3),
		wait: wait,
	}
}

// Next returns io.EOF after the last complete frame; a trailing partial
// frame is dropped.
func (s *rawFrameSource) Next() (image.Image, error) {
	if _, err := io.ReadFull(s.r, s.buf); err != nil {
		if stderrors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, s.dims.Width, s.dims.Height))
	for i, j := 0, 0; i < len(s.buf); i, j = i+3, j+4 {
		img.Pix[j] = s.buf[i]
		img.Pix[j+1] = s.buf[i+1]
		img.Pix[j+2] = s.buf[i+2]
		img.Pix[j+3] = 0xff
	}
	return img, nil
}

func (s *rawFrameSource) Close() error {
	err := s.c.Close()
	if s.wait != nil {
		_ = s.wait()
	}
	return err
}
