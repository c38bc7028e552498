package media

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// FFmpegBinary is the executable invoked for transcoding and decoding
const FFmpegBinary = "ffmpeg"

// stderrTail bounds how much ffmpeg diagnostics end up in errors
const stderrTail = 512

// command builds an ffmpeg invocation bound to ctx from a filter graph.
func command(ctx context.Context, stream *ffmpeg.Stream) *exec.Cmd {
	return exec.CommandContext(ctx, FFmpegBinary, stream.GetArgs()...)
}

// run executes cmd and returns ffmpeg's trailing stderr output on failure.
func run(cmd *exec.Cmd) (string, error) {
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return tail(stderr.String()), err
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > stderrTail {
		return s[len(s)-stderrTail:]
	}
	return s
}
