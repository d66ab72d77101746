// Package muxer combines separately-sourced video and audio streams into one
// fragmented MP4 container through an ffmpeg subprocess, on the fly. Video is
// copied bit-for-bit; audio is transcoded to AAC. Output fragments are
// readable as ffmpeg flushes them, so the consumer never waits for subprocess
// exit before forwarding bytes.
package muxer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/rs/zerolog"
)

// MuxError indicates the mux pipeline failed. Cause carries the underlying
// input or subprocess failure when known.
type MuxError struct {
	Stage string
	Cause error
}

func (e *MuxError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("mux failed: %s: %v", e.Stage, e.Cause)
	}
	return fmt.Sprintf("mux failed: %s", e.Stage)
}

func (e *MuxError) Unwrap() error { return e.Cause }

// Engine runs ffmpeg with two piped inputs and a piped output.
type Engine struct {
	Path   string
	logger zerolog.Logger
}

// NewEngine returns an Engine using the given ffmpeg binary.
// If path is empty, "ffmpeg" from PATH is used.
func NewEngine(path string, logger zerolog.Logger) *Engine {
	if path == "" {
		path = "ffmpeg"
	}
	return &Engine{Path: path, logger: logger}
}

// Available checks that the configured binary is executable.
func (e *Engine) Available() bool {
	_, err := exec.LookPath(e.Path)
	return err == nil
}

// The two inputs are handed to ffmpeg as inherited descriptors: ExtraFiles[0]
// becomes fd 3 and ExtraFiles[1] becomes fd 4 in the child.
func muxArgs() []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:3",
		"-i", "pipe:4",
		"-map", "0:v:0", "-c:v", "copy",
		"-map", "1:a:0", "-c:a", "aac",
		"-movflags", "frag_keyframe+empty_moov",
		"-f", "mp4",
		"pipe:1",
	}
}

// Mux starts the subprocess and returns a reader over its muxed output. The
// reader yields *MuxError if either input errors or the subprocess exits
// non-zero. Closing the reader aborts the subprocess and reaps it.
func (e *Engine) Mux(ctx context.Context, video, audio io.Reader) (io.ReadCloser, error) {
	ctx, cancel := context.WithCancel(ctx)

	videoR, videoW, err := os.Pipe()
	if err != nil {
		cancel()
		return nil, err
	}
	audioR, audioW, err := os.Pipe()
	if err != nil {
		cancel()
		videoR.Close()
		videoW.Close()
		return nil, err
	}

	cmd := exec.CommandContext(ctx, e.Path, muxArgs()...)
	cmd.ExtraFiles = []*os.File{videoR, audioR}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		closeAll(videoR, videoW, audioR, audioW)
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		closeAll(videoR, videoW, audioR, audioW)
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		cancel()
		closeAll(videoR, videoW, audioR, audioW)
		return nil, &MuxError{Stage: "start", Cause: err}
	}

	// The child holds its own duplicates of the read ends.
	videoR.Close()
	audioR.Close()

	out := &output{
		cancel: cancel,
		cmd:    cmd,
		stdout: stdout,
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			e.logger.Debug().Str("ffmpeg", scanner.Text()).Msg("subprocess stderr")
		}
	}()

	feed := func(dst *os.File, src io.Reader, stage string) {
		defer dst.Close()
		if _, err := io.Copy(dst, src); err != nil {
			out.fail(stage, err)
		}
	}
	go feed(videoW, video, "video input")
	go feed(audioW, audio, "audio input")

	return out, nil
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		f.Close()
	}
}

// output bridges the push-based subprocess to a pull-based reader with three
// terminal signals: data, end-of-stream, error.
type output struct {
	cancel context.CancelFunc
	cmd    *exec.Cmd
	stdout io.ReadCloser

	causeMu sync.Mutex
	stage   string
	cause   error

	waitOnce sync.Once
	waitErr  error
}

// fail records the first pipeline failure and aborts the subprocess.
func (o *output) fail(stage string, err error) {
	o.causeMu.Lock()
	if o.cause == nil {
		o.stage = stage
		o.cause = err
	}
	o.causeMu.Unlock()
	o.cancel()
}

func (o *output) failure() (string, error) {
	o.causeMu.Lock()
	defer o.causeMu.Unlock()
	return o.stage, o.cause
}

func (o *output) wait() error {
	o.waitOnce.Do(func() {
		o.waitErr = o.cmd.Wait()
	})
	return o.waitErr
}

func (o *output) Read(p []byte) (int, error) {
	n, err := o.stdout.Read(p)
	if err == nil {
		return n, nil
	}
	if err != io.EOF {
		return n, o.terminalError(err)
	}
	// Natural end of stdout: reap the subprocess and decide whether the run
	// actually succeeded.
	waitErr := o.wait()
	if stage, cause := o.failure(); cause != nil {
		return n, &MuxError{Stage: stage, Cause: cause}
	}
	if waitErr != nil {
		return n, &MuxError{Stage: "subprocess", Cause: waitErr}
	}
	return n, io.EOF
}

func (o *output) terminalError(err error) error {
	if stage, cause := o.failure(); cause != nil {
		return &MuxError{Stage: stage, Cause: cause}
	}
	return &MuxError{Stage: "output", Cause: err}
}

// Close aborts the subprocess if still running and reaps it. Safe to call
// after end-of-stream.
func (o *output) Close() error {
	o.cancel()
	o.stdout.Close()
	o.wait()
	return nil
}
