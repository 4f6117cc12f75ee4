package audio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	playerrors "github.com/jscyril/supersonic/pkg/errors"
)

// ffmpegBinary decodes the containers beep has no native decoder for
// (webm, ogg, mp4). Looked up on PATH at decode time.
var ffmpegBinary = "ffmpeg"

const (
	pcmFrameSize  = 4 // s16le stereo
	pcmReadBuffer = 64 << 10
	stderrTail    = 512
)

var pcmFormat = beep.Format{SampleRate: OutputSampleRate, NumChannels: 2, Precision: 2}

// TranscoderAvailable reports why ffmpeg can't be used, or nil.
func TranscoderAvailable() error {
	_, err := exec.LookPath(ffmpegBinary)
	return err
}

func transcodeArgs(at time.Duration) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if at > 0 {
		args = append(args, "-ss", strconv.FormatFloat(at.Seconds(), 'f', 3, 64))
	}
	return append(args,
		"-i", "pipe:0",
		"-vn",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", "2",
		"-ar", strconv.Itoa(int(OutputSampleRate)),
		"pipe:1",
	)
}

// decodeFFmpeg pipes r through ffmpeg and streams the resulting PCM,
// skipping the first at of audio. The result has no known length and
// can't be seeked; a seek starts a new transcode.
func decodeFFmpeg(r io.ReadCloser, at time.Duration) (beep.StreamSeekCloser, beep.Format, error) {
	path, err := exec.LookPath(ffmpegBinary)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("%w: ffmpeg not available: %v", playerrors.ErrInvalidFormat, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, path, transcodeArgs(at)...)
	cmd.Stdin = r
	stderr := &tailBuffer{max: stderrTail}
	cmd.Stderr = stderr
	out, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, beep.Format{}, err
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, beep.Format{}, fmt.Errorf("start ffmpeg: %w", err)
	}

	var (
		once    sync.Once
		waitErr error
	)
	wait := func() error {
		once.Do(func() {
			if err := cmd.Wait(); err != nil && ctx.Err() == nil {
				waitErr = fmt.Errorf("ffmpeg: %v: %s", err, strings.TrimSpace(stderr.String()))
			}
		})
		return waitErr
	}
	closer := func() error {
		cancel()
		// the stdin copy only returns once the body does
		r.Close()
		wait()
		return nil
	}
	return newPCMStreamer(out, wait, closer), pcmFormat, nil
}

// pcmStreamer reads interleaved little-endian 16-bit stereo frames.
type pcmStreamer struct {
	r     *bufio.Reader
	wait  func() error
	close func() error
	buf   []byte
	pos   int
	err   error
	done  bool
}

func newPCMStreamer(r io.Reader, wait, close func() error) *pcmStreamer {
	return &pcmStreamer{
		r:     bufio.NewReaderSize(r, pcmReadBuffer),
		wait:  wait,
		close: close,
	}
}

func (p *pcmStreamer) Stream(samples [][2]float64) (int, bool) {
	if p.done {
		return 0, false
	}
	need := len(samples) * pcmFrameSize
	if cap(p.buf) < need {
		p.buf = make([]byte, need)
	}
	buf := p.buf[:need]

	n, err := io.ReadFull(p.r, buf)
	frames := n / pcmFrameSize
	for i := 0; i < frames; i++ {
		b := buf[i*pcmFrameSize:]
		samples[i][0] = float64(int16(binary.LittleEndian.Uint16(b[0:]))) / 32768
		samples[i][1] = float64(int16(binary.LittleEndian.Uint16(b[2:]))) / 32768
	}
	p.pos += frames

	if err != nil {
		p.done = true
		if err != io.EOF && err != io.ErrUnexpectedEOF {
			p.err = err
		} else if p.wait != nil {
			p.err = p.wait()
		}
		if frames == 0 {
			return 0, false
		}
	}
	return frames, true
}

func (p *pcmStreamer) Err() error { return p.err }

func (p *pcmStreamer) Len() int { return 0 }

func (p *pcmStreamer) Position() int { return p.pos }

func (p *pcmStreamer) Seek(n int) error {
	if n == p.pos {
		return nil
	}
	return ErrSeekUnsupported
}

func (p *pcmStreamer) Close() error {
	if p.close == nil {
		return nil
	}
	return p.close()
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (t *tailBuffer) Write(b []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(b)
	if extra := t.buf.Len() - t.max; extra > 0 {
		t.buf.Next(extra)
	}
	return len(b), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}
