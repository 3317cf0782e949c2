// Package encoder turns raw BGR frames into an H.264 Annex-B stream
// through an external ffmpeg process.
package encoder

import (
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v3/pkg/media/h264reader"
	"gocv.io/x/gocv"

	"github.com/citydrone/ground-station/internal/logger"
	"github.com/citydrone/ground-station/pkg/types"
)

const frameChanSize = 30

// Encoder feeds BGR frames into ffmpeg's stdin and emits encoded
// access units on Frames(). Zero-latency x264 keeps the glass-to-glass
// delay low enough for piloting.
type Encoder struct {
	width  int
	height int
	fps    int

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	frames chan *types.VideoFrame

	frameNum atomic.Uint64
	dropped  atomic.Uint64

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New starts an ffmpeg encoder for width x height input at fps.
func New(width, height, fps int) (*Encoder, error) {
	bin, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	size := fmt.Sprintf("%dx%d", width, height)
	cmd := exec.Command(bin,
		"-hide_banner", "-loglevel", "error",
		"-f", "rawvideo", "-pix_fmt", "bgr24",
		"-s", size, "-r", strconv.Itoa(fps), "-i", "-",
		"-an",
		"-c:v", "libx264",
		"-preset", "ultrafast", "-tune", "zerolatency",
		"-profile:v", "baseline", "-pix_fmt", "yuv420p",
		// One keyframe per second so new viewers sync quickly.
		"-g", strconv.Itoa(fps), "-keyint_min", strconv.Itoa(fps),
		"-f", "h264", "-",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("encoder stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("encoder stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	e := &Encoder{
		width:  width,
		height: height,
		fps:    fps,
		cmd:    cmd,
		stdin:  stdin,
		frames: make(chan *types.VideoFrame, frameChanSize),
	}
	e.wg.Add(1)
	go e.readLoop(stdout)

	logger.Info("Encoder", "ffmpeg started (%s @ %d fps)", size, fps)
	return e, nil
}

// Frames is the encoded output stream. Closed when ffmpeg exits.
func (e *Encoder) Frames() <-chan *types.VideoFrame { return e.frames }

// Dropped reports output frames discarded because the consumer lagged.
func (e *Encoder) Dropped() uint64 { return e.dropped.Load() }

// WriteFrame pushes one BGR frame into the encoder.
func (e *Encoder) WriteFrame(img gocv.Mat) error {
	if img.Cols() != e.width || img.Rows() != e.height {
		return fmt.Errorf("encoder fed %dx%d, want %dx%d",
			img.Cols(), img.Rows(), e.width, e.height)
	}
	if _, err := e.stdin.Write(img.ToBytes()); err != nil {
		return fmt.Errorf("encoder write: %w", err)
	}
	return nil
}

// readLoop regroups ffmpeg's NAL output into access units: parameter
// and SEI units attach to the next coded slice.
func (e *Encoder) readLoop(stdout io.Reader) {
	defer e.wg.Done()
	defer close(e.frames)

	reader, err := h264reader.NewReader(stdout)
	if err != nil {
		logger.Error("Encoder", "h264 reader: %v", err)
		return
	}

	var pending []byte
	isIDR := false
	for {
		nal, err := reader.NextNAL()
		if err != nil {
			if err != io.EOF {
				logger.Warn("Encoder", "h264 stream ended: %v", err)
			}
			return
		}

		pending = append(pending, 0, 0, 0, 1)
		pending = append(pending, nal.Data...)

		switch uint8(nal.UnitType) {
		case types.NALTypeIDR:
			isIDR = true
			fallthrough
		case types.NALTypeSlice:
			e.emit(pending, isIDR)
			pending = nil
			isIDR = false
		}
	}
}

func (e *Encoder) emit(data []byte, isIDR bool) {
	frame := &types.VideoFrame{
		Data:      data,
		Timestamp: time.Now(),
		FrameNum:  e.frameNum.Add(1) - 1,
		IsIDR:     isIDR,
		Width:     e.width,
		Height:    e.height,
	}
	select {
	case e.frames <- frame:
	default:
		e.dropped.Add(1)
	}
}

// Close shuts the encoder down and reaps the process.
func (e *Encoder) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.stdin.Close()
		done := make(chan error, 1)
		go func() { done <- e.cmd.Wait() }()
		select {
		case err = <-done:
		case <-time.After(3 * time.Second):
			e.cmd.Process.Kill()
			err = <-done
		}
		e.wg.Wait()
	})
	return err
}
