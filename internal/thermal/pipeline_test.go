package thermal

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

type fakeDevice struct {
	raw []byte
}

func (d *fakeDevice) IsOpened() bool { return true }

func (d *fakeDevice) Read(dst *gocv.Mat) bool {
	m, err := gocv.NewMatFromBytes(SensorHeight*2, SensorWidth, gocv.MatTypeCV8UC2, d.raw)
	if err != nil {
		return false
	}
	defer m.Close()
	m.CopyTo(dst)
	time.Sleep(15 * time.Millisecond)
	return true
}

func (d *fakeDevice) Close() error { return nil }

// junkDevice reads successfully but with a geometry the processor
// cannot split.
type junkDevice struct{}

func (junkDevice) IsOpened() bool { return true }

func (junkDevice) Read(dst *gocv.Mat) bool {
	m := gocv.NewMatWithSize(8, 8, gocv.MatTypeCV8UC2)
	defer m.Close()
	m.CopyTo(dst)
	time.Sleep(15 * time.Millisecond)
	return true
}

func (junkDevice) Close() error { return nil }

func TestPipelinePlaceholderBeforeStart(t *testing.T) {
	p := NewPipeline(DefaultSettings(), nil)
	f := p.Latest()
	defer f.Close()
	assert.Equal(t, "Waiting for thermal data...", f.Err)
	assert.Equal(t, DisplayWidth, f.Image.Cols())
}

func TestPipelineProducesFrames(t *testing.T) {
	raw := syntheticRaw(t, image.Rect(50, 60, 70, 80))
	rawBytes := raw.ToBytes()
	raw.Close()

	p := NewPipeline(DefaultSettings(), func() (Device, error) {
		return &fakeDevice{raw: rawBytes}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	deadline := time.After(3 * time.Second)
	for {
		f := p.Latest()
		if f.Err == "" {
			assert.InDelta(t, 39.85, f.Stats.Max, 1e-6)
			f.Close()
			break
		}
		f.Close()
		select {
		case <-deadline:
			cancel()
			p.Wait()
			t.Fatal("no processed frame before deadline")
		case <-time.After(20 * time.Millisecond):
		}
	}

	in, out, _ := p.Counters()
	assert.Greater(t, in, uint64(0))
	assert.Greater(t, out, uint64(0))

	cancel()
	p.Wait()
}

func TestPipelineErrorFramePublished(t *testing.T) {
	// A capture the processor cannot split must surface as an error
	// frame, not leave a stale image behind.
	p := NewPipeline(DefaultSettings(), func() (Device, error) {
		return junkDevice{}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	deadline := time.After(3 * time.Second)
	for {
		f := p.Latest()
		if f.Err != "" && f.Err != "Waiting for thermal data..." {
			f.Close()
			break
		}
		f.Close()
		select {
		case <-deadline:
			cancel()
			p.Wait()
			t.Fatal("no error frame before deadline")
		case <-time.After(20 * time.Millisecond):
		}
	}

	cancel()
	p.Wait()
}

func TestPipelineBackPressureDrops(t *testing.T) {
	raw := syntheticRaw(t, image.Rect(50, 60, 70, 80))
	rawBytes := raw.ToBytes()
	raw.Close()

	p := NewPipeline(DefaultSettings(), func() (Device, error) {
		return &fakeDevice{raw: rawBytes}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())

	// Reader alone, processor stalled: the queue must stay bounded
	// and excess frames must be dropped, never block the reader.
	p.wg.Add(1)
	go p.readLoop(ctx)

	deadline := time.After(5 * time.Second)
	for {
		if _, _, dropped := p.Counters(); dropped > 0 {
			break
		}
		select {
		case <-deadline:
			cancel()
			p.Wait()
			t.Fatal("reader never dropped under back-pressure")
		case <-time.After(20 * time.Millisecond):
		}
	}
	assert.LessOrEqual(t, len(p.frames), frameQueueSize)

	// Unstall: processing resumes without restarting anything.
	p.wg.Add(1)
	go p.processLoop(ctx)

	deadline = time.After(5 * time.Second)
	for {
		if _, out, _ := p.Counters(); out > 0 {
			break
		}
		select {
		case <-deadline:
			cancel()
			p.Wait()
			t.Fatal("processing did not resume after unstall")
		case <-time.After(20 * time.Millisecond):
		}
	}

	cancel()
	p.Wait()
}

func TestPipelineReconnectCooldown(t *testing.T) {
	var mu sync.Mutex
	var opens []time.Time

	p := NewPipeline(DefaultSettings(), func() (Device, error) {
		mu.Lock()
		opens = append(opens, time.Now())
		mu.Unlock()
		return nil, errors.New("no such device")
	})
	p.OpenBackoff = time.Millisecond
	p.ReopenCooldown = 200 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	deadline := time.After(5 * time.Second)
	for {
		mu.Lock()
		n := len(opens)
		mu.Unlock()
		if n >= 7 {
			break
		}
		select {
		case <-deadline:
			cancel()
			p.Wait()
			t.Fatal("reader gave up reopening the sensor")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	p.Wait()

	// Attempts 1-5 back off briefly; exactly one cooldown-length gap
	// separates attempt 5 from attempt 6.
	mu.Lock()
	defer mu.Unlock()
	cooldowns := 0
	for i := 1; i < 7; i++ {
		if opens[i].Sub(opens[i-1]) >= p.ReopenCooldown {
			cooldowns++
			assert.Equal(t, 5, i)
		}
	}
	assert.Equal(t, 1, cooldowns)
}

func TestPipelineCancelDuringReopenBackoff(t *testing.T) {
	p := NewPipeline(DefaultSettings(), func() (Device, error) {
		return nil, errors.New("no such device")
	})

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	time.Sleep(50 * time.Millisecond)
	cancel()

	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop during reopen backoff")
	}

	f := p.Latest()
	defer f.Close()
	require.NotEmpty(t, f.Err)
}
