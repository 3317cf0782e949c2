// Package led drives the belly-mounted NeoPixel strip over SPI.
package led

import (
	"fmt"
	"sync"

	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi"
	"periph.io/x/periph/conn/spi/spireg"
	"periph.io/x/periph/host"

	"github.com/citydrone/ground-station/internal/logger"
)

// Controller is the LED surface the command dispatcher talks to.
type Controller interface {
	SetColor(r, g, b uint8) error
	Off() error
	Close() error
}

// WS2812 bit timing emulated at 2.4 MHz SPI: every data bit becomes
// three SPI bits, 0 -> 100, 1 -> 110.
const spiFreq = 2400 * physic.KiloHertz

// Strip is a WS2812 chain on an SPI bus.
type Strip struct {
	mu    sync.Mutex
	port  spi.PortCloser
	conn  spi.Conn
	count int
}

// OpenStrip opens the SPI device (e.g. "/dev/spidev0.0" or "SPI0.0")
// driving count pixels.
func OpenStrip(dev string, count int) (*Strip, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host drivers: %w", err)
	}
	port, err := spireg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("open spi %s: %w", dev, err)
	}
	conn, err := port.Connect(spiFreq, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("configure spi %s: %w", dev, err)
	}
	logger.Info("LED", "strip of %d pixel(s) on %s", count, dev)
	return &Strip{port: port, conn: conn, count: count}, nil
}

// SetColor lights the whole strip with one color.
func (s *Strip) SetColor(r, g, b uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// WS2812 wants GRB order.
	pixel := encodeByte(g)
	pixel = append(pixel, encodeByte(r)...)
	pixel = append(pixel, encodeByte(b)...)

	frame := make([]byte, 0, len(pixel)*s.count+latchBytes)
	for i := 0; i < s.count; i++ {
		frame = append(frame, pixel...)
	}
	// Low tail holds the line down long enough to latch.
	frame = append(frame, make([]byte, latchBytes)...)

	if err := s.conn.Tx(frame, nil); err != nil {
		return fmt.Errorf("led tx: %w", err)
	}
	return nil
}

// Off blanks the strip.
func (s *Strip) Off() error {
	return s.SetColor(0, 0, 0)
}

// Close blanks the strip and releases the bus.
func (s *Strip) Close() error {
	s.Off()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port.Close()
}

// 80 us of zeros at 2.4 MHz.
const latchBytes = 24

// encodeByte expands one data byte into its three-for-one SPI wire
// form, MSB first.
func encodeByte(b byte) []byte {
	var bits uint32
	for i := 7; i >= 0; i-- {
		bits <<= 3
		if b&(1<<i) != 0 {
			bits |= 0b110
		} else {
			bits |= 0b100
		}
	}
	return []byte{byte(bits >> 16), byte(bits >> 8), byte(bits)}
}
