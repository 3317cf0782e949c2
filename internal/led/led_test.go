package led

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeByte(t *testing.T) {
	// 0x00: eight "100" cells.
	assert.Equal(t, []byte{0b10010010, 0b01001001, 0b00100100}, encodeByte(0x00))
	// 0xFF: eight "110" cells.
	assert.Equal(t, []byte{0b11011011, 0b01101101, 0b10110110}, encodeByte(0xFF))
	// 0x80: one "110" then seven "100".
	assert.Equal(t, []byte{0b11010010, 0b01001001, 0b00100100}, encodeByte(0x80))
}
