package flight

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandleFrameHeadingSources(t *testing.T) {
	v := &SerialVehicle{}

	hud := make([]byte, 20)
	binary.LittleEndian.PutUint32(hud[4:8], floatBits(3.5))
	binary.LittleEndian.PutUint16(hud[16:18], uint16(int16(90)))
	v.handleFrame(mavFrame{msgID: msgVFRHUD, payload: hud})
	assert.Equal(t, 90.0, v.Heading())
	assert.InDelta(t, 3.5, v.Groundspeed(), 1e-6)

	// Once GLOBAL_POSITION_INT supplies a heading it wins.
	gp := make([]byte, 28)
	binary.LittleEndian.PutUint16(gp[26:28], 18000)
	v.handleFrame(mavFrame{msgID: msgGlobalPositionInt, payload: gp})
	assert.Equal(t, 180.0, v.Heading())

	v.handleFrame(mavFrame{msgID: msgVFRHUD, payload: hud})
	assert.Equal(t, 180.0, v.Heading())
}
