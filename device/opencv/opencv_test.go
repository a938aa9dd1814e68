package opencv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/orbitcam/orbitcam/device"
	"github.com/orbitcam/orbitcam/experiment"
)

func TestRegistered(t *testing.T) {
	assert.True(t, device.IsValidDevice(Name))
}

func TestProperties_MapSettings(t *testing.T) {
	props := properties(experiment.CameraSettings{Width: 2592, Height: 1944, FrameRate: 15})

	require.Len(t, props, 3)
	assert.Equal(t, property{gocv.VideoCaptureFrameWidth, 2592}, props[0])
	assert.Equal(t, property{gocv.VideoCaptureFrameHeight, 1944}, props[1])
	assert.Equal(t, property{gocv.VideoCaptureFPS, 15}, props[2])
}

func TestCapture_BeforeConfigure(t *testing.T) {
	c := New(0)
	assert.Error(t, c.Capture(t.TempDir()+"/x.jpg"))
	assert.NoError(t, c.Close())
}
