package frame

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bgrFrame(w, h int, b, g, r byte) Frame {
	data := make([]byte, w*h*3)
	for i := 0; i < w*h; i++ {
		data[i*3], data[i*3+1], data[i*3+2] = b, g, r
	}
	return Frame{Width: w, Height: h, Channels: 3, Data: data}
}

func TestGrayscaleLuminance(t *testing.T) {
	tests := []struct {
		name    string
		b, g, r byte
		want    byte
	}{
		{"black", 0, 0, 0, 0},
		{"white", 255, 255, 255, 255},
		{"pure red", 0, 0, 255, 77},
		{"pure green", 0, 255, 0, 149},
		{"pure blue", 255, 0, 0, 29},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gray := Grayscale(bgrFrame(4, 2, tt.b, tt.g, tt.r))
			require.NoError(t, gray.Validate())
			assert.Equal(t, 1, gray.Channels)
			for _, v := range gray.Data {
				assert.Equal(t, tt.want, v)
			}
		})
	}
}

func TestGrayscaleIdempotent(t *testing.T) {
	once := Grayscale(bgrFrame(3, 3, 10, 120, 200))
	twice := Grayscale(once)
	assert.Equal(t, once, twice)
}

func TestGrayscaleBGRA(t *testing.T) {
	f := Frame{Width: 1, Height: 2, Channels: 4, Data: []byte{0, 0, 255, 9, 255, 255, 255, 9}}
	gray := Grayscale(f)
	assert.Equal(t, []byte{77, 255}, gray.Data)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, bgrFrame(2, 2, 1, 2, 3).Validate())
	assert.Error(t, Frame{Width: 2, Height: 2, Channels: 3, Data: make([]byte, 5)}.Validate())
	assert.Error(t, Frame{Width: 2, Height: 2, Channels: 2, Data: make([]byte, 8)}.Validate())
	assert.Error(t, Frame{Width: 0, Height: 2, Channels: 1}.Validate())
}

func TestPixFmt(t *testing.T) {
	for channels, want := range map[int]string{1: "gray", 3: "bgr24", 4: "bgra"} {
		got, err := Format{Channels: channels}.PixFmt()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := Format{Channels: 2}.PixFmt()
	assert.Error(t, err)
}

func TestImageSwapsChannels(t *testing.T) {
	img := bgrFrame(1, 1, 1, 2, 3).Image()
	rgba, ok := img.(*image.RGBA)
	require.True(t, ok)
	assert.Equal(t, []byte{3, 2, 1, 255}, rgba.Pix)

	gray := Grayscale(bgrFrame(2, 1, 0, 0, 0)).Image()
	_, ok = gray.(*image.Gray)
	assert.True(t, ok)
}

func TestThumbnailKeepsAspect(t *testing.T) {
	thumb := Thumbnail(bgrFrame(640, 480, 0, 0, 0), 320, 320)
	assert.Equal(t, 320, thumb.Bounds().Dx())
	assert.Equal(t, 240, thumb.Bounds().Dy())
}
