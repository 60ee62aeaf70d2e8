// Package frame holds the raw video frames passed from cameras to encoders.
package frame

import (
	"fmt"
	"image"

	"github.com/nfnt/resize"
)

// Frame is one packed image. Three channel frames are BGR, four channel frames
// are BGRA, matching what OpenCV captures deliver.
type Frame struct {
	Width    int
	Height   int
	Channels int
	Data     []byte
}

// Format describes the frames a capture produces and an encoder expects.
type Format struct {
	Width    int
	Height   int
	Channels int
	FPS      int
}

// Format returns the geometry of f with the given frame rate.
func (f Frame) Format(fps int) Format {
	return Format{Width: f.Width, Height: f.Height, Channels: f.Channels, FPS: fps}
}

// Size is the expected number of bytes in Data.
func (f Format) Size() int {
	return f.Width * f.Height * f.Channels
}

// WithChannels returns a copy of f with a different channel count.
func (f Format) WithChannels(n int) Format {
	f.Channels = n
	return f
}

// PixFmt returns the ffmpeg rawvideo pixel format name for the channel count.
func (f Format) PixFmt() (string, error) {
	switch f.Channels {
	case 1:
		return "gray", nil
	case 3:
		return "bgr24", nil
	case 4:
		return "bgra", nil
	default:
		return "", fmt.Errorf("unsupported channel count %d", f.Channels)
	}
}

// Validate checks that the frame geometry matches its data.
func (f Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", f.Width, f.Height)
	}
	if f.Channels != 1 && f.Channels != 3 && f.Channels != 4 {
		return fmt.Errorf("unsupported channel count %d", f.Channels)
	}
	if want := f.Width * f.Height * f.Channels; len(f.Data) != want {
		return fmt.Errorf("frame data is %d bytes, want %d for %dx%dx%d", len(f.Data), want, f.Width, f.Height, f.Channels)
	}
	return nil
}

// Grayscale converts f to a single luminance channel using BT.601 weights.
// A frame that is already single channel is returned unchanged.
func Grayscale(f Frame) Frame {
	if f.Channels < 3 {
		return f
	}
	n := f.Width * f.Height
	if len(f.Data) < n*f.Channels {
		n = len(f.Data) / f.Channels
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		p := f.Data[i*f.Channels:]
		b, g, r := uint32(p[0]), uint32(p[1]), uint32(p[2])
		out[i] = byte((29*b + 150*g + 77*r + 128) >> 8)
	}
	return Frame{Width: f.Width, Height: f.Height, Channels: 1, Data: out}
}

// Image converts f to an image.Image for display.
func (f Frame) Image() image.Image {
	rect := image.Rect(0, 0, f.Width, f.Height)
	if f.Channels == 1 {
		img := image.NewGray(rect)
		copy(img.Pix, f.Data)
		return img
	}
	img := image.NewRGBA(rect)
	n := f.Width * f.Height
	for i := 0; i < n && (i+1)*f.Channels <= len(f.Data); i++ {
		src := f.Data[i*f.Channels:]
		dst := img.Pix[i*4:]
		dst[0], dst[1], dst[2], dst[3] = src[2], src[1], src[0], 0xff
		if f.Channels == 4 {
			dst[3] = src[3]
		}
	}
	return img
}

// Thumbnail returns f scaled to fit within maxWidth x maxHeight, keeping the
// aspect ratio. Frames already small enough are not resized.
func Thumbnail(f Frame, maxWidth, maxHeight uint) image.Image {
	return resize.Thumbnail(maxWidth, maxHeight, f.Image(), resize.Bilinear)
}
