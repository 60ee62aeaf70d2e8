package encoder

import (
	"bufio"
	"context"
	"strings"

	"github.com/owlcms/clickrec/internal/ffmpeg"
	"github.com/owlcms/clickrec/internal/logging"
)

// AutoCodec asks ResolveCodec to probe for the preferred codec.
const AutoCodec = "auto"

// Runner runs ffmpeg and returns everything it printed.
type Runner func(ctx context.Context, name string, args ...string) (string, error)

// Prober checks which video encoders the local ffmpeg can use.
type Prober struct {
	FfmpegPath string
	Run        Runner
}

// NewProber returns a prober running the real ffmpeg.
func NewProber(ffmpegPath string) *Prober {
	return &Prober{FfmpegPath: ffmpegPath, Run: ffmpeg.Output}
}

// ParseEncoders returns the video encoder names in `ffmpeg -encoders` output.
func ParseEncoders(out string) []string {
	var names []string
	inList := false
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "------") {
			inList = true
			continue
		}
		fields := strings.Fields(line)
		if !inList || len(fields) < 2 || len(fields[0]) != 6 || fields[0][0] != 'V' {
			continue
		}
		names = append(names, fields[1])
	}
	return names
}

// Encoders lists the video encoders compiled into ffmpeg.
func (p *Prober) Encoders(ctx context.Context) ([]string, error) {
	out, err := p.Run(ctx, p.FfmpegPath, "-hide_banner", "-encoders")
	if err != nil {
		return nil, err
	}
	return ParseEncoders(out), nil
}

// Works encodes a tenth of a second of black video with codec. Encoders such
// as h264_qsv are listed even when the hardware is missing.
func (p *Prober) Works(ctx context.Context, codec string) bool {
	out, err := p.Run(ctx, p.FfmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "color=black:s=128x128:d=0.1:r=30",
		"-vcodec", codec, "-t", "0.1", "-f", "null", "-")
	if err != nil {
		logging.InfoLogger.Printf("Encoder test for %s failed: %v (%s)", codec, err, strings.TrimSpace(out))
		return false
	}
	return true
}

// SelectCodec returns preferred if ffmpeg lists it and a test encode succeeds,
// fallback otherwise.
func (p *Prober) SelectCodec(ctx context.Context, preferred, fallback string) string {
	if preferred == "" || preferred == fallback {
		return fallback
	}
	names, err := p.Encoders(ctx)
	if err != nil {
		logging.WarningLogger.Printf("Failed to query ffmpeg encoders, using %s: %v", fallback, err)
		return fallback
	}
	if !contains(names, preferred) {
		logging.WarningLogger.Printf("%s not available, falling back to %s", preferred, fallback)
		return fallback
	}
	if !p.Works(ctx, preferred) {
		logging.WarningLogger.Printf("%s is compiled in but not functional on this hardware, falling back to %s", preferred, fallback)
		return fallback
	}
	logging.InfoLogger.Printf("Encoder %s verified working", preferred)
	return preferred
}

// ResolveCodec returns codec, or the probed choice when codec is "auto" or empty.
func (p *Prober) ResolveCodec(ctx context.Context, codec, preferred, fallback string) string {
	if codec != "" && codec != AutoCodec {
		return codec
	}
	return p.SelectCodec(ctx, preferred, fallback)
}

// H264 filters names down to H.264 encoders.
func H264(names []string) []string {
	var out []string
	for _, n := range names {
		if n == "libx264" || n == "libopenh264" || strings.HasPrefix(n, "h264_") {
			out = append(out, n)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
