package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Alfresco/gytheio-sub001/message"
)

// BuildArgs returns the ffmpeg arguments converting input into output.
// Temporal, crop, resize and image options are honoured; every other kind
// is ignored.
func BuildArgs(input, output string, options *message.Options) []string {
	args := []string{"-hide_banner", "-nostdin", "-y"}

	temporal, hasTemporal := message.Lookup[message.TemporalOptions](options)
	if hasTemporal && temporal.OffsetSeconds > 0 {
		args = append(args, "-ss", formatSeconds(temporal.OffsetSeconds))
	}
	args = append(args, "-i", input)
	if hasTemporal && temporal.DurationSeconds > 0 {
		args = append(args, "-t", formatSeconds(temporal.DurationSeconds))
	}

	var filters []string
	if crop, ok := message.Lookup[message.CropOptions](options); ok && crop.Width > 0 && crop.Height > 0 {
		filters = append(filters, cropFilter(crop))
	}
	if resize, ok := message.Lookup[message.ResizeOptions](options); ok && (resize.Width > 0 || resize.Height > 0) {
		filters = append(filters, scaleFilter(resize))
	}
	if len(filters) > 0 {
		args = append(args, "-vf", strings.Join(filters, ","))
	}

	if image, ok := message.Lookup[message.ImageOptions](options); ok {
		if image.SingleFrame {
			args = append(args, "-frames:v", "1")
		}
		if image.Quality > 0 {
			args = append(args, "-q:v", strconv.Itoa(qscale(image.Quality)))
		}
	}

	return append(args, "-progress", "pipe:1", "-nostats", output)
}

func cropFilter(c message.CropOptions) string {
	if c.PercentageCrop {
		return fmt.Sprintf("crop=iw*%d/100:ih*%d/100:iw*%d/100:ih*%d/100", c.Width, c.Height, c.XOffset, c.YOffset)
	}
	return fmt.Sprintf("crop=%d:%d:%d:%d", c.Width, c.Height, c.XOffset, c.YOffset)
}

func scaleFilter(r message.ResizeOptions) string {
	w, h := r.Width, r.Height
	if w <= 0 {
		w = -2
	}
	if h <= 0 {
		h = -2
	}
	if r.MaintainAspectRatio && r.Width > 0 && r.Height > 0 {
		return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", w, h)
	}
	return fmt.Sprintf("scale=%d:%d", w, h)
}

// qscale maps quality 1..100 onto ffmpeg's -q:v scale, 31 (worst) to 2.
func qscale(quality int) int {
	quality = min(max(quality, 1), 100)
	return 31 - (quality-1)*29/99
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
