package media

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/skillsenselab/subgen/errors"
	"github.com/skillsenselab/subgen/process"
)

// ExtractSubtitle converts one embedded subtitle stream to SRT text.
// streamIndex is the ffmpeg stream index reported by the prober.
func (d *Decoder) ExtractSubtitle(ctx context.Context, input string, streamIndex int) (string, error) {
	result, err := process.Run(ctx, process.Command{
		Binary: d.cfg.FFmpegPath,
		Args: []string{
			"-v", "error",
			"-i", input,
			"-map", fmt.Sprintf("0:%d", streamIndex),
			"-f", "srt",
			"-",
		},
		GracePeriod: d.cfg.GracePeriod,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		detail := ""
		if result != nil {
			detail = strings.TrimSpace(string(result.Stderr))
		}
		return "", apperrors.DecodeFailed(input, fmt.Errorf("subtitle extraction: %w", err)).
			WithDetail("stderr", detail)
	}
	return string(result.Stdout), nil
}
