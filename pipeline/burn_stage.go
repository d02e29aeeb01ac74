package pipeline

import (
	"context"
)

// runBurnAndWatermark implements the optional BURN and WATERMARK steps
// (§4.1): burn the translated subtitles into the source video, then
// overlay a watermark if one was requested.
func (c *Coordinator) runBurnAndWatermark(ctx context.Context, in Input, sourcePath, srtPath string) (string, error) {
	c.Ledger.StartStep(in.TaskID, "BURN")
	if err := ctx.Err(); err != nil {
		return "", cancelledOrTimeout(err)
	}
	burned, err := c.Toolkit.BurnSubtitles(ctx, in.TaskID, sourcePath, srtPath, in.WorkDir)
	if err != nil {
		c.Ledger.FailStep(in.TaskID, "BURN")
		return "", err
	}
	c.Ledger.CompleteStep(in.TaskID, "BURN")

	if in.Choices.Watermark == nil {
		return burned, nil
	}

	c.Ledger.StartStep(in.TaskID, "WATERMARK")
	if err := ctx.Err(); err != nil {
		return "", cancelledOrTimeout(err)
	}
	watermarked, err := c.Toolkit.OverlayWatermark(ctx, in.TaskID, burned, *in.Choices.Watermark, in.WorkDir)
	if err != nil {
		c.Ledger.FailStep(in.TaskID, "WATERMARK")
		return "", err
	}
	c.Ledger.CompleteStep(in.TaskID, "WATERMARK")
	return watermarked, nil
}
