package report

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"

	"github.com/automap-mri/automap/internal/checkpoint"
	"github.com/automap-mri/automap/internal/train"
)

// Progress draws one progress bar per epoch over its minibatches. It
// implements train.Reporter and is meant to be combined with
// train.LogReporter.
type Progress struct {
	w   io.Writer
	bar *progressbar.ProgressBar
}

var _ train.Reporter = (*Progress)(nil)

// NewProgress writes bars to w, usually os.Stderr.
func NewProgress(w io.Writer) *Progress {
	return &Progress{w: w}
}

func (p *Progress) EpochStart(epoch, minibatches int) {
	p.bar = progressbar.NewOptions(minibatches,
		progressbar.OptionSetDescription(fmt.Sprintf("epoch %d", epoch)),
		progressbar.OptionSetWriter(p.w),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("batches"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
		progressbar.OptionClearOnFinish(),
	)
}

func (p *Progress) MinibatchDone(_, _ int, cost float64) {
	if p.bar == nil {
		return
	}
	p.bar.Describe(fmt.Sprintf("cost %.4g", cost))
	_ = p.bar.Add(1)
}

func (p *Progress) EpochEnd(train.EpochSummary) {
	if p.bar != nil {
		_ = p.bar.Finish()
		p.bar = nil
	}
}

func (p *Progress) CheckpointDone(int, checkpoint.Handle, error) {}
