package train

import (
	"time"

	"k8s.io/klog/v2"

	"github.com/automap-mri/automap/internal/checkpoint"
)

// EpochSummary is reported once per completed epoch.
type EpochSummary struct {
	Epoch       int
	Cost        float64
	Elapsed     time.Duration
	GlobalStep  int64
	Minibatches int
}

// Reporter observes a run. Calls happen on the training goroutine.
type Reporter interface {
	EpochStart(epoch, minibatches int)
	MinibatchDone(epoch, index int, cost float64)
	EpochEnd(s EpochSummary)
	// CheckpointDone receives the handle of a saved checkpoint, or the
	// error that prevented saving it.
	CheckpointDone(epoch int, h checkpoint.Handle, err error)
}

// LogReporter writes one klog line per epoch and per checkpoint.
type LogReporter struct{}

func (LogReporter) EpochStart(epoch, minibatches int) {
	klog.V(1).Infof("Epoch %d: %d minibatches", epoch, minibatches)
}

func (LogReporter) MinibatchDone(epoch, index int, cost float64) {
	klog.V(2).Infof("Epoch %d minibatch %d: cost=%g", epoch, index, cost)
}

func (LogReporter) EpochEnd(s EpochSummary) {
	klog.Infof("EPOCH = %d COST = %g elapsed = %s", s.Epoch, s.Cost, s.Elapsed)
}

func (LogReporter) CheckpointDone(epoch int, h checkpoint.Handle, err error) {
	if err != nil {
		klog.Errorf("Failed to save checkpoint after epoch %d: %+v", epoch, err)
		return
	}
	klog.Infof("Model saved in file: %s", h.Path)
}

// Reporters fans out to several reporters in order.
type Reporters []Reporter

func (rs Reporters) EpochStart(epoch, minibatches int) {
	for _, r := range rs {
		r.EpochStart(epoch, minibatches)
	}
}

func (rs Reporters) MinibatchDone(epoch, index int, cost float64) {
	for _, r := range rs {
		r.MinibatchDone(epoch, index, cost)
	}
}

func (rs Reporters) EpochEnd(s EpochSummary) {
	for _, r := range rs {
		r.EpochEnd(s)
	}
}

func (rs Reporters) CheckpointDone(epoch int, h checkpoint.Handle, err error) {
	for _, r := range rs {
		r.CheckpointDone(epoch, h, err)
	}
}
