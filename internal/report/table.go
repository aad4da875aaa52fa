package report

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/automap-mri/automap/internal/checkpoint"
)

var (
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	headerStyle = lipgloss.NewStyle().Padding(0, 1).Bold(true).Reverse(true)
	rightStyle  = lipgloss.NewStyle().Align(lipgloss.Right).Padding(0, 1)
)

func newTable() *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == lgtable.HeaderRow:
				return headerStyle
			case col > 0:
				return rightStyle
			default:
				return cellStyle
			}
		})
}

// CurveTable lists the cost of every epoch and its change from the
// previous one.
func CurveTable(c *Curve) string {
	t := newTable().Headers("Epoch", "Cost", "Change")
	for epoch, cost := range c.Costs {
		change := ""
		if epoch > 0 && c.Costs[epoch-1] != 0 {
			change = fmt.Sprintf("%+.2f%%", 100*(cost-c.Costs[epoch-1])/c.Costs[epoch-1])
		}
		t.Row(strconv.Itoa(epoch), fmt.Sprintf("%.6g", cost), change)
	}
	return t.String()
}

// CheckpointTable describes a checkpoint file: its training position
// followed by one row per tensor.
func CheckpointTable(info *checkpoint.Info) string {
	h := info.Header
	summary := newTable().Headers("Field", "Value")
	summary.Row("file", info.Path)
	summary.Row("size", humanize.Bytes(uint64(info.FileSize)))
	summary.Row("checksum", map[bool]string{true: "ok", false: "MISMATCH"}[info.ChecksumOK])
	summary.Row("model", h.ModelType)
	summary.Row("created", h.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	if m := h.CheckpointMeta; m != nil {
		summary.Row("global step", strconv.FormatInt(m.Step, 10))
		summary.Row("epoch", strconv.Itoa(m.Epoch))
		summary.Row("cost", fmt.Sprintf("%.6g", m.Loss))
		summary.Row("optimizer", m.OptimizerType)
		for _, k := range sortedKeys(m.OptimizerConfig) {
			summary.Row("  "+k, fmt.Sprint(m.OptimizerConfig[k]))
		}
	}
	for _, k := range sortedKeys(h.Metadata) {
		summary.Row(k, h.Metadata[k])
	}

	tensors := newTable().Headers("Tensor", "Shape", "Size")
	for _, tm := range h.Tensors {
		tensors.Row(tm.Name, fmt.Sprint(tm.Shape), humanize.Bytes(uint64(tm.Size)))
	}
	return summary.String() + "\n" + tensors.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
