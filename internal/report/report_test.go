package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/born-ml/born/tensor"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automap-mri/automap/internal/checkpoint"
	"github.com/automap-mri/automap/internal/train"
)

func sampleCurve() *Curve {
	return &Curve{RunID: "r", LearningRate: 1e-4, Costs: []float64{0.5, 0.25, 0.2}}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"svg": FormatSVG, "PNG": FormatPNG, "none": FormatNone} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("gif")
	assert.Error(t, err)
}

func TestWriteAllSVG(t *testing.T) {
	dir := t.TempDir()
	paths, err := WriteAll(dir, sampleCurve(), FormatSVG)
	require.NoError(t, err)
	require.Len(t, paths, 2)

	svg := string(must.M1(os.ReadFile(paths[1])))
	assert.True(t, strings.Contains(svg, "<svg"))
	assert.Contains(t, svg, "Learning rate = 0.0001")

	back := must.M1(ReadJSON(paths[0]))
	assert.Equal(t, sampleCurve(), back)
}

func TestWriteAllPNG(t *testing.T) {
	dir := t.TempDir()
	paths, err := WriteAll(dir, sampleCurve(), FormatPNG)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	png := must.M1(os.ReadFile(paths[1]))
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func TestWriteAllNone(t *testing.T) {
	dir := t.TempDir()
	paths, err := WriteAll(dir, sampleCurve(), FormatNone)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "learning_curve.json")}, paths)
}

func TestEmptyCurveIsNotPlotted(t *testing.T) {
	_, err := RenderSVG(&Curve{})
	assert.Error(t, err)
	assert.Error(t, WritePNG(filepath.Join(t.TempDir(), "x.png"), &Curve{}))
}

func TestCurveTable(t *testing.T) {
	out := CurveTable(sampleCurve())
	assert.Contains(t, out, "Epoch")
	assert.Contains(t, out, "0.25")
	assert.Contains(t, out, "-50.00%")
}

func TestCheckpointTable(t *testing.T) {
	store := must.M1(checkpoint.Open(t.TempDir()))
	w := must.M1(tensor.NewRaw(tensor.Shape{2, 2}, tensor.Float32, tensor.CPU))
	h := must.M1(store.Save(&checkpoint.State{
		Tensors:       map[string]*tensor.RawTensor{"fc1.weight": w},
		GlobalStep:    8,
		Epoch:         3,
		OptimizerType: "RMSProp",
		Metadata:      map[string]string{"run_id": "abc"},
	}))
	out := CheckpointTable(must.M1(checkpoint.Inspect(h.Path)))
	for _, want := range []string{"fc1.weight", "[2 2]", "RMSProp", "abc", "ok"} {
		assert.Contains(t, out, want)
	}
}

func TestProgressReporter(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf)
	var r train.Reporter = p
	r.EpochStart(0, 3)
	for i := 0; i < 3; i++ {
		r.MinibatchDone(0, i, 0.1)
	}
	r.EpochEnd(train.EpochSummary{Epoch: 0})
	assert.Nil(t, p.bar)
	assert.NotZero(t, buf.Len())
}
