package renumber

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleIndexedMzML = `<?xml version="1.0" encoding="utf-8"?>
<indexedmzML xmlns="http://psi.hupo.org/ms/mzml">
  <mzML xmlns="http://psi.hupo.org/ms/mzml" version="1.1.0">
    <run id="sample" defaultInstrumentConfigurationRef="IC1">
      <spectrumList count="3" defaultDataProcessingRef="pwiz_Reader_conversion">
        <spectrum index="5" id="controllerType=0 controllerNumber=1 scan=6" defaultArrayLength="10">
        </spectrum>
        <spectrum index="9" id="controllerType=0 controllerNumber=1 scan=10" defaultArrayLength="12">
        </spectrum>
        <spectrum index="20" id="controllerType=0 controllerNumber=1 scan=21" defaultArrayLength="14">
        </spectrum>
      </spectrumList>
    </run>
  </mzML>
  <indexList count="1">
    <index name="spectrum">
      <offset idRef="controllerType=0 controllerNumber=1 scan=6">4098</offset>
    </index>
  </indexList>
  <indexListOffset>90210</indexListOffset>
  <fileChecksum>da39a3ee5e6b4b0d3255bfef95601890afd80709</fileChecksum>
</indexedmzML>
`

func TestRenumberRewritesIndicesAndScans(t *testing.T) {
	var out bytes.Buffer
	spectra, err := New(zap.NewNop()).renumber(strings.NewReader(sampleIndexedMzML), &out)
	require.NoError(t, err)
	assert.Equal(t, 3, spectra)

	result := out.String()
	assert.Contains(t, result, `<spectrum index="0" id="controllerType=0 controllerNumber=1 scan=1" defaultArrayLength="10">`)
	assert.Contains(t, result, `<spectrum index="1" id="controllerType=0 controllerNumber=1 scan=2" defaultArrayLength="12">`)
	assert.Contains(t, result, `<spectrum index="2" id="controllerType=0 controllerNumber=1 scan=3" defaultArrayLength="14">`)

	// Wrapper element and the trailing index block are gone.
	assert.NotContains(t, result, "indexedmzML")
	assert.NotContains(t, result, "indexList")
	assert.NotContains(t, result, "fileChecksum")
	assert.True(t, strings.HasSuffix(result, "  </mzML>\n"))

	// Everything that is not a spectrum opening is copied byte for byte.
	assert.Contains(t, result, `<?xml version="1.0" encoding="utf-8"?>`)
	assert.Contains(t, result, `<run id="sample" defaultInstrumentConfigurationRef="IC1">`)
	assert.Contains(t, result, `<spectrumList count="3" defaultDataProcessingRef="pwiz_Reader_conversion">`)
}

func TestRenumberRejectsUnexpectedSpectrumLine(t *testing.T) {
	input := `<mzML>
  <spectrum index="5" id="scan=6">
</mzML>
`
	var out bytes.Buffer
	_, err := New(zap.NewNop()).renumber(strings.NewReader(input), &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `<spectrum index="5" id="scan=6">`)
}

func TestRenumberFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "sample_-45.mzML")
	dst := filepath.Join(dir, "sample_-45_renumbered.mzML")
	require.NoError(t, os.WriteFile(src, []byte(sampleIndexedMzML), 0644))

	require.NoError(t, New(zap.NewNop()).RenumberFile(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Contains(t, string(data), `<spectrum index="0" id="controllerType=0 controllerNumber=1 scan=1"`)
}

func TestRenumberFileRemovesPartialOutputOnError(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bad.mzML")
	dst := filepath.Join(dir, "bad_renumbered.mzML")
	require.NoError(t, os.WriteFile(src, []byte("<mzML>\n  <spectrum index=\"1\" bogus>\n</mzML>\n"), 0644))

	err := New(zap.NewNop()).RenumberFile(src, dst)
	require.Error(t, err)

	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRenumberFileMissingSource(t *testing.T) {
	dir := t.TempDir()
	err := New(zap.NewNop()).RenumberFile(filepath.Join(dir, "missing.mzML"), filepath.Join(dir, "out.mzML"))
	require.Error(t, err)
}
