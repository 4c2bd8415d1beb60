package flows

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileCSV(t *testing.T) {
	in := `duration,protocol_type,src_bytes,label
0,tcp,181,normal
2,udp,?,neptune
0,,239,normal
`
	p, err := ProfileCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, 3, p.TotalRecords)
	assert.Equal(t, 3, p.Features)
	assert.Equal(t, "label", p.LabelColumn)
	assert.Equal(t, map[string]int{"src_bytes": 1, "protocol_type": 1}, p.MissingValues)
	assert.Equal(t, map[string]int{"normal": 2, "neptune": 1}, p.LabelDistribution)
}

func TestProfileCSV_FallsBackToLastColumn(t *testing.T) {
	p, err := ProfileCSV(strings.NewReader("a,b,target\n1,2,x\n"))
	require.NoError(t, err)
	assert.Equal(t, "target", p.LabelColumn)
	assert.Equal(t, map[string]int{"x": 1}, p.LabelDistribution)
}

func TestProfileCSV_Empty(t *testing.T) {
	_, err := ProfileCSV(strings.NewReader(""))
	assert.Error(t, err)
}
