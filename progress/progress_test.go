package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moyoez/bigtransfer-go/types"
)

func TestProjectPercentageOnly(t *testing.T) {
	prev := types.ProgressSnapshot{Percentage: 10, BytesProcessed: 100, TotalBytes: 1000, SpeedMBps: 1.5, EtaFormatted: "01:00"}
	next := Project(prev, map[string]any{"percentage": 57.0})

	assert.Equal(t, 57.0, next.Percentage)
	assert.Equal(t, prev.BytesProcessed, next.BytesProcessed)
	assert.Equal(t, prev.TotalBytes, next.TotalBytes)
	assert.Equal(t, prev.SpeedMBps, next.SpeedMBps)
	assert.Equal(t, prev.EtaFormatted, next.EtaFormatted)
}

func TestProjectRecomputesFromBytes(t *testing.T) {
	next := Project(Reset(), map[string]any{"bytesProcessed": 50.0, "totalBytes": 200.0})
	assert.Equal(t, 25.0, next.Percentage)
	assert.Equal(t, int64(50), next.BytesProcessed)
	assert.Equal(t, int64(200), next.TotalBytes)
}

func TestProjectBytesSentAlias(t *testing.T) {
	prev := types.ProgressSnapshot{TotalBytes: 400}
	next := Project(prev, map[string]any{"bytesSent": 100.0})
	assert.Equal(t, int64(100), next.BytesProcessed)
	assert.Equal(t, 25.0, next.Percentage)
}

func TestProjectBytesWithoutTotalLeavesPercentage(t *testing.T) {
	prev := types.ProgressSnapshot{Percentage: 12}
	next := Project(prev, map[string]any{"bytesProcessed": 50.0})
	assert.Equal(t, 12.0, next.Percentage)
	assert.Equal(t, int64(50), next.BytesProcessed)
}

func TestProjectClampsAndNeverRegresses(t *testing.T) {
	next := Project(Reset(), map[string]any{"percentage": 140.0})
	assert.Equal(t, 100.0, next.Percentage)

	prev := types.ProgressSnapshot{Percentage: 60}
	next = Project(prev, map[string]any{"percentage": 30.0})
	assert.Equal(t, 60.0, next.Percentage)

	next = Project(Reset(), map[string]any{"percentage": -5.0})
	assert.Equal(t, 0.0, next.Percentage)
}

func TestProjectRejectsByteCountsBeyondInt64(t *testing.T) {
	prev := types.ProgressSnapshot{Percentage: 20, BytesProcessed: 10, TotalBytes: 50}
	next := Project(prev, map[string]any{"totalBytes": 1e30, "bytesProcessed": 9.3e18})
	assert.Equal(t, int64(50), next.TotalBytes)
	assert.Equal(t, int64(10), next.BytesProcessed)
	assert.Equal(t, 20.0, next.Percentage)

	next = Project(prev, map[string]any{"bytesSent": "1e19"})
	assert.Equal(t, int64(10), next.BytesProcessed)
}

func TestProjectMalformedFallsBack(t *testing.T) {
	prev := types.ProgressSnapshot{Percentage: 20, BytesProcessed: 10, TotalBytes: 50, SpeedMBps: 2, EtaFormatted: "00:30"}
	next := Project(prev, map[string]any{
		"percentage":   "abc",
		"bytesSent":    "12x",
		"totalBytes":   []any{1},
		"speedMBps":    nil,
		"etaFormatted": "",
	})
	assert.Equal(t, prev, next)
}

func TestProjectNumericStrings(t *testing.T) {
	next := Project(Reset(), map[string]any{"percentage": " 42.5 ", "speedMBps": "3.25", "etaFormatted": 75.0})
	assert.Equal(t, 42.5, next.Percentage)
	assert.Equal(t, 3.25, next.SpeedMBps)
	assert.Equal(t, "01:15", next.EtaFormatted)
}

func TestProjectDefaults(t *testing.T) {
	next := Project(types.ProgressSnapshot{}, map[string]any{})
	assert.Equal(t, 0.0, next.SpeedMBps)
	assert.Equal(t, types.EtaUnknown, next.EtaFormatted)

	next = Project(types.ProgressSnapshot{}, nil)
	assert.Equal(t, types.EtaUnknown, next.EtaFormatted)
}

func TestComplete(t *testing.T) {
	next := Complete(types.ProgressSnapshot{Percentage: 80, BytesProcessed: 8, TotalBytes: 10}, nil)
	assert.Equal(t, 100.0, next.Percentage)
	assert.Equal(t, int64(10), next.BytesProcessed)
}

func TestDecode(t *testing.T) {
	payload, err := Decode([]byte(`{"percentage":50,"bytesSent":4500000,"totalBytes":9000000}`))
	require.NoError(t, err)
	next := Project(Reset(), payload)
	assert.Equal(t, 50.0, next.Percentage)
	assert.Equal(t, int64(4500000), next.BytesProcessed)
	assert.Equal(t, int64(9000000), next.TotalBytes)

	_, err = Decode([]byte(`{not json`))
	assert.Error(t, err)

	payload, err = Decode(nil)
	require.NoError(t, err)
	assert.Empty(t, payload)
}

func TestFormatETA(t *testing.T) {
	assert.Equal(t, "00:05", FormatETA(5))
	assert.Equal(t, "02:03", FormatETA(123))
	assert.Equal(t, "01:00:01", FormatETA(3601))
	assert.Equal(t, "--:--", FormatETA(-1))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "8.6 MB", FormatBytes(9000000))
}
