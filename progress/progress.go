// Package progress turns heterogeneous server progress payloads into one display snapshot.
package progress

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/moyoez/bigtransfer-go/types"
)

// Payload keys understood by Project. Byte counts arrive under either name depending on the flow.
const (
	KeyPercentage     = "percentage"
	KeyBytesProcessed = "bytesProcessed"
	KeyBytesSent      = "bytesSent"
	KeyTotalBytes     = "totalBytes"
	KeySpeedMBps      = "speedMBps"
	KeyEtaFormatted   = "etaFormatted"
)

// Reset returns the snapshot of a flow that has not reported anything yet.
func Reset() types.ProgressSnapshot {
	return types.ProgressSnapshot{EtaFormatted: types.EtaUnknown}
}

// Decode parses an event data field into a payload map.
func Decode(data []byte) (map[string]any, error) {
	payload := make(map[string]any)
	if len(strings.TrimSpace(string(data))) == 0 {
		return payload, nil
	}
	if err := sonic.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse event payload: %v", err)
	}
	return payload, nil
}

// Project overlays the fields present in payload onto prev. It never fails: missing or
// malformed fields keep their previous value, and percentage never moves backwards.
func Project(prev types.ProgressSnapshot, payload map[string]any) types.ProgressSnapshot {
	next := prev
	if next.EtaFormatted == "" {
		next.EtaFormatted = types.EtaUnknown
	}

	if total, ok := byteCount(payload, KeyTotalBytes); ok {
		next.TotalBytes = total
	}

	bytes, hasBytes := byteCount(payload, KeyBytesProcessed)
	if !hasBytes {
		bytes, hasBytes = byteCount(payload, KeyBytesSent)
	}
	if hasBytes {
		next.BytesProcessed = bytes
	}

	if pct, ok := number(payload, KeyPercentage); ok {
		next.Percentage = clampPercentage(pct, prev.Percentage)
	} else if hasBytes && next.TotalBytes > 0 {
		next.Percentage = clampPercentage(float64(next.BytesProcessed)/float64(next.TotalBytes)*100, prev.Percentage)
	}

	if speed, ok := nonNegative(payload, KeySpeedMBps); ok {
		next.SpeedMBps = speed
	}

	if raw, ok := payload[KeyEtaFormatted]; ok {
		switch v := raw.(type) {
		case string:
			if v = strings.TrimSpace(v); v != "" {
				next.EtaFormatted = v
			}
		default:
			if secs, ok := toNumber(v); ok && secs >= 0 {
				next.EtaFormatted = FormatETA(secs)
			}
		}
	}
	return next
}

// Complete marks a snapshot finished, adopting final byte counts when present.
func Complete(prev types.ProgressSnapshot, payload map[string]any) types.ProgressSnapshot {
	next := Project(prev, payload)
	next.Percentage = 100
	if next.TotalBytes > 0 && next.BytesProcessed < next.TotalBytes {
		next.BytesProcessed = next.TotalBytes
	}
	next.EtaFormatted = "00:00"
	return next
}

func clampPercentage(pct, floor float64) float64 {
	pct = math.Max(0, math.Min(100, pct))
	if pct < floor {
		return floor
	}
	return pct
}

func number(payload map[string]any, key string) (float64, bool) {
	raw, ok := payload[key]
	if !ok {
		return 0, false
	}
	return toNumber(raw)
}

func nonNegative(payload map[string]any, key string) (float64, bool) {
	v, ok := number(payload, key)
	if !ok || v < 0 {
		return 0, false
	}
	return v, true
}

// byteCount is nonNegative restricted to what an int64 holds; larger values are malformed.
func byteCount(payload map[string]any, key string) (int64, bool) {
	v, ok := nonNegative(payload, key)
	if !ok || v >= math.MaxInt64 {
		return 0, false
	}
	return int64(v), true
}

func toNumber(raw any) (float64, bool) {
	var v float64
	switch n := raw.(type) {
	case float64:
		v = n
	case float32:
		v = float64(n)
	case int:
		v = float64(n)
	case int64:
		v = float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		v = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		v = f
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
