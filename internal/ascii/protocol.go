// Package ascii 实现差压计 / IO板使用的简单ASCII命令协议
package ascii

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	// PollCommand 数据请求命令
	PollCommand = "#G"
	// AckMarker 校准确认标记
	AckMarker = "="
	// LineEnding WriteLine 使用的行结束符
	LineEnding = "\n"
)

var (
	ErrParseFailure    = errors.New("ascii: no numeric value in response")
	ErrUnknownRefPoint = errors.New("ascii: reference point has no command")
)

// referenceCommands 两点枚举: 最低参考点 -> #T0, 下一个 -> #T1
var referenceCommands = []string{"#T0", "#T1"}

// BuildPollCommand 返回轮询命令
func BuildPollCommand() string {
	return PollCommand
}

// BuildReferenceCommand 根据参考点在已配置列表中的位置返回命令
func BuildReferenceCommand(points []float64, point float64) (string, error) {
	sorted := append([]float64(nil), points...)
	sort.Float64s(sorted)

	for i, p := range sorted {
		if p != point {
			continue
		}
		if i >= len(referenceCommands) {
			return "", fmt.Errorf("%w: %.2f (index %d)", ErrUnknownRefPoint, point, i)
		}
		return referenceCommands[i], nil
	}
	return "", fmt.Errorf("%w: %.2f not configured", ErrUnknownRefPoint, point)
}

// ExtractNumeric 从自由格式回复中提取数值
// Only digits, '.', '-' and '+' are kept; the rest is parsed culture-invariant.
func ExtractNumeric(response string) (float64, error) {
	var b strings.Builder
	for _, r := range response {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '+' {
			b.WriteRune(r)
		}
	}
	numeric := b.String()
	if numeric == "" {
		return 0, ErrParseFailure
	}
	value, err := strconv.ParseFloat(numeric, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrParseFailure, numeric)
	}
	return value, nil
}

// IsAcknowledged 回复中是否包含确认标记
func IsAcknowledged(response string) bool {
	return AcknowledgedBy(response, AckMarker)
}

// AcknowledgedBy is IsAcknowledged with a configurable marker.
func AcknowledgedBy(response, marker string) bool {
	if marker == "" {
		marker = AckMarker
	}
	return strings.Contains(response, marker)
}

// AckValue 返回确认标记之后的数值, 例如 "T1=19.50" -> 19.5
func AckValue(response, marker string) (float64, error) {
	if marker == "" {
		marker = AckMarker
	}
	i := strings.Index(response, marker)
	if i < 0 {
		return 0, ErrParseFailure
	}
	return ExtractNumeric(response[i+len(marker):])
}

// FormatValue 以两位小数显示数值
func FormatValue(value float64) string {
	return strconv.FormatFloat(value, 'f', 2, 64)
}
