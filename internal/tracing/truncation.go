package tracing

import (
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// 各类属性值的长度上限
const (
	DefaultMaxLength = 200
	MaxSQLLength     = 500
	MaxRedisLength   = 100
	MaxQueryLength   = 120
)

// 属性名包含这些片段时按个人信息掩码
var piiFragments = []string{
	"email", "attendee", "organizer", "phone", "name", "姓名",
	"password", "secret", "token", "api_key",
}

func isPII(key string) bool {
	lower := strings.ToLower(key)
	for _, frag := range piiFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// SafeAttributeValue 个人信息掩码，其余按 maxLength 截断
func SafeAttributeValue(name string, value string, maxLength int) string {
	if isPII(name) {
		return MaskPII(value)
	}
	return TruncateString(value, maxLength)
}

// String 构造经过 SafeAttributeValue 处理的 span 属性
func String(key, value string, maxLength int) attribute.KeyValue {
	return attribute.String(key, SafeAttributeValue(key, value, maxLength))
}

// Emails 逐个掩码的邮箱列表属性，例如参会人
func Emails(key string, values []string) attribute.KeyValue {
	masked := make([]string, len(values))
	for i, v := range values {
		masked[i] = MaskPII(v)
	}
	return attribute.StringSlice(key, masked)
}

// MaskPII 保留首尾少量字符。邮箱只掩码本地部分。
func MaskPII(value string) string {
	if value == "" {
		return ""
	}
	if at := strings.LastIndex(value, "@"); at > 0 {
		return MaskPII(value[:at]) + value[at:]
	}

	runes := []rune(value)
	n := len(runes)
	switch {
	case n == 1:
		return "*"
	case n == 2:
		return string(runes[0]) + "*"
	case n <= 4:
		return string(runes[0]) + strings.Repeat("*", n-2) + string(runes[n-1])
	}
	// "13812345678" -> "13*******78"
	return string(runes[:2]) + strings.Repeat("*", n-4) + string(runes[n-2:])
}

// TruncateString 超长时保留首尾，中间用 "..." 连接
func TruncateString(s string, maxLength int) string {
	runes := []rune(s)
	if len(runes) <= maxLength {
		return s
	}
	if maxLength <= 3 {
		return string(runes[:maxLength])
	}
	half := max((maxLength-3)/2, 1)
	return string(runes[:half]) + "..." + string(runes[len(runes)-half:])
}
