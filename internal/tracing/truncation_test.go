package tracing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskPII(t *testing.T) {
	assert.Equal(t, "", MaskPII(""))
	assert.Equal(t, "*", MaskPII("a"))
	assert.Equal(t, "张*", MaskPII("张三"))
	assert.Equal(t, "王*明", MaskPII("王小明"))
	assert.Equal(t, "ca*****te@example.com", MaskPII("candidate@example.com"))
}

func TestSafeAttributeValue(t *testing.T) {
	assert.Equal(t, "h**t@x.io", SafeAttributeValue("interviewer_email", "host@x.io", DefaultMaxLength))
	assert.Equal(t, "abc", SafeAttributeValue("applicant_id", "abc", DefaultMaxLength))
	assert.Equal(t, "ab...yz", SafeAttributeValue("query", "abcdefghijklmnopqrstuvwxyz", 7))
}

func TestAttributeBuilders(t *testing.T) {
	kv := String("meeting.organizer", "host@x.io", DefaultMaxLength)
	assert.Equal(t, "h**t@x.io", kv.Value.AsString())

	kv = String("search.query", "abcdefghijklmnopqrstuvwxyz", 7)
	assert.Equal(t, "ab...yz", kv.Value.AsString())

	kv = Emails("meeting.attendees", []string{"host@x.io", "c@y.io"})
	assert.Equal(t, []string{"h**t@x.io", "*@y.io"}, kv.Value.AsStringSlice())
}
