package parsers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServiceReplyPlainJSON(t *testing.T) {
	content := `{
		"service_name": "Passport Renewal",
		"confidence": "high",
		"required_fields": ["full_name", "national_id"],
		"description": "Renew an expired passport",
		"estimated_processing_time": "5 business days"
	}`

	desc, err := ParseServiceReply(content)
	require.NoError(t, err)
	assert.Equal(t, "Passport Renewal", desc.ServiceName)
	assert.Equal(t, "high", desc.Confidence)
	assert.Equal(t, []string{"full_name", "national_id"}, desc.RequiredFields)
	assert.Equal(t, "Renew an expired passport", desc.Description)
	assert.Equal(t, "5 business days", desc.EstimatedProcessingTime)
}

func TestParseServiceReplyCodeFences(t *testing.T) {
	content := "```json\n" +
		`{"service_name": "Business License", "confidence": "medium", "required_fields": ["full_name"]}` +
		"\n```"

	desc, err := ParseServiceReply(content)
	require.NoError(t, err)
	assert.Equal(t, "Business License", desc.ServiceName)
}

func TestParseServiceReplySurroundingProse(t *testing.T) {
	content := `Sure! Here is the result:
{"service_name": "Birth Certificate", "confidence": "high", "required_fields": []}
Let me know if you need anything else.`

	desc, err := ParseServiceReply(content)
	require.NoError(t, err)
	assert.Equal(t, "Birth Certificate", desc.ServiceName)
	assert.Empty(t, desc.RequiredFields)
}

func TestParseServiceReplyNumericConfidence(t *testing.T) {
	content := `{"service_name": "X", "confidence": 0.92, "required_fields": ["a"]}`

	desc, err := ParseServiceReply(content)
	require.NoError(t, err)
	assert.Equal(t, "0.92", desc.Confidence)
}

func TestParseServiceReplyMissingKeys(t *testing.T) {
	for _, content := range []string{
		`{"confidence": "high", "required_fields": []}`,
		`{"service_name": "X", "required_fields": []}`,
		`{"service_name": "X", "confidence": "high"}`,
	} {
		_, err := ParseServiceReply(content)
		assert.Error(t, err, "expected error for %s", content)
	}
}

func TestParseServiceReplyGarbage(t *testing.T) {
	for _, content := range []string{
		"",
		"no json here at all",
		"{not valid json}",
		`{"service_name": "", "confidence": "high", "required_fields": []}`,
		`{"service_name": "X", "confidence": "high", "required_fields": "not-an-array"}`,
	} {
		_, err := ParseServiceReply(content)
		assert.Error(t, err, "expected error for %q", content)
	}
}

func TestParseServiceReplyFieldLimit(t *testing.T) {
	fields := make([]string, 0, maxFields+10)
	for i := 0; i < maxFields+10; i++ {
		fields = append(fields, `"f"`)
	}
	content := `{"service_name": "X", "confidence": "high", "required_fields": [` +
		strings.Join(fields, ",") + `]}`

	desc, err := ParseServiceReply(content)
	require.NoError(t, err)
	assert.Len(t, desc.RequiredFields, maxFields)
}

func TestParseServiceReplySkipsEmptyFields(t *testing.T) {
	content := `{"service_name": "X", "confidence": "high", "required_fields": ["a", "", "  ", "b"]}`

	desc, err := ParseServiceReply(content)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, desc.RequiredFields)
}

func TestParseServiceReplyOversizedContent(t *testing.T) {
	content := `{"service_name": "X", "confidence": "high", "required_fields": []}` +
		strings.Repeat(" ", maxContentLen)

	desc, err := ParseServiceReply(content)
	require.NoError(t, err)
	assert.Equal(t, "X", desc.ServiceName)
}
