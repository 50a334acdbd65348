package parsers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/civicdesk/server/internal/agent/model"
	errx "github.com/civicdesk/server/internal/core/error"
	logx "github.com/civicdesk/server/pkg/logger"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 64 * 1024 // 64KB
	maxFields     = 32        // maximum required fields to accept
	maxErrSnippet = 200       // limit error snippet size
)

// ParseServiceReply parses the raw model reply into a service descriptor.
// The reply must be a JSON object carrying at least service_name,
// confidence and required_fields; callers substitute the fallback
// descriptor when this returns an error.
func ParseServiceReply(content string) (desc *model.ServiceDescriptor, err error) {
	// panic safety
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "service_parser").Msgf("panic recovered: %v", r)
			err = errx.New(fmt.Errorf("service parser panic"), http.StatusInternalServerError, errx.SystemErrorMessage)
			desc = nil
		}
	}()

	if len(content) > maxContentLen {
		logx.Warn().
			Str("component", "service_parser").
			Int("max_len", maxContentLen).
			Int("orig_len", len(content)).
			Msg("content truncated due to size limit")
		content = content[:maxContentLen]
	}

	raw, err := extractJSONObject(content)
	if err != nil {
		return nil, fmt.Errorf("no JSON object in reply: %s", safeSnippet(content))
	}

	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("invalid JSON in reply: %w", err)
	}

	for _, key := range []string{"service_name", "confidence", "required_fields"} {
		if _, ok := m[key]; !ok {
			return nil, fmt.Errorf("reply missing mandatory key %q", key)
		}
	}

	name := strings.TrimSpace(asString(m["service_name"]))
	if name == "" {
		return nil, fmt.Errorf("reply has empty service_name")
	}

	fields, err := asStringSlice(m["required_fields"])
	if err != nil {
		return nil, fmt.Errorf("required_fields: %w", err)
	}

	return &model.ServiceDescriptor{
		ServiceName:             name,
		Confidence:              strings.TrimSpace(asString(m["confidence"])),
		RequiredFields:          fields,
		Description:             strings.TrimSpace(asString(m["description"])),
		EstimatedProcessingTime: strings.TrimSpace(asString(m["estimated_processing_time"])),
	}, nil
}

// extractJSONObject strips markdown code fences and surrounding prose,
// returning the outermost {...} span.
func extractJSONObject(content string) (string, error) {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no object delimiters")
	}
	return s[start : end+1], nil
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		// models occasionally emit numbers for confidence
		return fmt.Sprint(t)
	}
}

func asStringSlice(v any) ([]string, error) {
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("not an array")
	}
	if len(arr) > maxFields {
		arr = arr[:maxFields]
	}
	out := make([]string, 0, len(arr))
	for _, e := range arr {
		s := strings.TrimSpace(asString(e))
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	return s[:maxErrSnippet]
}
