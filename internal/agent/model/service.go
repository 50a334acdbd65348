package model

// ServiceDescriptor is the structured output of service identification.
// It is produced once per session and immutable afterwards; responses carry
// it along for the client.
type ServiceDescriptor struct {
	ServiceName             string   `json:"service_name"`
	Confidence              string   `json:"confidence"`
	RequiredFields          []string `json:"required_fields"`
	Description             string   `json:"description"`
	EstimatedProcessingTime string   `json:"estimated_processing_time"`
}

// FallbackDescriptor is substituted whenever identification fails or the
// model reply cannot be parsed, so a session never stalls without a usable
// set of required fields.
func FallbackDescriptor() *ServiceDescriptor {
	return &ServiceDescriptor{
		ServiceName:             "General Service",
		Confidence:              "low",
		RequiredFields:          []string{"full_name", "national_id", "mobile_number"},
		Description:             "General service request requiring basic applicant information",
		EstimatedProcessingTime: "3-5 business days",
	}
}

// Chat turn statuses returned to the client.
const (
	StatusSuccess         = "success"
	StatusValidationError = "validation_error"
	StatusError           = "error"
	StatusCompleted       = "completed"
)

// ChatRequest is the inbound chat payload.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Namespace string `json:"namespace"`
}

// ChatResponse is the outcome of one conversation turn.
type ChatResponse struct {
	Response          string             `json:"response"`
	Status            string             `json:"status"`
	ServiceIdentified bool               `json:"service_identified"`
	ServiceInfo       *ServiceDescriptor `json:"service_info,omitempty"`
	NextField         string             `json:"next_field,omitempty"`
	Completed         bool               `json:"completed"`
	ValidationError   string             `json:"validation_error,omitempty"`
}
