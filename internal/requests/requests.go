// Package requests persists submitted service requests and their lifecycle
// status.
package requests

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a service request.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
	StatusCancelled  Status = "cancelled"
)

// AllStatuses lists every valid lifecycle status.
var AllStatuses = []Status{StatusPending, StatusInProgress, StatusCompleted, StatusRejected, StatusCancelled}

// ParseStatus validates a raw status value.
func ParseStatus(v string) (Status, error) {
	for _, s := range AllStatuses {
		if string(s) == v {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", v)
}

// Record is one durable service request row.
type Record struct {
	ID          int64             `json:"id"`
	RequestID   string            `json:"request_id"`
	ServiceName string            `json:"service_name"`
	Status      Status            `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	UserData    map[string]string `json:"user_data"`
	SessionID   string            `json:"session_id"`
	Namespace   string            `json:"namespace"`
	Notes       string            `json:"notes,omitempty"`
}

// CreateInput carries everything needed to persist a new request.
type CreateInput struct {
	ServiceName string
	UserData    map[string]string
	SessionID   string
	Namespace   string
}

// ListFilter narrows and paginates request listings.
type ListFilter struct {
	Page        int
	Limit       int
	Status      Status // empty means any
	ServiceName string // substring match, empty means any
}

// ServiceCount is one entry of the per-service distribution.
type ServiceCount struct {
	ServiceName string `json:"service_name"`
	Count       int    `json:"count"`
}

// Stats aggregates request counts for the dashboard.
type Stats struct {
	TotalRequests       int            `json:"total_requests"`
	PendingRequests     int            `json:"pending_requests"`
	InProgressRequests  int            `json:"in_progress_requests"`
	CompletedRequests   int            `json:"completed_requests"`
	RejectedRequests    int            `json:"rejected_requests"`
	CancelledRequests   int            `json:"cancelled_requests"`
	RecentRequestsWeek  int            `json:"recent_requests_week"`
	ServiceDistribution []ServiceCount `json:"service_distribution"`
}
