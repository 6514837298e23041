package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"smartbudget/internal/core"
)

// EvaluationRequest asks the worker to re-evaluate one user. It carries only
// the user id; the worker reads the current data from the store.
type EvaluationRequest struct {
	UserID    string    `json:"user_id"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEvaluationRequest(userID, reason string) *EvaluationRequest {
	return &EvaluationRequest{
		UserID:    userID,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
}

func (m *EvaluationRequest) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// EvaluationRequestFromJSON decodes and checks a request body.
func EvaluationRequestFromJSON(data []byte) (*EvaluationRequest, error) {
	var msg EvaluationRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(msg.UserID) == "" {
		return nil, fmt.Errorf("evaluation request without user_id")
	}
	return &msg, nil
}

// AlertCreated announces a newly persisted alert.
type AlertCreated struct {
	AlertID   string         `json:"alert_id"`
	UserID    string         `json:"user_id"`
	AlertType core.AlertType `json:"alert_type"`
	Priority  core.Priority  `json:"priority"`
	Title     string         `json:"title"`
	CreatedAt time.Time      `json:"created_at"`
}

func NewAlertCreated(a core.AlertRecord) *AlertCreated {
	return &AlertCreated{
		AlertID:   a.ID,
		UserID:    a.UserID,
		AlertType: a.AlertType,
		Priority:  a.Priority,
		Title:     a.Title,
		CreatedAt: a.CreatedAt,
	}
}

func (m *AlertCreated) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ErrPermanent marks handler failures that retrying cannot fix. Such
// deliveries are rejected without requeue.
var ErrPermanent = errors.New("permanent failure")

// Permanent wraps err so the consumer drops the delivery.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}
