// README: JSON views of jobs and events.
package handlers

import (
	"time"

	"plow/internal/modules/job"
	"plow/internal/types"
)

type jobResponse struct {
	ID             types.ID          `json:"id"`
	ClientID       types.ID          `json:"client_id"`
	OperatorID     *types.ID         `json:"operator_id,omitempty"`
	Status         job.Status        `json:"status"`
	PaymentStatus  job.PaymentStatus `json:"payment_status"`
	PaymentMethod  job.PaymentMethod `json:"payment_method"`
	Details        job.Details       `json:"details"`
	Version        int64             `json:"version"`
	EvidenceRef    string            `json:"evidence_ref,omitempty"`
	CancelReason   string            `json:"cancel_reason,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	CompletionTime *time.Time        `json:"completion_time,omitempty"`
}

func toJobResponse(j *job.Job) *jobResponse {
	if j == nil {
		return nil
	}
	return &jobResponse{
		ID:             j.ID,
		ClientID:       j.ClientID,
		OperatorID:     j.OperatorID,
		Status:         j.Status,
		PaymentStatus:  j.PaymentStatus,
		PaymentMethod:  j.PaymentMethod,
		Details:        j.Details,
		Version:        j.Version,
		EvidenceRef:    j.EvidenceRef,
		CancelReason:   j.CancelReason,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
		CompletionTime: j.CompletionTime,
	}
}

func toJobResponses(jobs []*job.Job) []*jobResponse {
	out := make([]*jobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobResponse(j))
	}
	return out
}

type eventResponse struct {
	From    job.Status `json:"from,omitempty"`
	To      job.Status `json:"to"`
	ActorID *types.ID  `json:"actor_id,omitempty"`
	Note    string     `json:"note,omitempty"`
	At      time.Time  `json:"at"`
}

func toEventResponses(events []*job.Event) []eventResponse {
	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, eventResponse{From: e.FromStatus, To: e.ToStatus, ActorID: e.ActorID, Note: e.Note, At: e.CreatedAt})
	}
	return out
}
