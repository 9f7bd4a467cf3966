package server

import (
	"boardflow/internal/domain"
	"boardflow/internal/engine"
	"boardflow/internal/schedule"
)

// Request payloads

type CreateAppealRequest struct {
	ID             *string `json:"id,omitempty"`
	Docket         string  `json:"docket" enum:"legacy,direct_review,evidence_submission,hearing"`
	ReceiptDate    string  `json:"receipt_date" format:"date"`
	AOD            bool    `json:"aod,omitempty"`
	CAVC           bool    `json:"cavc,omitempty"`
	TiedJudgeID    *string `json:"tied_judge_id,omitempty"`
	RegionalOffice *string `json:"regional_office,omitempty"`
	Ready          bool    `json:"ready,omitempty"`
}

type CreateTaskRequest struct {
	ID            *string  `json:"id,omitempty"`
	AppealID      string   `json:"appeal_id"`
	ParentID      *string  `json:"parent_id,omitempty"`
	Type          string   `json:"type"`
	AssignedToID  *string  `json:"assigned_to_id,omitempty"`
	AssignedToOrg *string  `json:"assigned_to_org,omitempty"`
	Instructions  []string `json:"instructions,omitempty"`
}

type UpdateTaskRequest struct {
	Status       *string  `json:"status,omitempty" enum:"assigned,in_progress,on_hold,completed,cancelled"`
	AssignedToID *string  `json:"assigned_to_id,omitempty"`
	Instructions []string `json:"instructions,omitempty"`
}

type TimedHoldRequest struct {
	Days         int      `json:"days" minimum:"1"`
	Instructions []string `json:"instructions,omitempty"`
}

type ScheduleHearingRequest struct {
	HearingDayID         string `json:"hearing_day_id"`
	ScheduledTime        string `json:"scheduled_time,omitempty"`
	EvidenceWindowWaived bool   `json:"evidence_window_waived,omitempty"`
}

type AfterDispositionUpdateRequest struct {
	Action                  string   `json:"action" enum:"reschedule,schedule_later"`
	NewHearingDayID         string   `json:"new_hearing_day_id,omitempty"`
	NewScheduledTime        string   `json:"new_scheduled_time,omitempty"`
	WithAdminAction         bool     `json:"with_admin_action,omitempty"`
	AdminActionInstructions []string `json:"admin_action_instructions,omitempty"`
}

type SetDispositionRequest struct {
	Disposition  string                         `json:"disposition" enum:"held,cancelled,postponed,no_show"`
	Instructions []string                       `json:"instructions,omitempty"`
	After        *AfterDispositionUpdateRequest `json:"after,omitempty"`
}

type ChangeDispositionRequest struct {
	Instructions []string `json:"instructions,omitempty"`
}

type BulkAssignRequest struct {
	Organization   string `json:"organization"`
	TaskType       string `json:"task_type"`
	AssignedToID   string `json:"assigned_to_id"`
	Count          int    `json:"count" minimum:"1"`
	RegionalOffice string `json:"regional_office,omitempty"`
}

type CreateCavcRemandRequest struct {
	AppealID         string   `json:"appeal_id"`
	CavcDocketNumber string   `json:"cavc_docket_number"`
	DecisionType     string   `json:"decision_type" enum:"remand,straight_reversal,death_dismissal"`
	RemandSubtype    string   `json:"remand_subtype,omitempty" enum:"jmr,jmpr,mdr"`
	JudgeName        string   `json:"judge_name"`
	DecisionDate     string   `json:"decision_date" format:"date"`
	JudgementDate    string   `json:"judgement_date,omitempty" format:"date"`
	MandateDate      string   `json:"mandate_date,omitempty" format:"date"`
	DecisionIssueIDs []string `json:"decision_issue_ids"`
	Instructions     string   `json:"instructions"`
}

type CompleteCavcRemandRequest struct {
	JudgementDate string `json:"judgement_date" format:"date"`
	MandateDate   string `json:"mandate_date" format:"date"`
}

type MarkInRangeRequest struct {
	AppealIDs []string `json:"appeal_ids"`
}

// Response payloads

type AppealResponse struct {
	ID                 string  `json:"id"`
	Docket             string  `json:"docket" enum:"legacy,direct_review,evidence_submission,hearing"`
	Stream             string  `json:"stream" enum:"original,court_remand"`
	ReceiptDate        string  `json:"receipt_date" format:"date"`
	TargetDecisionDate *string `json:"target_decision_date,omitempty" format:"date"`
	AOD                bool    `json:"aod"`
	CAVC               bool    `json:"cavc"`
	Priority           bool    `json:"priority"`
	TiedJudgeID        *string `json:"tied_judge_id,omitempty"`
	ReadyAt            *string `json:"ready_at,omitempty" format:"date-time"`
	DocketRangeDate    *string `json:"docket_range_date,omitempty" format:"date"`
	RegionalOffice     *string `json:"regional_office,omitempty"`
	CreatedAt          string  `json:"created_at" format:"date-time"`
}

type TaskResponse struct {
	ID             string   `json:"id"`
	AppealID       string   `json:"appeal_id"`
	ParentID       *string  `json:"parent_id,omitempty"`
	Type           string   `json:"type"`
	Label          string   `json:"label"`
	Status         string   `json:"status" enum:"assigned,in_progress,on_hold,completed,cancelled"`
	AssignedToID   *string  `json:"assigned_to_id,omitempty"`
	AssignedToOrg  *string  `json:"assigned_to_org,omitempty"`
	AssignedByID   *string  `json:"assigned_by_id,omitempty"`
	CancelledByID  *string  `json:"cancelled_by_id,omitempty"`
	Instructions   []string `json:"instructions,omitempty"`
	OnHoldDuration *int     `json:"on_hold_duration,omitempty"`
	PlacedOnHoldAt *string  `json:"placed_on_hold_at,omitempty" format:"date-time"`
	CreatedAt      string   `json:"created_at" format:"date-time"`
	ClosedAt       *string  `json:"closed_at,omitempty" format:"date-time"`
}

type HearingResponse struct {
	ID                   string  `json:"id"`
	AppealID             string  `json:"appeal_id"`
	HearingDayID         string  `json:"hearing_day_id"`
	HearingTaskID        *string `json:"hearing_task_id,omitempty"`
	Disposition          *string `json:"disposition,omitempty" enum:"held,cancelled,postponed,no_show"`
	ScheduledTime        string  `json:"scheduled_time,omitempty"`
	EvidenceWindowWaived bool    `json:"evidence_window_waived"`
}

type CavcRemandResponse struct {
	ID               string   `json:"id"`
	AppealID         string   `json:"appeal_id"`
	CavcDocketNumber string   `json:"cavc_docket_number"`
	DecisionType     string   `json:"decision_type"`
	RemandSubtype    *string  `json:"remand_subtype,omitempty"`
	JudgeName        string   `json:"judge_name"`
	DecisionDate     string   `json:"decision_date" format:"date"`
	JudgementDate    *string  `json:"judgement_date,omitempty" format:"date"`
	MandateDate      *string  `json:"mandate_date,omitempty" format:"date"`
	DecisionIssueIDs []string `json:"decision_issue_ids"`
	RemandAppealID   *string  `json:"remand_appeal_id,omitempty"`
}

type JudgeAssignmentResponse struct {
	HearingDayID   string  `json:"hearing_day_id"`
	Type           string  `json:"type" enum:"central,video,travel_board"`
	Date           string  `json:"date" format:"date"`
	Room           string  `json:"room,omitempty"`
	RegionalOffice *string `json:"regional_office,omitempty"`
	JudgeID        string  `json:"judge_id"`
	JudgeName      string  `json:"judge_name"`
}

type ProportionsResponse struct {
	Proportions map[string]float64 `json:"proportions"`
	BatchSize   int                `json:"batch_size"`
	Priority    int                `json:"priority_count"`
}

type NextAssigneeResponse struct {
	UserID string `json:"user_id"`
	Handle string `json:"handle"`
	Name   string `json:"name,omitempty"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	AppealID   string `json:"appeal_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload"`
}

func appealResponse(a domain.Appeal) AppealResponse {
	return AppealResponse{
		ID:                 a.ID,
		Docket:             a.Docket,
		Stream:             a.Stream,
		ReceiptDate:        a.ReceiptDate,
		TargetDecisionDate: a.TargetDecisionDate,
		AOD:                a.AOD,
		CAVC:               a.CAVC,
		Priority:           a.Priority(),
		TiedJudgeID:        a.TiedJudgeID,
		ReadyAt:            a.ReadyAt,
		DocketRangeDate:    a.DocketRangeDate,
		RegionalOffice:     a.RegionalOffice,
		CreatedAt:          a.CreatedAt,
	}
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:             t.ID,
		AppealID:       t.AppealID,
		ParentID:       t.ParentID,
		Type:           t.Type,
		Label:          engine.TaskTypeLabel(t.Type),
		Status:         t.Status,
		AssignedToID:   t.AssignedToID,
		AssignedToOrg:  t.AssignedToOrg,
		AssignedByID:   t.AssignedByID,
		CancelledByID:  t.CancelledByID,
		Instructions:   t.Instructions,
		OnHoldDuration: t.OnHoldDuration,
		PlacedOnHoldAt: t.PlacedOnHoldAt,
		CreatedAt:      t.CreatedAt,
		ClosedAt:       t.ClosedAt,
	}
}

func mapTasks(tasks []domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskResponse(t))
	}
	return out
}

func hearingResponse(h domain.Hearing) HearingResponse {
	return HearingResponse{
		ID:                   h.ID,
		AppealID:             h.AppealID,
		HearingDayID:         h.HearingDayID,
		HearingTaskID:        h.HearingTaskID,
		Disposition:          h.Disposition,
		ScheduledTime:        h.ScheduledTime,
		EvidenceWindowWaived: h.EvidenceWindowWaived,
	}
}

func cavcRemandResponse(c domain.CavcRemand) CavcRemandResponse {
	return CavcRemandResponse{
		ID:               c.ID,
		AppealID:         c.AppealID,
		CavcDocketNumber: c.CavcDocketNumber,
		DecisionType:     c.DecisionType,
		RemandSubtype:    c.RemandSubtype,
		JudgeName:        c.JudgeName,
		DecisionDate:     c.DecisionDate,
		JudgementDate:    c.JudgementDate,
		MandateDate:      c.MandateDate,
		DecisionIssueIDs: c.DecisionIssueIDs,
		RemandAppealID:   c.RemandAppealID,
	}
}

func mapAssignments(in []schedule.JudgeAssignment) []JudgeAssignmentResponse {
	out := make([]JudgeAssignmentResponse, 0, len(in))
	for _, a := range in {
		out = append(out, JudgeAssignmentResponse{
			HearingDayID:   a.HearingDayID,
			Type:           a.Type,
			Date:           a.Date,
			Room:           a.Room,
			RegionalOffice: a.RegionalOffice,
			JudgeID:        a.JudgeID,
			JudgeName:      a.JudgeName,
		})
	}
	return out
}

func mapEvents(in []domain.Event) []EventResponse {
	out := make([]EventResponse, 0, len(in))
	for _, e := range in {
		out = append(out, EventResponse{
			ID:         e.ID,
			TS:         e.TS,
			Type:       e.Type,
			AppealID:   e.AppealID,
			EntityKind: e.EntityKind,
			EntityID:   e.EntityID,
			ActorID:    e.ActorID,
			Payload:    e.Payload,
		})
	}
	return out
}
