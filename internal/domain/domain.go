package domain

// Docket names. Every appeal belongs to exactly one docket.
const (
	DocketLegacy             = "legacy"
	DocketDirectReview       = "direct_review"
	DocketEvidenceSubmission = "evidence_submission"
	DocketHearing            = "hearing"
)

// Dockets lists all docket names in canonical order.
var Dockets = []string{DocketLegacy, DocketDirectReview, DocketEvidenceSubmission, DocketHearing}

// Task statuses.
const (
	TaskStatusAssigned   = "assigned"
	TaskStatusInProgress = "in_progress"
	TaskStatusOnHold     = "on_hold"
	TaskStatusCompleted  = "completed"
	TaskStatusCancelled  = "cancelled"
)

// Task types. The set is closed; dispatch is by type tag.
const (
	TaskTypeRoot                     = "root"
	TaskTypeGeneric                  = "generic"
	TaskTypeHearing                  = "hearing"
	TaskTypeScheduleHearing          = "schedule_hearing"
	TaskTypeAssignHearingDisposition = "assign_hearing_disposition"
	TaskTypeDisposition              = "disposition"
	TaskTypeTranscription            = "transcription"
	TaskTypeEvidenceSubmissionWindow = "evidence_submission_window"
	TaskTypeNoShowHearing            = "no_show_hearing"
	TaskTypeChangeHearingDisposition = "change_hearing_disposition"
	TaskTypeHearingAdminAction       = "hearing_admin_action"
)

// Hearing dispositions.
const (
	DispositionHeld      = "held"
	DispositionCancelled = "cancelled"
	DispositionPostponed = "postponed"
	DispositionNoShow    = "no_show"
)

// Hearing day types.
const (
	HearingDayTypeCentral     = "central"
	HearingDayTypeVideo       = "video"
	HearingDayTypeTravelBoard = "travel_board"
)

// Appeal stream types.
const (
	StreamOriginal    = "original"
	StreamCourtRemand = "court_remand"
)

type Appeal struct {
	ID                 string  `json:"id"`
	Docket             string  `json:"docket" enum:"legacy,direct_review,evidence_submission,hearing"`
	Stream             string  `json:"stream" enum:"original,court_remand"`
	ReceiptDate        string  `json:"receipt_date" format:"date"`
	TargetDecisionDate *string `json:"target_decision_date,omitempty" format:"date"`
	AOD                bool    `json:"aod"`
	CAVC               bool    `json:"cavc"`
	TiedJudgeID        *string `json:"tied_judge_id,omitempty"`
	ReadyAt            *string `json:"ready_at,omitempty" format:"date-time"`
	DocketRangeDate    *string `json:"docket_range_date,omitempty" format:"date"`
	RegionalOffice     *string `json:"regional_office,omitempty"`
	CreatedAt          string  `json:"created_at" format:"date-time"`
}

// Priority reports whether the appeal is priority-eligible for distribution.
func (a Appeal) Priority() bool {
	return a.AOD || a.CAVC
}

type Task struct {
	ID             string   `json:"id"`
	AppealID       string   `json:"appeal_id"`
	ParentID       *string  `json:"parent_id,omitempty"`
	Type           string   `json:"type"`
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

// Open reports whether the task is in a non-terminal status.
func (t Task) Open() bool {
	return t.Status != TaskStatusCompleted && t.Status != TaskStatusCancelled
}

type Hearing struct {
	ID                   string  `json:"id"`
	AppealID             string  `json:"appeal_id"`
	HearingDayID         string  `json:"hearing_day_id"`
	HearingTaskID        *string `json:"hearing_task_id,omitempty"`
	Disposition          *string `json:"disposition,omitempty" enum:"held,cancelled,postponed,no_show"`
	ScheduledTime        string  `json:"scheduled_time"`
	EvidenceWindowWaived bool    `json:"evidence_window_waived"`
	CreatedAt            string  `json:"created_at" format:"date-time"`
}

type HearingDay struct {
	ID               string  `json:"id"`
	SchedulePeriodID string  `json:"schedule_period_id"`
	Date             string  `json:"date" format:"date"`
	Type             string  `json:"type" enum:"central,video,travel_board"`
	Room             string  `json:"room,omitempty"`
	RegionalOffice   *string `json:"regional_office,omitempty"`
	JudgeID          *string `json:"judge_id,omitempty"`
}

type SchedulePeriod struct {
	ID        string `json:"id"`
	StartDate string `json:"start_date" format:"date"`
	EndDate   string `json:"end_date" format:"date"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// NonAvailability records a single date a judge cannot sit.
type NonAvailability struct {
	SchedulePeriodID string `json:"schedule_period_id"`
	JudgeHandle      string `json:"judge_handle"`
	Date             string `json:"date" format:"date"`
}

// TravelBoardDay is a travel-board commitment spanning a date range for up
// to four member judges. Members get blackout windows around the range.
type TravelBoardDay struct {
	ID        string   `json:"id"`
	StartDate string   `json:"start_date" format:"date"`
	EndDate   string   `json:"end_date" format:"date"`
	MemberIDs []string `json:"member_ids"`
}

type User struct {
	ID            string `json:"id"`
	Handle        string `json:"handle"`
	FullName      string `json:"full_name,omitempty"`
	FirstName     string `json:"first_name,omitempty"`
	MiddleInitial string `json:"middle_initial,omitempty"`
	LastName      string `json:"last_name,omitempty"`
	Judge         bool   `json:"judge"`
	Attorney      bool   `json:"attorney"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

// DisplayName prefers the stored full name and falls back to a name composed
// from the staff fields.
func (u User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	name := u.FirstName
	if u.MiddleInitial != "" {
		name += " " + u.MiddleInitial
	}
	if u.LastName != "" {
		name += " " + u.LastName
	}
	return name
}

type Organization struct {
	Name      string `json:"name"`
	Label     string `json:"label,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type OrgMembership struct {
	OrgName string `json:"org_name"`
	UserID  string `json:"user_id"`
	Admin   bool   `json:"admin"`
}

// DistributionCursor is the persisted round-robin position for a named
// distributor. It only ever moves forward, modulo the pool size at read time.
type DistributionCursor struct {
	Name     string `json:"name"`
	Position int    `json:"position"`
}

// CAVC decision types and remand subtypes.
const (
	CavcTypeRemand           = "remand"
	CavcTypeStraightReversal = "straight_reversal"
	CavcTypeDeathDismissal   = "death_dismissal"

	CavcSubtypeJMR  = "jmr"
	CavcSubtypeJMPR = "jmpr"
	CavcSubtypeMDR  = "mdr"
)

type CavcRemand struct {
	ID               string   `json:"id"`
	AppealID         string   `json:"appeal_id"`
	CavcDocketNumber string   `json:"cavc_docket_number"`
	DecisionType     string   `json:"decision_type" enum:"remand,straight_reversal,death_dismissal"`
	RemandSubtype    *string  `json:"remand_subtype,omitempty" enum:"jmr,jmpr,mdr"`
	JudgeName        string   `json:"judge_name"`
	DecisionDate     string   `json:"decision_date" format:"date"`
	JudgementDate    *string  `json:"judgement_date,omitempty" format:"date"`
	MandateDate      *string  `json:"mandate_date,omitempty" format:"date"`
	DecisionIssueIDs []string `json:"decision_issue_ids"`
	Instructions     string   `json:"instructions"`
	RemandAppealID   *string  `json:"remand_appeal_id,omitempty"`
	CreatedByID      string   `json:"created_by_id"`
	CreatedAt        string   `json:"created_at" format:"date-time"`
}

type DecisionIssue struct {
	ID          string `json:"id"`
	AppealID    string `json:"appeal_id"`
	Description string `json:"description,omitempty"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	AppealID   string `json:"appeal_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// FieldError is a single field-level validation problem. Recoverable
// validation failures are reported as a list of these, never one string.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}
