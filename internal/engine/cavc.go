package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"boardflow/internal/domain"
	"boardflow/internal/events"
)

// CavcRemandOptions are the court-decision form fields.
type CavcRemandOptions struct {
	AppealID         string
	CavcDocketNumber string
	DecisionType     string
	RemandSubtype    string
	JudgeName        string
	DecisionDate     string
	JudgementDate    string
	MandateDate      string
	DecisionIssueIDs []string
	Instructions     string
	CreatedByID      string
}

// CreateCavcRemand records a decision by the Court of Appeals for Veterans
// Claims against an appeal and, once the judgement and mandate dates are
// known, opens the court_remand appeal stream that sends the case back
// through the board. Memorandum decisions wait for their mandate.
func (e Engine) CreateCavcRemand(ctx context.Context, opts CavcRemandOptions) (domain.CavcRemand, error) {
	source, err := e.Repo.GetAppeal(ctx, opts.AppealID)
	if err != nil {
		return domain.CavcRemand{}, err
	}
	if err := e.validateCavcRemand(ctx, source, opts); err != nil {
		return domain.CavcRemand{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.CavcRemand{}, err
	}
	defer tx.Rollback()

	c := domain.CavcRemand{
		ID:               uuid.New().String(),
		AppealID:         source.ID,
		CavcDocketNumber: opts.CavcDocketNumber,
		DecisionType:     opts.DecisionType,
		RemandSubtype:    optionalString(opts.RemandSubtype),
		JudgeName:        opts.JudgeName,
		DecisionDate:     opts.DecisionDate,
		JudgementDate:    optionalString(opts.JudgementDate),
		MandateDate:      optionalString(opts.MandateDate),
		DecisionIssueIDs: opts.DecisionIssueIDs,
		Instructions:     opts.Instructions,
		CreatedByID:      opts.CreatedByID,
		CreatedAt:        e.now().UTC().Format(time.RFC3339),
	}
	if c.JudgementDate != nil && c.MandateDate != nil {
		remand, err := e.establishCourtRemandTx(ctx, tx, source, opts.CreatedByID)
		if err != nil {
			return domain.CavcRemand{}, err
		}
		c.RemandAppealID = &remand.ID
	}
	if err := e.Repo.InsertCavcRemand(ctx, tx, c); err != nil {
		return domain.CavcRemand{}, fmt.Errorf("insert cavc remand: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "cavc_remand.created", source.ID, "cavc_remand", c.ID, opts.CreatedByID, events.EventPayload{
		"decision_type":  c.DecisionType,
		"remand_subtype": opts.RemandSubtype,
	}); err != nil {
		return domain.CavcRemand{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.CavcRemand{}, err
	}
	return c, nil
}

func (e Engine) validateCavcRemand(ctx context.Context, source domain.Appeal, opts CavcRemandOptions) error {
	verr := &ValidationError{}
	if opts.CavcDocketNumber == "" {
		verr.add("cavc_docket_number", "can't be blank")
	}
	if opts.JudgeName == "" {
		verr.add("judge_name", "can't be blank")
	}
	if opts.Instructions == "" {
		verr.add("instructions", "can't be blank")
	}
	if opts.CreatedByID == "" {
		verr.add("created_by", "can't be blank")
	}
	if opts.DecisionDate == "" {
		verr.add("decision_date", "can't be blank")
	} else if _, err := time.Parse(dateLayout, opts.DecisionDate); err != nil {
		verr.add("decision_date", "is not a valid date")
	}
	switch opts.DecisionType {
	case domain.CavcTypeRemand:
		switch opts.RemandSubtype {
		case domain.CavcSubtypeJMR, domain.CavcSubtypeJMPR, domain.CavcSubtypeMDR:
		case "":
			verr.add("remand_subtype", "can't be blank for a remand")
		default:
			verr.add("remand_subtype", fmt.Sprintf("is not a known remand subtype: %s", opts.RemandSubtype))
		}
	case domain.CavcTypeStraightReversal, domain.CavcTypeDeathDismissal:
		if opts.RemandSubtype != "" {
			verr.add("remand_subtype", "only applies to remands")
		}
	case "":
		verr.add("decision_type", "can't be blank")
	default:
		verr.add("decision_type", fmt.Sprintf("is not a known decision type: %s", opts.DecisionType))
	}
	// Memorandum decisions are the only kind allowed to arrive before the
	// court issues judgement and mandate.
	mdr := opts.DecisionType == domain.CavcTypeRemand && opts.RemandSubtype == domain.CavcSubtypeMDR
	if !mdr {
		if opts.JudgementDate == "" {
			verr.add("judgement_date", "can't be blank")
		}
		if opts.MandateDate == "" {
			verr.add("mandate_date", "can't be blank")
		}
	}
	if len(opts.DecisionIssueIDs) == 0 {
		verr.add("decision_issue_ids", "can't be blank")
	} else {
		known, err := e.Repo.ListDecisionIssueIDs(ctx, source.ID)
		if err != nil {
			return err
		}
		knownSet := map[string]bool{}
		for _, id := range known {
			knownSet[id] = true
		}
		for _, id := range opts.DecisionIssueIDs {
			if !knownSet[id] {
				verr.add("decision_issue_ids", fmt.Sprintf("contains an issue not on the appeal: %s", id))
			}
		}
		// A joint motion for remand vacates the whole decision, so it must
		// name every issue.
		if opts.DecisionType == domain.CavcTypeRemand && opts.RemandSubtype == domain.CavcSubtypeJMR &&
			len(opts.DecisionIssueIDs) < len(known) {
			verr.add("decision_issue_ids", "must include all decision issues for a joint motion for remand")
		}
	}
	return verr.orNil()
}

// CompleteCavcRemand supplies the judgement and mandate dates after the fact
// and establishes the court_remand stream that was held back for them.
func (e Engine) CompleteCavcRemand(ctx context.Context, remandID, judgementDate, mandateDate, actorID string) (domain.CavcRemand, error) {
	c, err := e.Repo.GetCavcRemand(ctx, remandID)
	if err != nil {
		return c, err
	}
	verr := &ValidationError{}
	if judgementDate == "" {
		verr.add("judgement_date", "can't be blank")
	}
	if mandateDate == "" {
		verr.add("mandate_date", "can't be blank")
	}
	if c.RemandAppealID != nil {
		verr.add("remand_appeal", "already established")
	}
	if err := verr.orNil(); err != nil {
		return c, err
	}
	source, err := e.Repo.GetAppeal(ctx, c.AppealID)
	if err != nil {
		return c, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return c, err
	}
	defer tx.Rollback()

	remand, err := e.establishCourtRemandTx(ctx, tx, source, actorID)
	if err != nil {
		return c, err
	}
	c.JudgementDate = &judgementDate
	c.MandateDate = &mandateDate
	c.RemandAppealID = &remand.ID
	if _, err := tx.ExecContext(ctx,
		`UPDATE cavc_remands SET judgement_date=?, mandate_date=?, remand_appeal_id=? WHERE id=?`,
		judgementDate, mandateDate, remand.ID, c.ID); err != nil {
		return c, err
	}
	if err := e.Events.Append(ctx, tx, "cavc_remand.completed", c.AppealID, "cavc_remand", c.ID, actorID, events.EventPayload{
		"remand_appeal_id": remand.ID,
	}); err != nil {
		return c, err
	}
	if err := tx.Commit(); err != nil {
		return c, err
	}
	return c, nil
}

// establishCourtRemandTx opens the court_remand stream: a new appeal on the
// same docket carrying the court-remand priority flag, with its own task
// tree, ready for distribution immediately.
func (e Engine) establishCourtRemandTx(ctx context.Context, tx *sql.Tx, source domain.Appeal, actorID string) (domain.Appeal, error) {
	receipt, err := time.Parse(dateLayout, source.ReceiptDate)
	if err != nil {
		return domain.Appeal{}, fmt.Errorf("source receipt date: %w", err)
	}
	return e.createAppealTx(ctx, tx, AppealCreateOptions{
		Docket:         source.Docket,
		Stream:         domain.StreamCourtRemand,
		ReceiptDate:    source.ReceiptDate,
		AOD:            source.AOD,
		CAVC:           true,
		RegionalOffice: stringValue(source.RegionalOffice),
		Ready:          true,
		ActorID:        actorID,
	}, receipt)
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
