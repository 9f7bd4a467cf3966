package engine_test

import (
	"errors"
	"testing"

	"boardflow/internal/domain"
	"boardflow/internal/engine"
)

func (env testEnv) addDecisionIssues(t *testing.T, appealID string, ids ...string) {
	t.Helper()
	for _, id := range ids {
		err := env.Engine.Repo.InsertDecisionIssue(env.Ctx, domain.DecisionIssue{
			ID:          id,
			AppealID:    appealID,
			Description: "service connection",
		})
		if err != nil {
			t.Fatalf("insert issue %s: %v", id, err)
		}
	}
}

func validRemandOptions(appealID string) engine.CavcRemandOptions {
	return engine.CavcRemandOptions{
		AppealID:         appealID,
		CavcDocketNumber: "20-1234",
		DecisionType:     domain.CavcTypeRemand,
		RemandSubtype:    domain.CavcSubtypeJMR,
		JudgeName:        "Judge Rivera",
		DecisionDate:     "2024-01-10",
		JudgementDate:    "2024-01-20",
		MandateDate:      "2024-01-25",
		DecisionIssueIDs: []string{"di-1", "di-2"},
		Instructions:     "readjudicate both issues",
		CreatedByID:      "tester",
	}
}

func TestCavcRemandValidation(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAppeal(t, domain.DocketEvidenceSubmission)
	_, err := env.Engine.CreateCavcRemand(env.Ctx, engine.CavcRemandOptions{AppealID: a.ID})
	var verr *engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := map[string]bool{}
	for _, fe := range verr.Errors {
		fields[fe.Field] = true
	}
	for _, want := range []string{"cavc_docket_number", "judge_name", "instructions", "created_by", "decision_date", "decision_type", "judgement_date", "mandate_date", "decision_issue_ids"} {
		if !fields[want] {
			t.Fatalf("expected %s error, got %+v", want, verr.Errors)
		}
	}
}

func TestCavcRemandSubtypeRules(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAppeal(t, domain.DocketEvidenceSubmission)
	env.addDecisionIssues(t, a.ID, "di-1", "di-2")

	// a remand without a subtype
	opts := validRemandOptions(a.ID)
	opts.RemandSubtype = ""
	_, err := env.Engine.CreateCavcRemand(env.Ctx, opts)
	var verr *engine.ValidationError
	if !errors.As(err, &verr) || verr.Errors[0].Field != "remand_subtype" {
		t.Fatalf("expected remand_subtype error, got %v", err)
	}

	// a subtype on a non-remand
	opts = validRemandOptions(a.ID)
	opts.DecisionType = domain.CavcTypeStraightReversal
	_, err = env.Engine.CreateCavcRemand(env.Ctx, opts)
	if !errors.As(err, &verr) || verr.Errors[0].Field != "remand_subtype" {
		t.Fatalf("expected subtype-on-reversal error, got %v", err)
	}
}

func TestCavcRemandJMRNeedsAllIssues(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAppeal(t, domain.DocketEvidenceSubmission)
	env.addDecisionIssues(t, a.ID, "di-1", "di-2", "di-3")

	opts := validRemandOptions(a.ID)
	_, err := env.Engine.CreateCavcRemand(env.Ctx, opts)
	var verr *engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	opts.DecisionIssueIDs = []string{"di-1", "di-2", "di-3"}
	if _, err := env.Engine.CreateCavcRemand(env.Ctx, opts); err != nil {
		t.Fatalf("full issue list should pass: %v", err)
	}
}

func TestCavcRemandRejectsForeignIssue(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAppeal(t, domain.DocketEvidenceSubmission)
	b := env.createAppeal(t, domain.DocketEvidenceSubmission)
	env.addDecisionIssues(t, a.ID, "di-1", "di-2")
	env.addDecisionIssues(t, b.ID, "di-other")

	opts := validRemandOptions(a.ID)
	opts.DecisionIssueIDs = []string{"di-1", "di-other"}
	_, err := env.Engine.CreateCavcRemand(env.Ctx, opts)
	var verr *engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestCavcRemandEstablishesCourtRemandStream(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAppeal(t, domain.DocketEvidenceSubmission)
	env.addDecisionIssues(t, a.ID, "di-1", "di-2")

	c, err := env.Engine.CreateCavcRemand(env.Ctx, validRemandOptions(a.ID))
	if err != nil {
		t.Fatalf("create remand: %v", err)
	}
	if c.RemandAppealID == nil {
		t.Fatalf("judgement and mandate present, remand stream should establish")
	}
	remand, err := env.Engine.Repo.GetAppeal(env.Ctx, *c.RemandAppealID)
	if err != nil {
		t.Fatalf("load remand appeal: %v", err)
	}
	if remand.Stream != domain.StreamCourtRemand {
		t.Fatalf("remand appeal stream should be %s, is %s", domain.StreamCourtRemand, remand.Stream)
	}
	if !remand.CAVC {
		t.Fatalf("remand appeal should carry the court-remand priority flag")
	}
	if remand.Docket != a.Docket || remand.ReceiptDate != a.ReceiptDate {
		t.Fatalf("remand appeal should reuse the source docket and receipt date")
	}
	if remand.ReadyAt == nil {
		t.Fatalf("remand appeal should be ready for distribution")
	}
	// the new stream gets its own task tree
	if root := env.singleTask(t, remand.ID, domain.TaskTypeRoot); !root.Open() {
		t.Fatalf("remand appeal root task should be open")
	}
}

func TestMemorandumDecisionEstablishesLater(t *testing.T) {
	env := newTestEnv(t)
	a := env.createAppeal(t, domain.DocketEvidenceSubmission)
	env.addDecisionIssues(t, a.ID, "di-1", "di-2")

	opts := validRemandOptions(a.ID)
	opts.RemandSubtype = domain.CavcSubtypeMDR
	opts.JudgementDate = ""
	opts.MandateDate = ""
	c, err := env.Engine.CreateCavcRemand(env.Ctx, opts)
	if err != nil {
		t.Fatalf("create mdr remand: %v", err)
	}
	if c.RemandAppealID != nil {
		t.Fatalf("memorandum decision should wait for its mandate")
	}

	c, err = env.Engine.CompleteCavcRemand(env.Ctx, c.ID, "2024-02-01", "2024-02-05", "tester")
	if err != nil {
		t.Fatalf("complete remand: %v", err)
	}
	if c.RemandAppealID == nil {
		t.Fatalf("completing should establish the remand stream")
	}
	if c.JudgementDate == nil || *c.JudgementDate != "2024-02-01" {
		t.Fatalf("judgement date not recorded")
	}

	// completing twice is refused
	_, err = env.Engine.CompleteCavcRemand(env.Ctx, c.ID, "2024-02-01", "2024-02-05", "tester")
	var verr *engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected already-established rejection, got %v", err)
	}
}
