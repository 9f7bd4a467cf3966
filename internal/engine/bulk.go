package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"boardflow/internal/domain"
)

// ValidationError carries field-level problems for recoverable input errors.
type ValidationError struct {
	Errors []domain.FieldError
}

func (v *ValidationError) Error() string {
	parts := make([]string, 0, len(v.Errors))
	for _, fe := range v.Errors {
		parts = append(parts, fe.Field+" "+fe.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (v *ValidationError) add(field, message string) {
	v.Errors = append(v.Errors, domain.FieldError{Field: field, Message: message})
}

func (v *ValidationError) orNil() error {
	if len(v.Errors) == 0 {
		return nil
	}
	return v
}

// BulkAssignmentOptions are parameters for assigning a batch of an
// organization's queue to one of its members.
type BulkAssignmentOptions struct {
	OrgName      string
	TaskType     string
	AssignedToID string
	AssignedByID string
	Count        int
	// RegionalOffice narrows the queue to appeals in that office. Optional.
	RegionalOffice string
}

// BulkAssign takes the organization's open tasks of one type, orders them so
// advance-on-docket and court-remand appeals always come first, and assigns
// the top N to the chosen member by creating child tasks in one transaction.
func (e Engine) BulkAssign(ctx context.Context, opts BulkAssignmentOptions) ([]domain.Task, error) {
	if err := e.validateBulkAssignment(ctx, opts); err != nil {
		return nil, err
	}
	var tasks []domain.Task
	var err error
	if opts.RegionalOffice != "" {
		tasks, err = e.Repo.ActiveOrgTasksForRegionalOffice(ctx, opts.OrgName, opts.TaskType, opts.RegionalOffice)
	} else {
		tasks, err = e.Repo.ActiveOrgTasks(ctx, opts.OrgName, opts.TaskType)
	}
	if err != nil {
		return nil, err
	}
	tasks, err = e.sortByAppealPriority(ctx, tasks)
	if err != nil {
		return nil, err
	}
	if opts.Count < len(tasks) {
		tasks = tasks[:opts.Count]
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	created := make([]domain.Task, 0, len(tasks))
	for _, parent := range tasks {
		parent := parent
		child, err := e.createTaskTx(ctx, tx, &parent, TaskCreateOptions{
			AppealID:     parent.AppealID,
			Type:         parent.Type,
			AssignedToID: opts.AssignedToID,
			AssignedByID: opts.AssignedByID,
			ActorID:      opts.AssignedByID,
		})
		if err != nil {
			return nil, err
		}
		created = append(created, child)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return created, nil
}

func (e Engine) validateBulkAssignment(ctx context.Context, opts BulkAssignmentOptions) error {
	verr := &ValidationError{}
	if opts.Count <= 0 {
		verr.add("count", "must be greater than zero")
	}
	if !KnownTaskType(opts.TaskType) {
		verr.add("task_type", fmt.Sprintf("is not a known task type: %s", opts.TaskType))
	}
	if opts.RegionalOffice != "" {
		known, err := e.Repo.KnownRegionalOffice(ctx, opts.RegionalOffice)
		if err != nil {
			return err
		}
		if !known {
			verr.add("regional_office", fmt.Sprintf("could not find regional office: %s", opts.RegionalOffice))
		}
	}
	if _, err := e.Repo.GetOrg(ctx, opts.OrgName); err != nil {
		verr.add("organization", fmt.Sprintf("could not find an organization named %s", opts.OrgName))
		return verr.orNil()
	}
	if opts.AssignedToID == "" {
		verr.add("assigned_to", "is required")
		return verr.orNil()
	}
	member, err := e.Repo.IsOrgMember(ctx, opts.OrgName, opts.AssignedToID)
	if err != nil {
		return err
	}
	if !member {
		verr.add("assigned_to", fmt.Sprintf("does not belong to organization %s", opts.OrgName))
	}
	if opts.AssignedByID == "" {
		verr.add("assigned_by", "is required")
		return verr.orNil()
	}
	admin, err := e.Repo.IsOrgAdmin(ctx, opts.OrgName, opts.AssignedByID)
	if err != nil {
		return err
	}
	if !admin {
		verr.add("assigned_by", fmt.Sprintf("is not an admin of organization %s", opts.OrgName))
	}
	return verr.orNil()
}

// sortByAppealPriority orders tasks oldest-first, then boosts AOD and CAVC
// appeals above the rest. The boosts dominate the age component so priority
// cases always sort ahead regardless of batch size, with AOD ahead of CAVC.
func (e Engine) sortByAppealPriority(ctx context.Context, tasks []domain.Task) ([]domain.Task, error) {
	n := len(tasks)
	scores := make([]int, n)
	for i, t := range tasks {
		a, err := e.Repo.GetAppeal(ctx, t.AppealID)
		if err != nil {
			return nil, err
		}
		score := n - i
		if a.AOD {
			score += n * n * n
		}
		if a.CAVC {
			score += n * n
		}
		scores[i] = score
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return scores[idx[i]] > scores[idx[j]] })
	out := make([]domain.Task, n)
	for i, j := range idx {
		out[i] = tasks[j]
	}
	return out, nil
}
