package engine

import (
	"fmt"

	"boardflow/internal/domain"
)

// typePolicy is the per-variant behavior shared by the closed set of task
// types: how closure cascades and which parents are legal.
type typePolicy struct {
	label          string
	cascadeClosure bool
	// parentTypes restricts legal parents; empty means any (or none).
	parentTypes []string
	// requireParent makes a parent mandatory.
	requireParent bool
}

var taskPolicies = map[string]typePolicy{
	domain.TaskTypeRoot:    {label: "Root", cascadeClosure: true},
	domain.TaskTypeGeneric: {label: "Task"},
	domain.TaskTypeHearing: {label: "Hearing", cascadeClosure: true},
	domain.TaskTypeScheduleHearing: {
		label: "Schedule hearing",
	},
	domain.TaskTypeAssignHearingDisposition: {
		label:          "Select hearing disposition",
		cascadeClosure: true,
		parentTypes:    []string{domain.TaskTypeHearing},
		requireParent:  true,
	},
	domain.TaskTypeDisposition: {
		label:          "Hearing disposition",
		cascadeClosure: true,
		parentTypes:    []string{domain.TaskTypeHearing},
		requireParent:  true,
	},
	domain.TaskTypeTranscription:            {label: "Transcription"},
	domain.TaskTypeEvidenceSubmissionWindow: {label: "Evidence submission window"},
	domain.TaskTypeNoShowHearing:            {label: "No show hearing"},
	domain.TaskTypeChangeHearingDisposition: {
		label:       "Change hearing disposition",
		parentTypes: []string{domain.TaskTypeHearing},
	},
	domain.TaskTypeHearingAdminAction: {
		label:       "Hearing admin action",
		parentTypes: []string{domain.TaskTypeScheduleHearing},
	},
}

// TaskTypeLabel returns the display label for a task type tag.
func TaskTypeLabel(taskType string) string {
	if p, ok := taskPolicies[taskType]; ok {
		return p.label
	}
	return taskType
}

// KnownTaskType reports whether the type tag is in the closed set.
func KnownTaskType(taskType string) bool {
	_, ok := taskPolicies[taskType]
	return ok
}

func (p typePolicy) checkParent(taskType string, parent *domain.Task) error {
	if parent == nil {
		if p.requireParent {
			return fmt.Errorf("task type %s requires a parent", taskType)
		}
		return nil
	}
	if len(p.parentTypes) == 0 {
		return nil
	}
	for _, allowed := range p.parentTypes {
		if parent.Type == allowed {
			return nil
		}
	}
	return fmt.Errorf("invalid parent task type %s for %s", parent.Type, taskType)
}

// AvailableActions lists the disposition actions a task type supports. The
// hearings management organization drives these from its queue.
func AvailableActions(taskType string) []string {
	switch taskType {
	case domain.TaskTypeAssignHearingDisposition, domain.TaskTypeDisposition:
		return []string{"hold", "cancel", "no_show", "postpone", "change_disposition"}
	case domain.TaskTypeScheduleHearing:
		return []string{"schedule"}
	default:
		return nil
	}
}
