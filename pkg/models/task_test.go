package models

import "testing"

func TestTaskStatusValid(t *testing.T) {
	valid := []TaskStatus{
		TaskStatusPending, TaskStatusAssigned, TaskStatusInProgress,
		TaskStatusReview, TaskStatusInRevision, TaskStatusApproved, TaskStatusAborted,
	}
	for _, s := range valid {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if TaskStatus("done").Valid() {
		t.Error("unknown status should not be valid")
	}
}

func TestTaskStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to TaskStatus
		want     bool
	}{
		{TaskStatusPending, TaskStatusAssigned, true},
		{TaskStatusPending, TaskStatusInProgress, false},
		{TaskStatusAssigned, TaskStatusInProgress, true},
		{TaskStatusInProgress, TaskStatusReview, true},
		{TaskStatusInProgress, TaskStatusApproved, false},
		{TaskStatusReview, TaskStatusApproved, true},
		{TaskStatusReview, TaskStatusInRevision, true},
		{TaskStatusInRevision, TaskStatusInProgress, true},
		{TaskStatusInRevision, TaskStatusReview, false},
		// any non-terminal state may abort
		{TaskStatusPending, TaskStatusAborted, true},
		{TaskStatusAssigned, TaskStatusAborted, true},
		{TaskStatusInProgress, TaskStatusAborted, true},
		{TaskStatusReview, TaskStatusAborted, true},
		{TaskStatusInRevision, TaskStatusAborted, true},
		// terminal states go nowhere
		{TaskStatusApproved, TaskStatusAborted, false},
		{TaskStatusAborted, TaskStatusAborted, false},
		{TaskStatusApproved, TaskStatusInProgress, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTaskStatusTerminal(t *testing.T) {
	if !TaskStatusApproved.Terminal() || !TaskStatusAborted.Terminal() {
		t.Error("approved and aborted should be terminal")
	}
	if TaskStatusReview.Terminal() {
		t.Error("review should not be terminal")
	}
}

func TestRevisionRecordROI(t *testing.T) {
	r := RevisionRecord{QualityBefore: 0.5, QualityAfter: 0.7, Cost: 2.0}
	if got := r.ROI(); got != 0.1 {
		t.Errorf("ROI = %v, want 0.1", got)
	}

	free := RevisionRecord{QualityBefore: 0.5, QualityAfter: 0.7, Cost: 0}
	if got := free.ROI(); got != 0 {
		t.Errorf("zero-cost ROI = %v, want 0", got)
	}
}
