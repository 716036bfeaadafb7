package types

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// TriggerKind records why a job was created.
type TriggerKind string

// Trigger kinds.
const (
	TriggerScheduled TriggerKind = "scheduled"
	TriggerManual    TriggerKind = "manual"
)

// Valid reports whether k is a known trigger kind.
func (k TriggerKind) Valid() bool {
	return k == TriggerScheduled || k == TriggerManual
}

// ApplyPolicy selects how a finished analysis is committed.
type ApplyPolicy string

// Apply policies.
const (
	PolicyReview    ApplyPolicy = "review"
	PolicyAutomatic ApplyPolicy = "automatic"
)

// ProposedChange is a single field-level candidate edit. It only exists
// embedded in its UpdateJob.
type ProposedChange struct {
	Field      string    `json:"field"`
	Label      string    `json:"label"`
	Kind       FieldKind `json:"kind"`
	OldValue   any       `json:"old_value"`
	NewValue   any       `json:"new_value"`
	Confidence float64   `json:"confidence"`
	Reason     string    `json:"reason,omitempty"`
	IsBreaking bool      `json:"is_breaking"`
}

// SourceResult records one source attempt made by the collector.
type SourceResult struct {
	Name      string    `json:"name"`
	URL       string    `json:"url,omitempty"`
	OK        bool      `json:"ok"`
	Chars     int       `json:"chars"`
	Backend   string    `json:"backend,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// SourceError is a recorded, non-fatal per-source failure.
type SourceError struct {
	Source     string    `json:"source"`
	URL        string    `json:"url,omitempty"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// CaptureError is a recorded screenshot failure.
type CaptureError struct {
	URL        string    `json:"url"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Analysis is the structured proposal parsed from the text-generation service.
type Analysis struct {
	Description     string   `json:"description"`
	Overview        string   `json:"overview"`
	Features        []string `json:"features"`
	Tags            []string `json:"tags"`
	Difficulty      string   `json:"difficulty"`
	RemovedFeatures []string `json:"removed_features,omitempty"`
	Confidence      float64  `json:"confidence"`
	Summary         string   `json:"summary,omitempty"`
	Model           string   `json:"model,omitempty"`
}

// UpdateJob is one attempt to refresh one Resource. Jobs are never deleted.
type UpdateJob struct {
	ID           uuid.UUID   `json:"id"`
	ResourceID   uuid.UUID   `json:"resource_id"`
	ResourceSlug string      `json:"resource_slug"`
	Trigger      TriggerKind `json:"trigger"`
	TriggeredBy  *string     `json:"triggered_by,omitempty"`
	Status       JobStatus   `json:"status"`
	Policy       ApplyPolicy `json:"policy"`

	Sources       []SourceResult `json:"sources,omitempty"`
	SourceErrors  []SourceError  `json:"source_errors,omitempty"`
	CollectedText string         `json:"collected_text,omitempty"`
	Facts         *Facts         `json:"facts,omitempty"`

	ProposedChanges    []ProposedChange `json:"proposed_changes"`
	AnalysisConfidence *float64         `json:"analysis_confidence,omitempty"`
	AnalysisSummary    string           `json:"analysis_summary,omitempty"`
	AnalysisModel      string           `json:"analysis_model,omitempty"`

	OldScreenshots   []string       `json:"old_screenshots,omitempty"`
	NewScreenshots   []string       `json:"new_screenshots,omitempty"`
	ScreenshotErrors []CaptureError `json:"screenshot_errors,omitempty"`

	ReviewedBy    *string    `json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty"`
	ReviewNotes   string     `json:"review_notes,omitempty"`
	AppliedFields []string   `json:"applied_fields,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewUpdateJob returns a pending job for the resource.
func NewUpdateJob(resource *Resource, trigger TriggerKind, actor *string, policy ApplyPolicy) *UpdateJob {
	now := time.Now().UTC()
	return &UpdateJob{
		ID:              uuid.New(),
		ResourceID:      resource.ID,
		ResourceSlug:    resource.Slug,
		Trigger:         trigger,
		TriggeredBy:     actor,
		Status:          StatusPending,
		Policy:          policy,
		ProposedChanges: []ProposedChange{},
		OldScreenshots:  slices.Clone(resource.Screenshots),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Transition moves the job to next, validating against the state machine.
func (j *UpdateJob) Transition(next JobStatus) error {
	if err := ValidateTransition(j.Status, next); err != nil {
		return err
	}
	now := time.Now().UTC()
	if j.StartedAt == nil && j.Status == StatusPending {
		j.StartedAt = &now
	}
	j.Status = next
	j.UpdatedAt = now
	if next.Terminal() {
		j.CompletedAt = &now
	}
	return nil
}

// Fail moves the job to failed with a message.
func (j *UpdateJob) Fail(message string) error {
	if err := j.Transition(StatusFailed); err != nil {
		return err
	}
	j.ErrorMessage = message
	return nil
}

// ProposedChange returns the proposal for field, if any.
func (j *UpdateJob) ProposedChange(field string) (ProposedChange, bool) {
	for _, c := range j.ProposedChanges {
		if c.Field == field {
			return c, true
		}
	}
	return ProposedChange{}, false
}

// ProposedFields lists proposed field names in emission order.
func (j *UpdateJob) ProposedFields() []string {
	fields := make([]string, 0, len(j.ProposedChanges))
	for _, c := range j.ProposedChanges {
		fields = append(fields, c.Field)
	}
	return fields
}

// ChangeSource classifies the provenance of a changelog entry.
type ChangeSource string

// Changelog sources.
const (
	SourceAutomatic ChangeSource = "automatic"
	SourceReviewed  ChangeSource = "reviewed"
)

// AppliedChange is one field write recorded in a changelog entry.
type AppliedChange struct {
	Field    string `json:"field"`
	OldValue any    `json:"old_value"`
	NewValue any    `json:"new_value"`
}

// ChangelogEntry is the immutable audit record of an applied change set.
type ChangelogEntry struct {
	ID         uuid.UUID       `json:"id"`
	ResourceID uuid.UUID       `json:"resource_id"`
	JobID      uuid.UUID       `json:"job_id"`
	Changes    []AppliedChange `json:"changes"`
	Summary    string          `json:"summary"`
	Source     ChangeSource    `json:"source"`
	Actor      string          `json:"actor,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
