package domain

import (
	"encoding/json"
	"time"
)

// JobKind enumerates supported generation job categories.
type JobKind string

const (
	JobKindComic  JobKind = "comic"
	JobKindCutout JobKind = "cutout"
	JobKindAvatar JobKind = "avatar"
)

// Valid reports whether the kind is one of the supported kinds.
func (k JobKind) Valid() bool {
	switch k {
	case JobKindComic, JobKindCutout, JobKindAvatar:
		return true
	default:
		return false
	}
}

// JobStatus enumerates the coarse job outcome.
type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions are permitted.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Stage is a fine-grained checkpoint inside JobStatusProcessing. The set of
// valid stages depends on the job kind.
type Stage string

const (
	StageInitializing     Stage = "initializing"
	StageImageUploaded    Stage = "image_uploaded"
	StagePromptGenerated  Stage = "prompt_generated"
	StageImageDownloaded  Stage = "image_downloaded"
	StageComicGenerated   Stage = "comic_generated"
	StageResultUploaded   Stage = "result_uploaded"
	StageCartoonGenerated Stage = "cartoon_generated"
	StageAvatarGenerated  Stage = "avatar_generated"
	StageCompleted        Stage = "completed"
)

// Job encapsulates one generation request and its progress.
type Job struct {
	ID             string
	OwnerID        string
	Kind           JobKind
	Status         JobStatus
	Stage          Stage
	Progress       int
	InputRef       string
	WorkingRef     string
	Options        json.RawMessage
	Prompt         string
	Script         json.RawMessage
	TempResult     []byte
	OutputRef      string
	ErrorMessage   string
	Locale         string
	LastAdvancedAt time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Clone returns a deep copy so callers never share byte slices with a store.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	out.Options = cloneBytes(j.Options)
	out.Script = cloneBytes(j.Script)
	out.TempResult = cloneBytes(j.TempResult)
	return &out
}

// JobPatch lists the fields a stage transition may write. Nil pointers and
// nil slices leave the stored value untouched.
type JobPatch struct {
	Status          *JobStatus
	Stage           *Stage
	Progress        *int
	WorkingRef      *string
	Prompt          *string
	Script          json.RawMessage
	TempResult      []byte
	ClearTempResult bool
	OutputRef       *string
	ClearOutputRef  bool
	ErrorMessage    *string
	LastAdvancedAt  time.Time
}

// Apply writes the patch onto job. It is used by the in-memory store and by
// tests; the PostgreSQL store expresses the same rules in SQL.
func (p JobPatch) Apply(job *Job) {
	if p.Status != nil {
		job.Status = *p.Status
	}
	if p.Stage != nil {
		job.Stage = *p.Stage
	}
	if p.Progress != nil {
		job.Progress = *p.Progress
	}
	if p.WorkingRef != nil {
		job.WorkingRef = *p.WorkingRef
	}
	if p.Prompt != nil {
		job.Prompt = *p.Prompt
	}
	if p.Script != nil {
		job.Script = cloneBytes(p.Script)
	}
	switch {
	case p.ClearTempResult:
		job.TempResult = nil
	case p.TempResult != nil:
		job.TempResult = cloneBytes(p.TempResult)
	}
	switch {
	case p.ClearOutputRef:
		job.OutputRef = ""
	case p.OutputRef != nil:
		job.OutputRef = *p.OutputRef
	}
	if p.ErrorMessage != nil && job.ErrorMessage == "" {
		job.ErrorMessage = *p.ErrorMessage
	}
	if !p.LastAdvancedAt.IsZero() {
		job.LastAdvancedAt = p.LastAdvancedAt
		job.UpdatedAt = p.LastAdvancedAt
	}
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
