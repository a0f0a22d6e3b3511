package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"cutoutly/internal/domain"
	"cutoutly/internal/domain/jsoncfg"
	"cutoutly/internal/infra"
	"cutoutly/internal/providers/image"
	"cutoutly/internal/providers/prompt"
	"cutoutly/internal/storage"
	"cutoutly/pkg/zip"
)

// MessageAlreadyInProgress is returned when another caller is advancing the
// same job.
const MessageAlreadyInProgress = "already in progress"

// DefaultMaxUploadBytes caps submitted images.
const DefaultMaxUploadBytes = 10 << 20

var (
	// ErrJobBusy reports an operation refused while the job is being advanced.
	ErrJobBusy = errors.New("job is being advanced")
	// ErrNotReady reports a request for output of a job that has none yet.
	ErrNotReady = errors.New("job has no result yet")
)

// Result is the client-facing view of a job after an operation.
type Result struct {
	JobID     string           `json:"job_id"`
	Kind      domain.JobKind   `json:"kind,omitempty"`
	Status    domain.JobStatus `json:"status"`
	Stage     domain.Stage     `json:"stage,omitempty"`
	Progress  int              `json:"progress"`
	OutputURL string           `json:"output_url,omitempty"`
	Error     string           `json:"error,omitempty"`
	Message   string           `json:"message,omitempty"`
	CreatedAt time.Time        `json:"created_at,omitzero"`
}

// EffectError wraps the failure of the effect leading into Stage.
type EffectError struct {
	Stage  domain.Stage
	Effect Effect
	Err    error
}

func (e *EffectError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *EffectError) Unwrap() error { return e.Err }

// Options wires a Machine.
type Options struct {
	Jobs           domain.JobRepository
	Faces          domain.SavedFaceRepository
	Store          storage.ObjectStore
	Guard          Guard
	Images         image.Generator
	Scripts        prompt.ScriptWriter
	Logger         *infra.Logger
	MaxUploadBytes int
	Now            func() time.Time
}

// Machine drives generation jobs one stage per Advance call.
type Machine struct {
	jobs      domain.JobRepository
	faces     domain.SavedFaceRepository
	store     storage.ObjectStore
	guard     Guard
	effects   *Effects
	logger    infra.Logger
	maxUpload int
	now       func() time.Time
}

func NewMachine(opts Options) (*Machine, error) {
	if opts.Jobs == nil {
		return nil, errors.New("jobs: job repository is required")
	}
	if opts.Store == nil {
		return nil, errors.New("jobs: object store is required")
	}
	if opts.Images == nil {
		return nil, errors.New("jobs: image generator is required")
	}
	m := &Machine{
		jobs:      opts.Jobs,
		faces:     opts.Faces,
		store:     opts.Store,
		guard:     opts.Guard,
		logger:    zerolog.Nop(),
		maxUpload: opts.MaxUploadBytes,
		now:       opts.Now,
	}
	if opts.Logger != nil {
		m.logger = *opts.Logger
	}
	if m.guard == nil {
		m.guard = NewMemoryGuard()
	}
	if m.maxUpload <= 0 {
		m.maxUpload = DefaultMaxUploadBytes
	}
	if m.now == nil {
		m.now = func() time.Time { return time.Now().UTC() }
	}
	scripts := opts.Scripts
	if scripts == nil {
		scripts = prompt.NewStaticWriter()
	}
	m.effects = &Effects{Store: opts.Store, Images: opts.Images, Scripts: scripts}
	return m, nil
}

// Advance moves the job forward by one stage, or through a chained pair of
// stages, and returns its new state.
func (m *Machine) Advance(ctx context.Context, jobID, ownerID string) (Result, error) {
	if ownerID == "" {
		return Result{}, domain.ErrUnauthorized
	}
	acquired, err := m.guard.TryAcquire(ctx, jobID)
	if err != nil {
		return Result{}, err
	}
	if !acquired {
		return Result{JobID: jobID, Status: domain.JobStatusProcessing, Message: MessageAlreadyInProgress}, nil
	}
	defer m.guard.Release(context.WithoutCancel(ctx), jobID)

	job, err := m.jobs.Get(ctx, jobID, ownerID)
	if err != nil {
		return Result{}, err
	}
	for {
		plan := Transition(job)
		next, err := m.apply(ctx, job, plan)
		if errors.Is(err, domain.ErrStaleJob) {
			m.logger.Info().Str("job_id", job.ID).Str("stage", string(job.Stage)).Msg("jobs: stage moved by another caller")
			current, getErr := m.jobs.Get(context.WithoutCancel(ctx), jobID, ownerID)
			if getErr != nil {
				return Result{}, getErr
			}
			res := m.result(current)
			if !current.Status.Terminal() {
				res.Message = MessageAlreadyInProgress
			}
			return res, nil
		}
		if err != nil {
			return Result{}, err
		}
		job = next
		if plan.Action != ActionStep || !plan.Step.Chain || job.Status.Terminal() {
			break
		}
	}
	return m.result(job), nil
}

func (m *Machine) apply(ctx context.Context, job *domain.Job, plan Plan) (*domain.Job, error) {
	switch plan.Action {
	case ActionNone:
		return job, nil
	case ActionReject:
		return m.fail(ctx, job, fmt.Errorf("unsupported job kind %q", job.Kind))
	case ActionReset:
		return m.reset(ctx, job)
	}

	step := plan.Step
	patch, err := m.run(ctx, job, step)
	if err != nil {
		if !step.NonCritical {
			return m.fail(ctx, job, &EffectError{Stage: step.To, Effect: step.Effect, Err: err})
		}
		m.logger.Warn().Err(err).
			Str("job_id", job.ID).
			Str("effect", string(step.Effect)).
			Msg("jobs: non-critical effect failed")
		patch = domain.JobPatch{}
	}
	to := step.To
	progress := step.Progress
	patch.Stage = &to
	patch.Progress = &progress
	if plan.Final {
		completed := domain.JobStatusCompleted
		patch.Status = &completed
	}
	patch.LastAdvancedAt = m.now()

	updated, err := m.jobs.Update(context.WithoutCancel(ctx), job.ID, job.OwnerID, step.From, patch)
	if err != nil {
		return nil, err
	}
	m.logger.Info().
		Str("job_id", job.ID).
		Str("kind", string(job.Kind)).
		Str("stage", string(updated.Stage)).
		Int("progress", updated.Progress).
		Msg("jobs: advanced")
	return updated, nil
}

// run executes the step's effect and turns a panic into an error.
func (m *Machine) run(ctx context.Context, job *domain.Job, step Step) (patch domain.JobPatch, err error) {
	fn, ok := m.effects.lookup(step.Effect)
	if !ok {
		return domain.JobPatch{}, fmt.Errorf("no executor for effect %q", step.Effect)
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().
				Str("job_id", job.ID).
				Str("effect", string(step.Effect)).
				Bytes("stack", debug.Stack()).
				Msg("jobs: effect panicked")
			patch = domain.JobPatch{}
			err = fmt.Errorf("effect panicked: %v", r)
		}
	}()
	return fn(ctx, job.Clone())
}

func (m *Machine) fail(ctx context.Context, job *domain.Job, cause error) (*domain.Job, error) {
	failed := domain.JobStatusFailed
	msg := cause.Error()
	patch := domain.JobPatch{
		Status:          &failed,
		ErrorMessage:    &msg,
		ClearTempResult: true,
		LastAdvancedAt:  m.now(),
	}
	m.logger.Error().Err(cause).
		Str("job_id", job.ID).
		Str("kind", string(job.Kind)).
		Str("stage", string(job.Stage)).
		Msg("jobs: job failed")
	return m.jobs.Update(context.WithoutCancel(ctx), job.ID, job.OwnerID, job.Stage, patch)
}

func (m *Machine) reset(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	initial := domain.StageInitializing
	zero := 0
	patch := domain.JobPatch{
		Stage:           &initial,
		Progress:        &zero,
		ClearOutputRef:  true,
		ClearTempResult: true,
		LastAdvancedAt:  m.now(),
	}
	m.logger.Warn().
		Str("job_id", job.ID).
		Str("stage", string(job.Stage)).
		Msg("jobs: unknown stage, restarting job")
	return m.jobs.Update(context.WithoutCancel(ctx), job.ID, job.OwnerID, job.Stage, patch)
}

// Status reports a job without advancing it.
func (m *Machine) Status(ctx context.Context, jobID, ownerID string) (Result, error) {
	if ownerID == "" {
		return Result{}, domain.ErrUnauthorized
	}
	job, err := m.jobs.Get(ctx, jobID, ownerID)
	if err != nil {
		return Result{}, err
	}
	return m.result(job), nil
}

// List returns the owner's jobs, newest first.
func (m *Machine) List(ctx context.Context, ownerID string, limit, offset int) ([]Result, error) {
	if ownerID == "" {
		return nil, domain.ErrUnauthorized
	}
	limit = PageLimit(limit)
	if offset < 0 {
		offset = 0
	}
	jobs, err := m.jobs.List(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(jobs))
	for i := range jobs {
		out = append(out, m.result(&jobs[i]))
	}
	return out, nil
}

// PageLimit clamps a requested page size to [1, 100], defaulting to 20.
func PageLimit(limit int) int {
	switch {
	case limit <= 0:
		return 20
	case limit > 100:
		return 100
	}
	return limit
}

// SubmitRequest is a new job as received from a client.
type SubmitRequest struct {
	OwnerID     string
	Kind        domain.JobKind
	Options     json.RawMessage
	Image       []byte
	SavedFaceID string
	Locale      string
}

// Submit validates the request, parks the input image and creates the job at
// its initial stage.
func (m *Machine) Submit(ctx context.Context, req SubmitRequest) (Result, error) {
	if req.OwnerID == "" {
		return Result{}, domain.ErrUnauthorized
	}
	options, needsInput, err := normalizeOptions(req.Kind, req.Options)
	if err != nil {
		return Result{}, err
	}
	now := m.now()
	job := &domain.Job{
		ID:             uuid.NewString(),
		OwnerID:        req.OwnerID,
		Kind:           req.Kind,
		Status:         domain.JobStatusProcessing,
		Stage:          domain.StageInitializing,
		Options:        options,
		Locale:         NormalizeLocale(req.Locale),
		LastAdvancedAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if needsInput {
		ref, err := m.resolveInput(ctx, job, req)
		if err != nil {
			return Result{}, err
		}
		job.InputRef = ref
	}
	if err := m.jobs.Create(ctx, job); err != nil {
		if storage.IsTempKey(job.InputRef) {
			_ = m.store.Delete(context.WithoutCancel(ctx), job.InputRef)
		}
		return Result{}, fmt.Errorf("create job: %w", err)
	}
	m.logger.Info().
		Str("job_id", job.ID).
		Str("kind", string(job.Kind)).
		Str("owner_id", job.OwnerID).
		Msg("jobs: submitted")
	return m.result(job), nil
}

func (m *Machine) resolveInput(ctx context.Context, job *domain.Job, req SubmitRequest) (string, error) {
	if req.SavedFaceID != "" {
		if m.faces == nil {
			return "", fmt.Errorf("%w: saved faces are not available", domain.ErrInvalidInput)
		}
		face, err := m.faces.Get(ctx, req.SavedFaceID, req.OwnerID)
		if err != nil {
			return "", err
		}
		return face.ImageRef, nil
	}
	if len(req.Image) == 0 {
		return "", fmt.Errorf("%w: an input image is required", domain.ErrInvalidInput)
	}
	mime, ext, err := m.checkImage(req.Image)
	if err != nil {
		return "", err
	}
	key := storage.TempInputKey(job.OwnerID, job.ID, ext)
	if err := m.store.Upload(ctx, key, req.Image, mime); err != nil {
		return "", fmt.Errorf("store input image: %w", err)
	}
	return key, nil
}

func (m *Machine) checkImage(data []byte) (string, string, error) {
	if len(data) > m.maxUpload {
		return "", "", fmt.Errorf("%w: image exceeds %d bytes", domain.ErrInvalidInput, m.maxUpload)
	}
	mime, ext, err := storage.DetectImage(data)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return mime, ext, nil
}

// Delete removes the job and every image it produced or parked.
func (m *Machine) Delete(ctx context.Context, jobID, ownerID string) error {
	if ownerID == "" {
		return domain.ErrUnauthorized
	}
	acquired, err := m.guard.TryAcquire(ctx, jobID)
	if err != nil {
		return err
	}
	if !acquired {
		return ErrJobBusy
	}
	defer m.guard.Release(context.WithoutCancel(ctx), jobID)

	job, err := m.jobs.Delete(ctx, jobID, ownerID)
	if err != nil {
		return err
	}
	keys := tempKeys(job)
	if job.OutputRef != "" {
		keys = append(keys, job.OutputRef)
	}
	for _, key := range keys {
		if err := m.store.Delete(ctx, key); err != nil {
			m.logger.Warn().Err(err).Str("job_id", job.ID).Str("key", key).Msg("jobs: delete image failed")
		}
	}
	m.logger.Info().Str("job_id", job.ID).Str("owner_id", ownerID).Msg("jobs: deleted")
	return nil
}

// Archive bundles the result image, the comic script and a job summary into a
// zip.
func (m *Machine) Archive(ctx context.Context, jobID, ownerID string) ([]byte, error) {
	if ownerID == "" {
		return nil, domain.ErrUnauthorized
	}
	job, err := m.jobs.Get(ctx, jobID, ownerID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusCompleted || job.OutputRef == "" {
		return nil, ErrNotReady
	}
	data, err := m.store.Download(ctx, job.OutputRef)
	if err != nil {
		return nil, fmt.Errorf("download result: %w", err)
	}
	summary, err := json.MarshalIndent(m.result(job), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode job summary: %w", err)
	}
	assets := []zip.Asset{
		{Filename: "result.png", Data: data, Modified: job.UpdatedAt},
		{Filename: "job.json", Data: summary, Modified: job.UpdatedAt},
	}
	if len(job.Script) > 0 {
		assets = append(assets, zip.Asset{Filename: "script.json", Data: job.Script, Modified: job.UpdatedAt})
	}
	return zip.ArchiveAssets(assets)
}

// PublicURL resolves a storage key for clients.
func (m *Machine) PublicURL(key string) string {
	if key == "" {
		return ""
	}
	return m.store.PublicURL(key)
}

func (m *Machine) result(job *domain.Job) Result {
	res := Result{
		JobID:     job.ID,
		Kind:      job.Kind,
		Status:    job.Status,
		Stage:     job.Stage,
		Progress:  job.Progress,
		OutputURL: m.PublicURL(job.OutputRef),
		CreatedAt: job.CreatedAt,
	}
	if job.Status == domain.JobStatusFailed {
		res.Error = job.ErrorMessage
	}
	return res
}

// normalizeOptions validates raw options for kind and reports whether the job
// needs an input image.
func normalizeOptions(kind domain.JobKind, raw json.RawMessage) (json.RawMessage, bool, error) {
	switch kind {
	case domain.JobKindComic:
		o, err := jsoncfg.DecodeComic(raw)
		if err == nil {
			err = o.Validate()
		}
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		return jsoncfg.MustMarshal(o), true, nil
	case domain.JobKindCutout:
		o, err := jsoncfg.DecodeCutout(raw)
		if err == nil {
			err = o.Validate()
		}
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		return jsoncfg.MustMarshal(o), !o.CustomMode, nil
	case domain.JobKindAvatar:
		o, err := jsoncfg.DecodeAvatar(raw)
		if err == nil {
			err = o.Validate()
		}
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		return jsoncfg.MustMarshal(o), true, nil
	default:
		return nil, false, fmt.Errorf("%w: unknown job kind %q", domain.ErrInvalidInput, kind)
	}
}

// NormalizeLocale maps a request locale to one of the supported script
// languages.
func NormalizeLocale(locale string) string {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		return "en"
	}
	if base, _ := tag.Base(); base.String() == "id" {
		return "id"
	}
	return "en"
}
