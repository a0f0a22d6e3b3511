package jobs

import (
	"encoding/json"

	"cutoutly/internal/domain"
)

// Effect names the side effect run when leaving a stage.
type Effect string

const (
	EffectWriteScript   Effect = "write_script"
	EffectPrepareInput  Effect = "prepare_input"
	EffectRenderComic   Effect = "render_comic"
	EffectUploadResult  Effect = "upload_result"
	EffectCutoutPrompt  Effect = "cutout_prompt"
	EffectRenderCutout  Effect = "render_cutout"
	EffectRenderAvatar  Effect = "render_avatar"
	EffectCleanupInputs Effect = "cleanup_inputs"
)

// Step is one edge of a flow: leaving From runs Effect and lands on To.
type Step struct {
	From     domain.Stage
	To       domain.Stage
	Progress int
	Effect   Effect
	// NonCritical effects log failures and never fail the job.
	NonCritical bool
	// Chain continues with the next step inside the same advance.
	Chain bool
}

// Flow is the ordered stage sequence of one job kind (and cutout mode).
type Flow struct {
	Name  string
	Steps []Step
	// OutputFrom is the first stage at which OutputRef is set.
	OutputFrom domain.Stage
}

var (
	comicFlow = Flow{
		Name: "comic",
		Steps: []Step{
			{From: domain.StageInitializing, To: domain.StagePromptGenerated, Progress: 20, Effect: EffectWriteScript},
			{From: domain.StagePromptGenerated, To: domain.StageImageDownloaded, Progress: 35, Effect: EffectPrepareInput},
			{From: domain.StageImageDownloaded, To: domain.StageComicGenerated, Progress: 70, Effect: EffectRenderComic},
			{From: domain.StageComicGenerated, To: domain.StageResultUploaded, Progress: 90, Effect: EffectUploadResult},
			{From: domain.StageResultUploaded, To: domain.StageCompleted, Progress: 100, Effect: EffectCleanupInputs, NonCritical: true},
		},
		OutputFrom: domain.StageResultUploaded,
	}

	cutoutStructuredFlow = Flow{
		Name: "cutout_structured",
		Steps: []Step{
			{From: domain.StageInitializing, To: domain.StageImageUploaded, Progress: 10, Effect: EffectPrepareInput},
			{From: domain.StageImageUploaded, To: domain.StagePromptGenerated, Progress: 20, Effect: EffectCutoutPrompt},
			{From: domain.StagePromptGenerated, To: domain.StageCartoonGenerated, Progress: 90, Effect: EffectRenderCutout, Chain: true},
			{From: domain.StageCartoonGenerated, To: domain.StageCompleted, Progress: 100, Effect: EffectCleanupInputs, NonCritical: true},
		},
		OutputFrom: domain.StageCartoonGenerated,
	}

	cutoutCustomFlow = Flow{
		Name: "cutout_custom",
		Steps: []Step{
			{From: domain.StageInitializing, To: domain.StagePromptGenerated, Progress: 20, Effect: EffectCutoutPrompt},
			{From: domain.StagePromptGenerated, To: domain.StageCartoonGenerated, Progress: 90, Effect: EffectRenderCutout, Chain: true},
			{From: domain.StageCartoonGenerated, To: domain.StageCompleted, Progress: 100, Effect: EffectCleanupInputs, NonCritical: true},
		},
		OutputFrom: domain.StageCartoonGenerated,
	}

	avatarFlow = Flow{
		Name: "avatar",
		Steps: []Step{
			{From: domain.StageInitializing, To: domain.StageAvatarGenerated, Progress: 80, Effect: EffectRenderAvatar},
			{From: domain.StageAvatarGenerated, To: domain.StageCompleted, Progress: 100, Effect: EffectCleanupInputs, NonCritical: true},
		},
		OutputFrom: domain.StageAvatarGenerated,
	}
)

// FlowFor returns the flow a job follows. Cutout jobs pick their flow from
// options.custom_mode; unreadable options fall back to the structured flow.
func FlowFor(job *domain.Job) (Flow, bool) {
	switch job.Kind {
	case domain.JobKindComic:
		return comicFlow, true
	case domain.JobKindAvatar:
		return avatarFlow, true
	case domain.JobKindCutout:
		if customMode(job.Options) {
			return cutoutCustomFlow, true
		}
		return cutoutStructuredFlow, true
	default:
		return Flow{}, false
	}
}

// StepFrom returns the step leaving stage, if the flow has one.
func (f Flow) StepFrom(stage domain.Stage) (Step, bool) {
	for _, step := range f.Steps {
		if step.From == stage {
			return step, true
		}
	}
	return Step{}, false
}

// Stages lists every stage of the flow in order.
func (f Flow) Stages() []domain.Stage {
	if len(f.Steps) == 0 {
		return nil
	}
	stages := []domain.Stage{f.Steps[0].From}
	for _, step := range f.Steps {
		stages = append(stages, step.To)
	}
	return stages
}

// Final is the stage that completes the job.
func (f Flow) Final() domain.Stage {
	if len(f.Steps) == 0 {
		return domain.StageInitializing
	}
	return f.Steps[len(f.Steps)-1].To
}

func customMode(raw json.RawMessage) bool {
	var probe struct {
		CustomMode bool `json:"custom_mode"`
	}
	if len(raw) == 0 {
		return false
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.CustomMode
}
