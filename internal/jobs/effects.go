package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cutoutly/internal/domain"
	"cutoutly/internal/domain/jsoncfg"
	"cutoutly/internal/imagegen"
	"cutoutly/internal/providers/image"
	"cutoutly/internal/providers/prompt"
	"cutoutly/internal/storage"
)

// Effects binds each Effect to the storage and provider clients it drives.
type Effects struct {
	Store   storage.ObjectStore
	Images  image.Generator
	Scripts prompt.ScriptWriter
}

type effectFunc func(ctx context.Context, job *domain.Job) (domain.JobPatch, error)

func (e *Effects) lookup(effect Effect) (effectFunc, bool) {
	switch effect {
	case EffectWriteScript:
		return e.writeScript, true
	case EffectPrepareInput:
		return e.prepareInput, true
	case EffectRenderComic:
		return e.renderComic, true
	case EffectUploadResult:
		return e.uploadResult, true
	case EffectCutoutPrompt:
		return e.cutoutPrompt, true
	case EffectRenderCutout:
		return e.renderCutout, true
	case EffectRenderAvatar:
		return e.renderAvatar, true
	case EffectCleanupInputs:
		return e.cleanupInputs, true
	default:
		return nil, false
	}
}

func (e *Effects) writeScript(ctx context.Context, job *domain.Job) (domain.JobPatch, error) {
	opts, err := jsoncfg.DecodeComic(job.Options)
	if err != nil {
		return domain.JobPatch{}, err
	}
	script, err := e.Scripts.GenerateScript(ctx, prompt.ScriptRequest{Options: opts, Locale: job.Locale})
	if err != nil {
		return domain.JobPatch{}, fmt.Errorf("write comic script: %w", err)
	}
	if strings.TrimSpace(script.FinalPrompt) == "" {
		script.FinalPrompt = imagegen.BuildComicPrompt(opts, script.Title, script.Panels)
	}
	raw, err := json.Marshal(script)
	if err != nil {
		return domain.JobPatch{}, fmt.Errorf("encode comic script: %w", err)
	}
	finalPrompt := script.FinalPrompt
	return domain.JobPatch{Script: raw, Prompt: &finalPrompt}, nil
}

// prepareInput writes the normalized PNG working copy. Re-running it
// overwrites the same key.
func (e *Effects) prepareInput(ctx context.Context, job *domain.Job) (domain.JobPatch, error) {
	data, err := e.downloadInput(ctx, job)
	if err != nil {
		return domain.JobPatch{}, err
	}
	working, err := storage.NormalizePNG(data, storage.MaxWorkingSide)
	if err != nil {
		return domain.JobPatch{}, fmt.Errorf("normalize input image: %w", err)
	}
	key := storage.WorkingKey(job.OwnerID, job.ID)
	if err := e.Store.Upload(ctx, key, working, "image/png"); err != nil {
		return domain.JobPatch{}, fmt.Errorf("store working copy: %w", err)
	}
	return domain.JobPatch{WorkingRef: &key}, nil
}

func (e *Effects) renderComic(ctx context.Context, job *domain.Job) (domain.JobPatch, error) {
	opts, err := jsoncfg.DecodeComic(job.Options)
	if err != nil {
		return domain.JobPatch{}, err
	}
	src, err := e.workingSource(ctx, job)
	if err != nil {
		return domain.JobPatch{}, err
	}
	asset, err := e.Images.EditImage(ctx, image.EditRequest{
		Image:     src,
		Prompt:    job.Prompt,
		Size:      opts.Size,
		Quality:   opts.Quality,
		RequestID: job.ID,
	})
	if err != nil {
		return domain.JobPatch{}, fmt.Errorf("edit image: %w", err)
	}
	data, err := resultPNG(asset)
	if err != nil {
		return domain.JobPatch{}, err
	}
	return domain.JobPatch{TempResult: data}, nil
}

func (e *Effects) uploadResult(ctx context.Context, job *domain.Job) (domain.JobPatch, error) {
	if len(job.TempResult) == 0 {
		return domain.JobPatch{}, errors.New("no generated image to upload")
	}
	key, err := e.storeResult(ctx, job, job.TempResult)
	if err != nil {
		return domain.JobPatch{}, err
	}
	return domain.JobPatch{OutputRef: &key, ClearTempResult: true}, nil
}

func (e *Effects) cutoutPrompt(_ context.Context, job *domain.Job) (domain.JobPatch, error) {
	opts, err := jsoncfg.DecodeCutout(job.Options)
	if err != nil {
		return domain.JobPatch{}, err
	}
	text := imagegen.BuildCutoutPrompt(opts, job.Locale)
	return domain.JobPatch{Prompt: &text}, nil
}

func (e *Effects) renderCutout(ctx context.Context, job *domain.Job) (domain.JobPatch, error) {
	opts, err := jsoncfg.DecodeCutout(job.Options)
	if err != nil {
		return domain.JobPatch{}, err
	}
	if strings.TrimSpace(job.Prompt) == "" {
		return domain.JobPatch{}, errors.New("prompt missing")
	}
	var asset *image.Asset
	if opts.CustomMode {
		asset, err = e.Images.GenerateImage(ctx, image.GenerateRequest{
			Prompt:    job.Prompt,
			Size:      opts.Size,
			Quality:   opts.Quality,
			RequestID: job.ID,
		})
		if err != nil {
			return domain.JobPatch{}, fmt.Errorf("generate image: %w", err)
		}
	} else {
		src, err := e.workingSource(ctx, job)
		if err != nil {
			return domain.JobPatch{}, err
		}
		asset, err = e.Images.EditImage(ctx, image.EditRequest{
			Image:     src,
			Prompt:    job.Prompt,
			Size:      opts.Size,
			Quality:   opts.Quality,
			RequestID: job.ID,
		})
		if err != nil {
			return domain.JobPatch{}, fmt.Errorf("edit image: %w", err)
		}
	}
	data, err := resultPNG(asset)
	if err != nil {
		return domain.JobPatch{}, err
	}
	key, err := e.storeResult(ctx, job, data)
	if err != nil {
		return domain.JobPatch{}, err
	}
	return domain.JobPatch{OutputRef: &key}, nil
}

func (e *Effects) renderAvatar(ctx context.Context, job *domain.Job) (domain.JobPatch, error) {
	opts, err := jsoncfg.DecodeAvatar(job.Options)
	if err != nil {
		return domain.JobPatch{}, err
	}
	data, err := e.downloadInput(ctx, job)
	if err != nil {
		return domain.JobPatch{}, err
	}
	source, err := storage.NormalizePNG(data, storage.MaxWorkingSide)
	if err != nil {
		return domain.JobPatch{}, fmt.Errorf("normalize input image: %w", err)
	}
	text := imagegen.BuildAvatarPrompt(opts)
	asset, err := e.Images.EditImage(ctx, image.EditRequest{
		Image:     image.SourceImage{Data: source, MIME: "image/png", Filename: "input.png"},
		Prompt:    text,
		Size:      opts.Size,
		Quality:   opts.Quality,
		RequestID: job.ID,
	})
	if err != nil {
		return domain.JobPatch{}, fmt.Errorf("edit image: %w", err)
	}
	result, err := resultPNG(asset)
	if err != nil {
		return domain.JobPatch{}, err
	}
	key, err := e.storeResult(ctx, job, result)
	if err != nil {
		return domain.JobPatch{}, err
	}
	return domain.JobPatch{Prompt: &text, OutputRef: &key}, nil
}

// cleanupInputs removes the temp upload and the working copy. Saved face
// images live outside temp/ and are left alone.
func (e *Effects) cleanupInputs(ctx context.Context, job *domain.Job) (domain.JobPatch, error) {
	var errs []error
	for _, key := range tempKeys(job) {
		if err := e.Store.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
		}
	}
	return domain.JobPatch{}, errors.Join(errs...)
}

func (e *Effects) downloadInput(ctx context.Context, job *domain.Job) ([]byte, error) {
	if job.InputRef == "" {
		return nil, errors.New("job has no input image")
	}
	data, err := e.Store.Download(ctx, job.InputRef)
	if err != nil {
		return nil, fmt.Errorf("download input image: %w", err)
	}
	return data, nil
}

func (e *Effects) workingSource(ctx context.Context, job *domain.Job) (image.SourceImage, error) {
	if job.WorkingRef == "" {
		return image.SourceImage{}, errors.New("working copy missing")
	}
	data, err := e.Store.Download(ctx, job.WorkingRef)
	if err != nil {
		return image.SourceImage{}, fmt.Errorf("download working copy: %w", err)
	}
	return image.SourceImage{Data: data, MIME: "image/png", Filename: "working.png"}, nil
}

func (e *Effects) storeResult(ctx context.Context, job *domain.Job, data []byte) (string, error) {
	key := storage.ResultKey(job.OwnerID, job.ID)
	if err := e.Store.Upload(ctx, key, data, "image/png"); err != nil {
		return "", fmt.Errorf("upload result: %w", err)
	}
	return key, nil
}

// resultPNG makes sure the bytes stored under a .png key are PNG.
func resultPNG(asset *image.Asset) ([]byte, error) {
	if asset == nil || len(asset.Data) == 0 {
		return nil, fmt.Errorf("%w: empty image response", domain.ErrProviderFailure)
	}
	if asset.Format == "image/png" {
		return asset.Data, nil
	}
	data, err := storage.NormalizePNG(asset.Data, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}
	return data, nil
}

func tempKeys(job *domain.Job) []string {
	var keys []string
	if storage.IsTempKey(job.InputRef) {
		keys = append(keys, job.InputRef)
	}
	if job.WorkingRef != "" && job.WorkingRef != job.InputRef {
		keys = append(keys, job.WorkingRef)
	}
	return keys
}
