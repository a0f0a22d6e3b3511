package jobs

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	stdimage "image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"cutoutly/internal/adapter/repo"
	"cutoutly/internal/domain"
	"cutoutly/internal/providers/image"
	"cutoutly/internal/providers/prompt"
	"cutoutly/internal/storage"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := stdimage.NewRGBA(stdimage.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// stubImages records provider calls and answers with a small PNG.
type stubImages struct {
	mu        sync.Mutex
	edits     []image.EditRequest
	generates []image.GenerateRequest
	editErr   error
	genErr    error
	panicMsg  string
	started   chan struct{}
	release   chan struct{}
	output    []byte
}

func (s *stubImages) EditImage(ctx context.Context, req image.EditRequest) (*image.Asset, error) {
	s.mu.Lock()
	s.edits = append(s.edits, req)
	s.mu.Unlock()
	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.release != nil {
		<-s.release
	}
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	if s.editErr != nil {
		return nil, s.editErr
	}
	return &image.Asset{Data: s.output, Format: "image/png", Width: 4, Height: 4}, nil
}

func (s *stubImages) GenerateImage(ctx context.Context, req image.GenerateRequest) (*image.Asset, error) {
	s.mu.Lock()
	s.generates = append(s.generates, req)
	s.mu.Unlock()
	if s.genErr != nil {
		return nil, s.genErr
	}
	return &image.Asset{Data: s.output, Format: "image/png", Width: 4, Height: 4}, nil
}

func (s *stubImages) editCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.edits)
}

type harness struct {
	machine *Machine
	jobs    *repo.MemoryJobRepository
	faces   *repo.MemorySavedFaceRepository
	store   *storage.FileStore
	images  *stubImages
	guard   *MemoryGuard
	input   []byte
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir(), "http://cdn.test/static")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	h := &harness{
		jobs:   repo.NewMemoryJobRepository(),
		faces:  repo.NewMemorySavedFaceRepository(),
		store:  store,
		images: &stubImages{output: testPNG(t, 4, 4)},
		guard:  NewMemoryGuard(),
		input:  testPNG(t, 32, 24),
	}
	h.machine = h.newMachine(t, h.jobs, h.store)
	return h
}

func (h *harness) newMachine(t *testing.T, jobs domain.JobRepository, store storage.ObjectStore) *Machine {
	t.Helper()
	m, err := NewMachine(Options{
		Jobs:    jobs,
		Faces:   h.faces,
		Store:   store,
		Guard:   h.guard,
		Images:  h.images,
		Scripts: prompt.NewStaticWriter(),
	})
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	return m
}

func (h *harness) submit(t *testing.T, req SubmitRequest) Result {
	t.Helper()
	if req.OwnerID == "" {
		req.OwnerID = "alice"
	}
	res, err := h.machine.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return res
}

func (h *harness) advance(t *testing.T, jobID string) Result {
	t.Helper()
	res, err := h.machine.Advance(context.Background(), jobID, "alice")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	return res
}

func (h *harness) job(t *testing.T, jobID string) *domain.Job {
	t.Helper()
	job, err := h.jobs.Get(context.Background(), jobID, "alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return job
}

func (h *harness) exists(key string) bool {
	_, err := h.store.Download(context.Background(), key)
	return err == nil
}

func TestCustomCutoutGeneratesFromPrompt(t *testing.T) {
	h := newHarness(t)
	sub := h.submit(t, SubmitRequest{
		Kind:    domain.JobKindCutout,
		Options: json.RawMessage(`{"custom_mode":true,"prompt":"a red bicycle","size":"1024x1024"}`),
	})
	if sub.Stage != domain.StageInitializing || sub.Progress != 0 || sub.Status != domain.JobStatusProcessing {
		t.Fatalf("submit result = %+v", sub)
	}

	first := h.advance(t, sub.JobID)
	if first.Stage != domain.StagePromptGenerated || first.Progress != 20 {
		t.Fatalf("first advance = %+v", first)
	}

	second := h.advance(t, sub.JobID)
	if second.Status != domain.JobStatusCompleted || second.Stage != domain.StageCompleted || second.Progress != 100 {
		t.Fatalf("second advance = %+v", second)
	}
	if len(h.images.generates) != 1 || len(h.images.edits) != 0 {
		t.Fatalf("provider calls: generate=%d edit=%d", len(h.images.generates), len(h.images.edits))
	}
	req := h.images.generates[0]
	if !strings.HasPrefix(req.Prompt, "a red bicycle") || req.Size != "1024x1024" {
		t.Fatalf("generate request = %+v", req)
	}
	key := storage.ResultKey("alice", sub.JobID)
	if second.OutputURL != "http://cdn.test/static/"+key {
		t.Fatalf("output url = %q", second.OutputURL)
	}
	if !h.exists(key) {
		t.Fatal("result image not stored")
	}
}

func TestStructuredCutoutFlow(t *testing.T) {
	h := newHarness(t)
	sub := h.submit(t, SubmitRequest{
		Kind:    domain.JobKindCutout,
		Options: json.RawMessage(`{"pose":"waving","speech_bubble":"Halo!"}`),
		Image:   h.input,
		Locale:  "id-ID",
	})
	inputRef := h.job(t, sub.JobID).InputRef
	if inputRef != storage.TempInputKey("alice", sub.JobID, "png") || !h.exists(inputRef) {
		t.Fatalf("input not parked: %q", inputRef)
	}

	want := []struct {
		stage    domain.Stage
		progress int
	}{
		{domain.StageImageUploaded, 10},
		{domain.StagePromptGenerated, 20},
		{domain.StageCompleted, 100},
	}
	for _, w := range want {
		res := h.advance(t, sub.JobID)
		if res.Stage != w.stage || res.Progress != w.progress {
			t.Fatalf("advance = %+v, want %s/%d", res, w.stage, w.progress)
		}
	}
	job := h.job(t, sub.JobID)
	if job.Status != domain.JobStatusCompleted || job.OutputRef == "" {
		t.Fatalf("job = %+v", job)
	}
	if len(h.images.edits) != 1 || h.images.edits[0].Image.MIME != "image/png" {
		t.Fatalf("edits = %+v", h.images.edits)
	}
	if !strings.Contains(h.images.edits[0].Prompt, "Halo!") {
		t.Fatalf("prompt lost the speech bubble: %q", h.images.edits[0].Prompt)
	}
	if h.exists(inputRef) || h.exists(storage.WorkingKey("alice", sub.JobID)) {
		t.Fatal("temp images not cleaned up")
	}
}

func TestComicFlowProgressIsMonotonic(t *testing.T) {
	h := newHarness(t)
	sub := h.submit(t, SubmitRequest{
		Kind:    domain.JobKindComic,
		Options: json.RawMessage(`{"persona":"barista","panel_count":3}`),
		Image:   h.input,
	})

	wantStages := []domain.Stage{
		domain.StagePromptGenerated, domain.StageImageDownloaded, domain.StageComicGenerated,
		domain.StageResultUploaded, domain.StageCompleted,
	}
	last := 0
	for i, stage := range wantStages {
		res := h.advance(t, sub.JobID)
		if res.Stage != stage {
			t.Fatalf("advance %d stage = %s, want %s", i, res.Stage, stage)
		}
		if res.Progress < last {
			t.Fatalf("progress went back from %d to %d", last, res.Progress)
		}
		last = res.Progress

		job := h.job(t, sub.JobID)
		switch stage {
		case domain.StagePromptGenerated:
			var script prompt.Script
			if err := json.Unmarshal(job.Script, &script); err != nil || len(script.Panels) != 3 {
				t.Fatalf("script = %s (%v)", job.Script, err)
			}
			if job.Prompt != script.FinalPrompt || job.Prompt == "" {
				t.Fatalf("prompt = %q", job.Prompt)
			}
		case domain.StageComicGenerated:
			if len(job.TempResult) == 0 || job.OutputRef != "" {
				t.Fatalf("comic_generated should hold bytes and no output")
			}
		case domain.StageResultUploaded:
			if len(job.TempResult) != 0 || job.OutputRef != storage.ResultKey("alice", sub.JobID) {
				t.Fatalf("result_uploaded: temp=%d output=%q", len(job.TempResult), job.OutputRef)
			}
		}
	}
	if last != 100 {
		t.Fatalf("final progress = %d", last)
	}
	if got := h.images.edits[0].Size; got != "1536x1024" {
		t.Fatalf("comic size = %s", got)
	}
}

func TestComicEditFailureIsTerminal(t *testing.T) {
	h := newHarness(t)
	h.images.editErr = &image.APIError{StatusCode: 504, Message: "network timeout"}
	sub := h.submit(t, SubmitRequest{Kind: domain.JobKindComic, Image: h.input})

	h.advance(t, sub.JobID)
	h.advance(t, sub.JobID)
	failed := h.advance(t, sub.JobID)
	if failed.Status != domain.JobStatusFailed || failed.Error == "" {
		t.Fatalf("advance = %+v, want failed", failed)
	}
	if !strings.Contains(failed.Error, "comic_generated") || !strings.Contains(failed.Error, "network timeout") {
		t.Fatalf("error = %q", failed.Error)
	}

	status, err := h.machine.Status(context.Background(), sub.JobID, "alice")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status != failed {
		t.Fatalf("status = %+v, want %+v", status, failed)
	}

	// Terminal jobs stay put.
	before := h.job(t, sub.JobID)
	again := h.advance(t, sub.JobID)
	after := h.job(t, sub.JobID)
	if again != failed || h.images.editCount() != 1 {
		t.Fatalf("re-advance = %+v, edits=%d", again, h.images.editCount())
	}
	if after.Stage != before.Stage || after.ErrorMessage != before.ErrorMessage || after.OutputRef != before.OutputRef || !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Fatalf("terminal job mutated: %+v -> %+v", before, after)
	}
}

func TestConcurrentAdvanceRunsOneEffect(t *testing.T) {
	h := newHarness(t)
	h.images.started = make(chan struct{}, 1)
	h.images.release = make(chan struct{})
	sub := h.submit(t, SubmitRequest{Kind: domain.JobKindAvatar, Image: h.input})

	done := make(chan Result, 1)
	go func() {
		res, err := h.machine.Advance(context.Background(), sub.JobID, "alice")
		if err != nil {
			t.Errorf("Advance: %v", err)
		}
		done <- res
	}()
	<-h.images.started

	busy, err := h.machine.Advance(context.Background(), sub.JobID, "alice")
	if err != nil {
		t.Fatalf("concurrent Advance: %v", err)
	}
	if busy.Status != domain.JobStatusProcessing || busy.Message != MessageAlreadyInProgress {
		t.Fatalf("concurrent advance = %+v", busy)
	}

	close(h.images.release)
	first := <-done
	if first.Stage != domain.StageAvatarGenerated || first.Progress != 80 {
		t.Fatalf("winner = %+v", first)
	}
	if h.images.editCount() != 1 {
		t.Fatalf("edits = %d, want 1", h.images.editCount())
	}
	if h.guard.Held(sub.JobID) {
		t.Fatal("guard not released")
	}
}

func TestAdvanceIsOwnerScoped(t *testing.T) {
	h := newHarness(t)
	sub := h.submit(t, SubmitRequest{Kind: domain.JobKindAvatar, Image: h.input})
	ctx := context.Background()

	if _, err := h.machine.Advance(ctx, sub.JobID, "bob"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Advance by bob err = %v", err)
	}
	if _, err := h.machine.Status(ctx, sub.JobID, "bob"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Status by bob err = %v", err)
	}
	if _, err := h.machine.Archive(ctx, sub.JobID, "bob"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Archive by bob err = %v", err)
	}
	if err := h.machine.Delete(ctx, sub.JobID, "bob"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Delete by bob err = %v", err)
	}
	if _, err := h.machine.Advance(ctx, sub.JobID, ""); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("Advance without owner err = %v", err)
	}
	if job := h.job(t, sub.JobID); job.Stage != domain.StageInitializing || h.images.editCount() != 0 {
		t.Fatalf("foreign advance touched the job: %+v", job)
	}
}

func TestEffectPanicFailsJobAndReleasesGuard(t *testing.T) {
	h := newHarness(t)
	h.images.panicMsg = "provider exploded"
	sub := h.submit(t, SubmitRequest{Kind: domain.JobKindAvatar, Image: h.input})

	res := h.advance(t, sub.JobID)
	if res.Status != domain.JobStatusFailed || !strings.Contains(res.Error, "provider exploded") {
		t.Fatalf("advance = %+v", res)
	}
	if h.guard.Held(sub.JobID) {
		t.Fatal("guard still held after panic")
	}
	again := h.advance(t, sub.JobID)
	if again != res {
		t.Fatalf("second advance = %+v, want %+v", again, res)
	}
}

func TestUnknownStageResetsToInitializing(t *testing.T) {
	h := newHarness(t)
	sub := h.submit(t, SubmitRequest{Kind: domain.JobKindAvatar, Image: h.input})
	job := h.job(t, sub.JobID)
	job.Stage = "calling_openai"
	job.Progress = 55
	job.OutputRef = "results/alice/stale.png"
	job.TempResult = []byte("junk")
	h.jobs.Put(job)

	res := h.advance(t, sub.JobID)
	if res.Stage != domain.StageInitializing || res.Progress != 0 || res.OutputURL != "" || res.Status != domain.JobStatusProcessing {
		t.Fatalf("reset = %+v", res)
	}
	if reset := h.job(t, sub.JobID); reset.OutputRef != "" || reset.TempResult != nil {
		t.Fatalf("reset kept output: %+v", reset)
	}
	if h.images.editCount() != 0 {
		t.Fatal("reset must not run an effect")
	}
	if next := h.advance(t, sub.JobID); next.Stage != domain.StageAvatarGenerated {
		t.Fatalf("after reset = %+v", next)
	}
}

func TestSweptJobStaysFailed(t *testing.T) {
	h := newHarness(t)
	sub := h.submit(t, SubmitRequest{Kind: domain.JobKindAvatar, Image: h.input})
	job := h.job(t, sub.JobID)
	job.LastAdvancedAt = time.Now().UTC().Add(-2 * time.Hour)
	h.jobs.Put(job)

	sweeper := NewSweeper(h.jobs, 30*time.Minute, nil)
	ids, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(ids) != 1 || ids[0] != sub.JobID {
		t.Fatalf("swept = %v", ids)
	}

	res := h.advance(t, sub.JobID)
	if res.Status != domain.JobStatusFailed || res.Error != StalledMessage {
		t.Fatalf("advance after sweep = %+v", res)
	}
	if h.images.editCount() != 0 {
		t.Fatal("swept job ran an effect")
	}
}

func TestCartoonGeneratedFinishesWithCleanup(t *testing.T) {
	h := newHarness(t)
	sub := h.submit(t, SubmitRequest{Kind: domain.JobKindCutout, Image: h.input})
	job := h.job(t, sub.JobID)
	job.Stage = domain.StageCartoonGenerated
	job.Progress = 90
	job.OutputRef = storage.ResultKey("alice", sub.JobID)
	h.jobs.Put(job)

	res := h.advance(t, sub.JobID)
	if res.Status != domain.JobStatusCompleted || res.Progress != 100 || res.OutputURL == "" {
		t.Fatalf("advance = %+v", res)
	}
	if h.images.editCount() != 0 || len(h.images.generates) != 0 {
		t.Fatal("cleanup step must not call the provider")
	}
	if h.exists(job.InputRef) {
		t.Fatal("temp input not removed")
	}
}

type failingDeleteStore struct {
	storage.ObjectStore
}

func (failingDeleteStore) Delete(context.Context, string) error {
	return errors.New("permission denied")
}

func TestCleanupFailureDoesNotFailJob(t *testing.T) {
	h := newHarness(t)
	m := h.newMachine(t, h.jobs, failingDeleteStore{h.store})
	res, err := m.Submit(context.Background(), SubmitRequest{OwnerID: "alice", Kind: domain.JobKindAvatar, Image: h.input})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	for i := 0; i < 2; i++ {
		if res, err = m.Advance(context.Background(), res.JobID, "alice"); err != nil {
			t.Fatalf("Advance: %v", err)
		}
	}
	if res.Status != domain.JobStatusCompleted || res.Error != "" {
		t.Fatalf("result = %+v", res)
	}
}

type staleJobs struct {
	*repo.MemoryJobRepository
}

func (staleJobs) Update(context.Context, string, string, domain.Stage, domain.JobPatch) (*domain.Job, error) {
	return nil, domain.ErrStaleJob
}

func TestStageConflictReportsInProgress(t *testing.T) {
	h := newHarness(t)
	sub := h.submit(t, SubmitRequest{Kind: domain.JobKindAvatar, Image: h.input})
	m := h.newMachine(t, staleJobs{h.jobs}, h.store)

	res, err := m.Advance(context.Background(), sub.JobID, "alice")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if res.Message != MessageAlreadyInProgress || res.Status != domain.JobStatusProcessing {
		t.Fatalf("result = %+v", res)
	}
}

// sweptJobs fails the job underneath the machine before losing the CAS.
type sweptJobs struct {
	*repo.MemoryJobRepository
}

func (s sweptJobs) Update(ctx context.Context, jobID, ownerID string, _ domain.Stage, _ domain.JobPatch) (*domain.Job, error) {
	job, err := s.Get(ctx, jobID, ownerID)
	if err != nil {
		return nil, err
	}
	job.Status = domain.JobStatusFailed
	job.ErrorMessage = StalledMessage
	s.Put(job)
	return nil, domain.ErrStaleJob
}

func TestStageConflictReportsCurrentTerminalState(t *testing.T) {
	h := newHarness(t)
	sub := h.submit(t, SubmitRequest{Kind: domain.JobKindAvatar, Image: h.input})
	m := h.newMachine(t, sweptJobs{h.jobs}, h.store)

	res, err := m.Advance(context.Background(), sub.JobID, "alice")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if res.Status != domain.JobStatusFailed || res.Error != StalledMessage || res.Message != "" {
		t.Fatalf("result = %+v", res)
	}
}

// flakyJobs fails the first n updates as a dropped database connection would.
type flakyJobs struct {
	*repo.MemoryJobRepository
	failures int
}

func (f *flakyJobs) Update(ctx context.Context, jobID, ownerID string, expected domain.Stage, patch domain.JobPatch) (*domain.Job, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("connection reset by peer")
	}
	return f.MemoryJobRepository.Update(ctx, jobID, ownerID, expected, patch)
}

func TestComicInputPreparationCanRerun(t *testing.T) {
	h := newHarness(t)
	sub := h.submit(t, SubmitRequest{Kind: domain.JobKindComic, Image: h.input})
	h.advance(t, sub.JobID)

	flaky := &flakyJobs{MemoryJobRepository: h.jobs, failures: 1}
	if _, err := h.newMachine(t, flaky, h.store).Advance(context.Background(), sub.JobID, "alice"); err == nil {
		t.Fatal("expected the lost update to surface")
	}
	key := storage.WorkingKey("alice", sub.JobID)
	if job := h.job(t, sub.JobID); job.Stage != domain.StagePromptGenerated || job.WorkingRef != "" {
		t.Fatalf("job after lost update = stage %s working %q", job.Stage, job.WorkingRef)
	}
	if !h.exists(key) {
		t.Fatal("first run should have written the working copy")
	}

	res := h.advance(t, sub.JobID)
	if res.Stage != domain.StageImageDownloaded || res.Status != domain.JobStatusProcessing {
		t.Fatalf("rerun = %+v", res)
	}
	if job := h.job(t, sub.JobID); job.WorkingRef != key {
		t.Fatalf("working ref = %q, want %q", job.WorkingRef, key)
	}
	data, err := h.store.Download(context.Background(), key)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("working copy is not a png: %v", err)
	}

	for i := 0; i < 3; i++ {
		res = h.advance(t, sub.JobID)
	}
	if res.Status != domain.JobStatusCompleted || res.Progress != 100 {
		t.Fatalf("final = %+v", res)
	}
}

func TestSubmitValidation(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name string
		req  SubmitRequest
		want error
	}{
		{name: "no owner", req: SubmitRequest{Kind: domain.JobKindAvatar, Image: h.input}, want: domain.ErrUnauthorized},
		{name: "unknown kind", req: SubmitRequest{OwnerID: "alice", Kind: "video"}, want: domain.ErrInvalidInput},
		{name: "custom cutout without prompt", req: SubmitRequest{OwnerID: "alice", Kind: domain.JobKindCutout, Options: json.RawMessage(`{"custom_mode":true}`)}, want: domain.ErrInvalidInput},
		{name: "bad size", req: SubmitRequest{OwnerID: "alice", Kind: domain.JobKindAvatar, Options: json.RawMessage(`{"size":"10x10"}`), Image: h.input}, want: domain.ErrInvalidInput},
		{name: "malformed options", req: SubmitRequest{OwnerID: "alice", Kind: domain.JobKindComic, Options: json.RawMessage(`[1]`), Image: h.input}, want: domain.ErrInvalidInput},
		{name: "avatar without image", req: SubmitRequest{OwnerID: "alice", Kind: domain.JobKindAvatar}, want: domain.ErrInvalidInput},
		{name: "not an image", req: SubmitRequest{OwnerID: "alice", Kind: domain.JobKindAvatar, Image: []byte("hello")}, want: domain.ErrInvalidInput},
		{name: "unknown saved face", req: SubmitRequest{OwnerID: "alice", Kind: domain.JobKindAvatar, SavedFaceID: "nope"}, want: domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.machine.Submit(context.Background(), tt.req); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if jobs, _ := h.jobs.List(context.Background(), "alice", 10, 0); len(jobs) != 0 {
		t.Fatalf("rejected submissions created jobs: %+v", jobs)
	}
}

func TestSubmitRejectsOversizedImage(t *testing.T) {
	h := newHarness(t)
	m, err := NewMachine(Options{Jobs: h.jobs, Store: h.store, Images: h.images, MaxUploadBytes: 16})
	if err != nil {
		t.Fatalf("NewMachine: %v", err)
	}
	_, err = m.Submit(context.Background(), SubmitRequest{OwnerID: "alice", Kind: domain.JobKindAvatar, Image: h.input})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v", err)
	}
}

func TestSavedFaceFeedsJobsAndSurvivesCleanup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	face, err := h.machine.SaveFace(ctx, "alice", h.input)
	if err != nil {
		t.Fatalf("SaveFace: %v", err)
	}
	if face.ImageRef != storage.FaceKey("alice", face.ID, "png") {
		t.Fatalf("face ref = %s", face.ImageRef)
	}
	if _, err := h.machine.Submit(ctx, SubmitRequest{OwnerID: "bob", Kind: domain.JobKindAvatar, SavedFaceID: face.ID}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("foreign face err = %v", err)
	}

	sub := h.submit(t, SubmitRequest{Kind: domain.JobKindAvatar, SavedFaceID: face.ID})
	if ref := h.job(t, sub.JobID).InputRef; ref != face.ImageRef {
		t.Fatalf("input ref = %s", ref)
	}
	h.advance(t, sub.JobID)
	if res := h.advance(t, sub.JobID); res.Status != domain.JobStatusCompleted {
		t.Fatalf("result = %+v", res)
	}
	if !h.exists(face.ImageRef) {
		t.Fatal("cleanup removed the saved face image")
	}

	faces, _ := h.machine.ListFaces(ctx, "alice")
	if len(faces) != 1 {
		t.Fatalf("faces = %+v", faces)
	}
	if err := h.machine.DeleteFace(ctx, face.ID, "alice"); err != nil {
		t.Fatalf("DeleteFace: %v", err)
	}
	if h.exists(face.ImageRef) {
		t.Fatal("face image not deleted")
	}
}

func TestDeleteRemovesJobAndImages(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sub := h.submit(t, SubmitRequest{Kind: domain.JobKindComic, Image: h.input})
	for i := 0; i < 4; i++ {
		h.advance(t, sub.JobID)
	}
	job := h.job(t, sub.JobID)
	if job.Stage != domain.StageResultUploaded {
		t.Fatalf("stage = %s", job.Stage)
	}

	h.guard.TryAcquire(ctx, sub.JobID)
	if err := h.machine.Delete(ctx, sub.JobID, "alice"); !errors.Is(err, ErrJobBusy) {
		t.Fatalf("Delete while busy err = %v", err)
	}
	h.guard.Release(ctx, sub.JobID)

	if err := h.machine.Delete(ctx, sub.JobID, "alice"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	for _, key := range []string{job.InputRef, job.WorkingRef, job.OutputRef} {
		if h.exists(key) {
			t.Fatalf("%s still stored", key)
		}
	}
	if _, err := h.machine.Status(ctx, sub.JobID, "alice"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Status after delete err = %v", err)
	}
}

func TestArchiveBundlesResultAndScript(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sub := h.submit(t, SubmitRequest{Kind: domain.JobKindComic, Image: h.input})
	if _, err := h.machine.Archive(ctx, sub.JobID, "alice"); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Archive before completion err = %v", err)
	}
	for i := 0; i < 5; i++ {
		h.advance(t, sub.JobID)
	}

	data, err := h.machine.Archive(ctx, sub.JobID, "alice")
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("read zip: %v", err)
	}
	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	for _, want := range []string{"result.png", "job.json", "script.json"} {
		if !names[want] {
			t.Fatalf("archive entries = %v, missing %s", names, want)
		}
	}
}

func TestListReturnsNewestFirst(t *testing.T) {
	h := newHarness(t)
	clock := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	h.machine.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	first := h.submit(t, SubmitRequest{Kind: domain.JobKindAvatar, Image: h.input})
	second := h.submit(t, SubmitRequest{Kind: domain.JobKindCutout, Options: json.RawMessage(`{"custom_mode":true,"prompt":"cat"}`)})
	h.submit(t, SubmitRequest{OwnerID: "bob", Kind: domain.JobKindAvatar, Image: h.input})

	list, err := h.machine.List(context.Background(), "alice", 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].JobID != second.JobID || list[1].JobID != first.JobID {
		t.Fatalf("list = %+v", list)
	}
}

func TestNormalizeLocale(t *testing.T) {
	tests := map[string]string{
		"":      "en",
		"id":    "id",
		"id-ID": "id",
		"en-US": "en",
		"fr":    "en",
		"???":   "en",
	}
	for in, want := range tests {
		if got := NormalizeLocale(in); got != want {
			t.Fatalf("NormalizeLocale(%q) = %q, want %q", in, got, want)
		}
	}
}
