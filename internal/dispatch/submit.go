package dispatch

import (
	"fmt"

	"comfygate/internal/graph"
	"comfygate/internal/model"
)

// SubmitTxt2Img normalizes a text-to-image payload, admits it and returns the
// receipt the caller waits on.
func (d *Dispatcher) SubmitTxt2Img(userID, groupID string, p *model.Txt2ImgPayload) (*model.Receipt, error) {
	if err := d.normalizeTxt2Img(p, false); err != nil {
		return nil, err
	}

	job := model.NewJob(newJobID(), model.JobKindTxt2Img, userID)
	job.GroupID = groupID
	job.Txt2Img = p
	return d.admit(job)
}

// SubmitImg2Img normalizes an image-to-image payload, admits it and returns
// the receipt. The input image is uploaded later, to whichever server the job
// is dispatched on.
func (d *Dispatcher) SubmitImg2Img(userID, groupID string, p *model.Img2ImgPayload) (*model.Receipt, error) {
	if len(p.Image.Data) == 0 && p.Image.Path == "" {
		return nil, fmt.Errorf("img2img requires an input image")
	}
	if err := d.normalizeTxt2Img(&p.Txt2ImgPayload, true); err != nil {
		return nil, err
	}
	if p.Denoise <= 0 || p.Denoise > 1 {
		p.Denoise = d.cfg.Generation.DefaultDenoise
	}

	job := model.NewJob(newJobID(), model.JobKindImg2Img, userID)
	job.GroupID = groupID
	job.Img2Img = p
	return d.admit(job)
}

// SubmitWorkflow validates a workflow payload against its descriptor, admits
// it and returns the receipt.
func (d *Dispatcher) SubmitWorkflow(userID, groupID string, p *model.WorkflowPayload) (*model.Receipt, error) {
	desc, ok := d.workflows.Get(p.Workflow)
	if !ok {
		return nil, fmt.Errorf("unknown workflow %q", p.Workflow)
	}
	if err := desc.ValidateParams(p.Params); err != nil {
		return nil, err
	}

	job := model.NewJob(newJobID(), model.JobKindWorkflow, userID)
	job.GroupID = groupID
	job.Workflow = p
	return d.admit(job)
}

// SubmitCommand routes a free-form command line: the first token selects a
// workflow by its trigger prefix, the tail is parsed against the workflow's
// parameter schema.
func (d *Dispatcher) SubmitCommand(userID, groupID, text string, images []model.InputImage) (*model.Receipt, error) {
	desc, tail, ok := d.workflows.MatchPrefix(text)
	if !ok {
		return nil, fmt.Errorf("no workflow matches command %q", firstToken(text))
	}

	params, err := desc.ParseArgs(tail)
	if err != nil {
		return nil, err
	}
	return d.SubmitWorkflow(userID, groupID, &model.WorkflowPayload{
		Workflow: desc.Name,
		Params:   params,
		Images:   images,
	})
}

func (d *Dispatcher) admit(job *model.Job) (*model.Receipt, error) {
	if err := d.admission.Admit(job); err != nil {
		return nil, err
	}
	return &model.Receipt{JobID: job.ID, Result: job.Result()}, nil
}

// normalizeTxt2Img fills defaults and validates ranges. Unset dimensions take
// the configured defaults; set ones outside the configured bounds are rejected
// with a user-facing error, as is an over-long LoRA chain.
func (d *Dispatcher) normalizeTxt2Img(p *model.Txt2ImgPayload, img2img bool) error {
	gen := d.cfg.Generation

	if p.Prompt == "" && !img2img {
		return fmt.Errorf("prompt must not be empty")
	}
	if len(p.Loras) > gen.MaxLoraCount {
		return fmt.Errorf("at most %d LoRAs per job, got %d", gen.MaxLoraCount, len(p.Loras))
	}

	if p.Width <= 0 {
		p.Width = gen.DefaultWidth
	}
	if p.Height <= 0 {
		p.Height = gen.DefaultHeight
	}
	if p.Width < gen.MinWidth || p.Width > gen.MaxWidth {
		return fmt.Errorf("width %d out of range [%d, %d]", p.Width, gen.MinWidth, gen.MaxWidth)
	}
	if p.Height < gen.MinHeight || p.Height > gen.MaxHeight {
		return fmt.Errorf("height %d out of range [%d, %d]", p.Height, gen.MinHeight, gen.MaxHeight)
	}

	maxBatch := gen.MaxTxt2ImgBatch
	defaultBatch := gen.Txt2ImgBatchSize
	if img2img {
		maxBatch = gen.MaxImg2ImgBatch
		defaultBatch = gen.Img2ImgBatchSize
	}
	if p.BatchSize <= 0 {
		p.BatchSize = defaultBatch
	}
	if p.BatchSize > maxBatch {
		p.BatchSize = maxBatch
	}

	if p.Seed == 0 {
		p.Seed = gen.Seed
	}
	p.Seed = graph.ResolveSeed(p.Seed)
	return nil
}

func firstToken(text string) string {
	for i, r := range text {
		if r == ' ' || r == '\t' || r == '\n' {
			return text[:i]
		}
	}
	return text
}
