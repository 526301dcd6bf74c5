package graph

import (
	"fmt"
	"math/rand"

	"comfygate/internal/model"
	"comfygate/pkg/config"
)

// Fixed node ids of the built-in generation templates.
const (
	NodeCheckpoint   = "30"
	NodePositive     = "6"
	NodeNegative     = "33"
	NodeKSampler     = "31"
	NodeVAEDecode    = "8"
	NodeSave         = "9"
	NodeEmptyLatent  = "36"
	NodeLoadImage    = "51"
	NodeResize       = "53"
	NodeVAEEncode    = "54"
	NodeLatentRepeat = "55"
	NodeEncrypt      = "60"

	// LoRA loader ids start here: 100, 101, ...
	loraNodeBase = 100
)

// Builder constructs back-end graphs from configuration defaults.
type Builder struct {
	gen config.GenerationConfig
}

// NewBuilder creates a graph builder.
func NewBuilder(gen config.GenerationConfig) *Builder {
	return &Builder{gen: gen}
}

// DrawSeed returns a fresh random seed. Kept to 63 bits so the value survives
// a JSON round trip without precision loss.
func DrawSeed() int64 {
	return rand.Int63()
}

// ResolveSeed replaces the random sentinel with a freshly drawn seed.
func ResolveSeed(seed int64) int64 {
	if seed == model.RandomSeed {
		return DrawSeed()
	}
	return seed
}

// Txt2Img builds the fixed text-to-image template: checkpoint loader, CLIP
// encodes, KSampler fed by an empty latent, VAE decode and save.
func (b *Builder) Txt2Img(p *model.Txt2ImgPayload) Graph {
	g := b.common(p)

	g[NodeEmptyLatent] = &Node{
		ClassType: "EmptyLatentImage",
		Inputs: map[string]interface{}{
			"width":      p.Width,
			"height":     p.Height,
			"batch_size": p.BatchSize,
		},
		Meta: &Meta{Title: "Empty Latent Image"},
	}
	g[NodeKSampler].Inputs["latent_image"] = Link(NodeEmptyLatent, 0)
	g[NodeKSampler].Inputs["denoise"] = 1.0

	b.chainLoras(g, p.Loras)
	b.applyEncryption(g)
	return g
}

// Img2Img builds the image-to-image template. uploadedName is the filename
// the claimed back-end returned for the input image upload.
func (b *Builder) Img2Img(p *model.Img2ImgPayload, uploadedName string) Graph {
	g := b.common(&p.Txt2ImgPayload)

	g[NodeLoadImage] = &Node{
		ClassType: "LoadImage",
		Inputs: map[string]interface{}{
			"image": uploadedName,
		},
		Meta: &Meta{Title: "Load Image"},
	}
	g[NodeResize] = &Node{
		ClassType: "ImageScale",
		Inputs: map[string]interface{}{
			"image":          Link(NodeLoadImage, 0),
			"upscale_method": "lanczos",
			"width":          p.Width,
			"height":         p.Height,
			"crop":           "disabled",
		},
		Meta: &Meta{Title: "Resize"},
	}
	g[NodeVAEEncode] = &Node{
		ClassType: "VAEEncode",
		Inputs: map[string]interface{}{
			"pixels": Link(NodeResize, 0),
			"vae":    Link(NodeCheckpoint, 2),
		},
		Meta: &Meta{Title: "VAE Encode"},
	}
	g[NodeLatentRepeat] = &Node{
		ClassType: "RepeatLatentBatch",
		Inputs: map[string]interface{}{
			"samples": Link(NodeVAEEncode, 0),
			"amount":  p.BatchSize,
		},
		Meta: &Meta{Title: "Repeat Latent Batch"},
	}
	g[NodeKSampler].Inputs["latent_image"] = Link(NodeLatentRepeat, 0)
	g[NodeKSampler].Inputs["denoise"] = p.Denoise

	b.chainLoras(g, p.Loras)
	b.applyEncryption(g)
	return g
}

// common emits the nodes shared by both templates.
func (b *Builder) common(p *model.Txt2ImgPayload) Graph {
	ckpt := b.gen.CkptName
	if p.Model != nil {
		ckpt = p.Model.File
	}

	negative := p.NegativePrompt
	if negative == "" {
		negative = b.gen.NegativePrompt
	}

	return Graph{
		NodeCheckpoint: {
			ClassType: "CheckpointLoaderSimple",
			Inputs: map[string]interface{}{
				"ckpt_name": ckpt,
			},
			Meta: &Meta{Title: "Load Checkpoint"},
		},
		NodePositive: {
			ClassType: "CLIPTextEncode",
			Inputs: map[string]interface{}{
				"text": p.Prompt,
				"clip": Link(NodeCheckpoint, 1),
			},
			Meta: &Meta{Title: "Positive Prompt"},
		},
		NodeNegative: {
			ClassType: "CLIPTextEncode",
			Inputs: map[string]interface{}{
				"text": negative,
				"clip": Link(NodeCheckpoint, 1),
			},
			Meta: &Meta{Title: "Negative Prompt"},
		},
		NodeKSampler: {
			ClassType: "KSampler",
			Inputs: map[string]interface{}{
				"model":        Link(NodeCheckpoint, 0),
				"positive":     Link(NodePositive, 0),
				"negative":     Link(NodeNegative, 0),
				"seed":         p.Seed,
				"steps":        b.gen.NumInferenceSteps,
				"cfg":          b.gen.CFG,
				"sampler_name": b.gen.SamplerName,
				"scheduler":    b.gen.Scheduler,
			},
			Meta: &Meta{Title: "KSampler"},
		},
		NodeVAEDecode: {
			ClassType: "VAEDecode",
			Inputs: map[string]interface{}{
				"samples": Link(NodeKSampler, 0),
				"vae":     Link(NodeCheckpoint, 2),
			},
			Meta: &Meta{Title: "VAE Decode"},
		},
		NodeSave: {
			ClassType: "SaveImage",
			Inputs: map[string]interface{}{
				"filename_prefix": "comfygate",
				"images":          Link(NodeVAEDecode, 0),
			},
			Meta: &Meta{Title: "Save Image"},
		},
	}
}

// chainLoras synthesizes one loader node per LoRA reference. The first loader
// reads model/CLIP from the checkpoint loader, each subsequent one from its
// predecessor, and the sampler plus both CLIP encodes are rewired to the last
// loader's outputs. LoRA order is preserved.
func (b *Builder) chainLoras(g Graph, loras []model.LoraRef) {
	if len(loras) == 0 {
		return
	}

	prev := NodeCheckpoint
	last := prev
	for i, lora := range loras {
		id := fmt.Sprintf("%d", loraNodeBase+i)
		g[id] = &Node{
			ClassType: "LoraLoader",
			Inputs: map[string]interface{}{
				"model":          Link(prev, 0),
				"clip":           Link(prev, 1),
				"lora_name":      lora.File,
				"strength_model": lora.StrengthModel,
				"strength_clip":  lora.StrengthClip,
			},
			Meta: &Meta{Title: "LoRA: " + lora.Name},
		}
		prev = id
		last = id
	}

	g[NodeKSampler].Inputs["model"] = Link(last, 0)
	g[NodePositive].Inputs["clip"] = Link(last, 1)
	g[NodeNegative].Inputs["clip"] = Link(last, 1)
}

// applyEncryption interposes the encrypt node between VAE decode and save
// when encryption is enabled.
func (b *Builder) applyEncryption(g Graph) {
	if !b.gen.EnableImageEncrypt {
		return
	}
	g[NodeEncrypt] = &Node{
		ClassType: "ImageEncrypt",
		Inputs: map[string]interface{}{
			"images": Link(NodeVAEDecode, 0),
		},
		Meta: &Meta{Title: "Encrypt"},
	}
	g[NodeSave].Inputs["images"] = Link(NodeEncrypt, 0)
}
