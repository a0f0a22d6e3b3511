package jsoncfg

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// CutoutOptions configures a cartoon cutout job. In custom mode only Prompt is
// used and no input image is required.
type CutoutOptions struct {
	CustomMode   bool   `json:"custom_mode"`
	Prompt       string `json:"prompt,omitempty"`
	Pose         string `json:"pose,omitempty"`
	Prop         string `json:"prop,omitempty"`
	Style        string `json:"style,omitempty"`
	Expression   string `json:"expression,omitempty"`
	SpeechBubble string `json:"speech_bubble,omitempty"`
	UseCase      string `json:"use_case,omitempty"`
	Size         string `json:"size,omitempty"`
	Quality      string `json:"quality,omitempty"`
}

// AvatarOptions configures an avatar job.
type AvatarOptions struct {
	Style      string `json:"style,omitempty"`
	Expression string `json:"expression,omitempty"`
	Outfit     string `json:"outfit,omitempty"`
	Background string `json:"background,omitempty"`
	Size       string `json:"size,omitempty"`
	Quality    string `json:"quality,omitempty"`
}

// ComicOptions configures a comic strip job.
type ComicOptions struct {
	Persona    string `json:"persona,omitempty"`
	Mood       string `json:"mood,omitempty"`
	Vibe       string `json:"vibe,omitempty"`
	Style      string `json:"style,omitempty"`
	PanelCount int    `json:"panel_count,omitempty"`
	Size       string `json:"size,omitempty"`
	Quality    string `json:"quality,omitempty"`
}

const (
	// DefaultSize is the square output size accepted by the image API.
	DefaultSize = "1024x1024"
	// DefaultComicSize is a landscape canvas so panels read left to right.
	DefaultComicSize = "1536x1024"
	// DefaultQuality is the baseline generation quality.
	DefaultQuality = "medium"
	// DefaultPanelCount is used when a comic request omits panel_count.
	DefaultPanelCount = 4
	// MaxPanelCount caps the comic script length.
	MaxPanelCount = 6
	// MaxPromptRunes caps free-form custom prompts.
	MaxPromptRunes = 1000
	// MaxSpeechBubbleRunes keeps bubble text legible at sticker size.
	MaxSpeechBubbleRunes = 60

	DefaultCutoutPose       = "standing"
	DefaultCutoutStyle      = "cartoon"
	DefaultCutoutExpression = "smiling"
	DefaultCutoutUseCase    = "sticker"

	DefaultAvatarStyle      = "3d"
	DefaultAvatarExpression = "smiling"
	DefaultAvatarOutfit     = "casual"
	DefaultAvatarBackground = "solid"

	DefaultComicPersona = "everyday hero"
	DefaultComicMood    = "cheerful"
	DefaultComicVibe    = "slice of life"
	DefaultComicStyle   = "classic"
)

var allowedSizes = map[string]struct{}{
	"1024x1024": {},
	"1024x1536": {},
	"1536x1024": {},
	"auto":      {},
}

var allowedQualities = map[string]struct{}{
	"low":    {},
	"medium": {},
	"high":   {},
	"auto":   {},
}

// Normalize trims user input and applies defaults.
func (o *CutoutOptions) Normalize() {
	if o == nil {
		return
	}
	o.Prompt = strings.TrimSpace(o.Prompt)
	o.Pose = lowerOr(o.Pose, DefaultCutoutPose)
	o.Prop = strings.ToLower(strings.TrimSpace(o.Prop))
	o.Style = lowerOr(o.Style, DefaultCutoutStyle)
	o.Expression = lowerOr(o.Expression, DefaultCutoutExpression)
	o.UseCase = lowerOr(o.UseCase, DefaultCutoutUseCase)
	o.SpeechBubble = strings.TrimSpace(o.SpeechBubble)
	o.Size = lowerOr(o.Size, DefaultSize)
	o.Quality = lowerOr(o.Quality, DefaultQuality)
}

// Validate ensures the options can drive a cutout job.
func (o CutoutOptions) Validate() error {
	if o.CustomMode {
		if o.Prompt == "" {
			return fmt.Errorf("prompt is required in custom mode")
		}
		if utf8.RuneCountInString(o.Prompt) > MaxPromptRunes {
			return fmt.Errorf("prompt must be at most %d characters", MaxPromptRunes)
		}
	}
	if utf8.RuneCountInString(o.SpeechBubble) > MaxSpeechBubbleRunes {
		return fmt.Errorf("speech_bubble must be at most %d characters", MaxSpeechBubbleRunes)
	}
	return validateRender(o.Size, o.Quality)
}

// Normalize trims user input and applies defaults.
func (o *AvatarOptions) Normalize() {
	if o == nil {
		return
	}
	o.Style = lowerOr(o.Style, DefaultAvatarStyle)
	o.Expression = lowerOr(o.Expression, DefaultAvatarExpression)
	o.Outfit = lowerOr(o.Outfit, DefaultAvatarOutfit)
	o.Background = lowerOr(o.Background, DefaultAvatarBackground)
	o.Size = lowerOr(o.Size, DefaultSize)
	o.Quality = lowerOr(o.Quality, DefaultQuality)
}

// Validate ensures the options can drive an avatar job.
func (o AvatarOptions) Validate() error {
	return validateRender(o.Size, o.Quality)
}

// Normalize trims user input, applies defaults and clamps the panel count.
func (o *ComicOptions) Normalize() {
	if o == nil {
		return
	}
	o.Persona = trimOr(o.Persona, DefaultComicPersona)
	o.Mood = trimOr(o.Mood, DefaultComicMood)
	o.Vibe = trimOr(o.Vibe, DefaultComicVibe)
	o.Style = lowerOr(o.Style, DefaultComicStyle)
	if o.PanelCount <= 0 {
		o.PanelCount = DefaultPanelCount
	}
	if o.PanelCount > MaxPanelCount {
		o.PanelCount = MaxPanelCount
	}
	o.Size = lowerOr(o.Size, DefaultComicSize)
	o.Quality = lowerOr(o.Quality, DefaultQuality)
}

// Validate ensures the options can drive a comic job.
func (o ComicOptions) Validate() error {
	if o.PanelCount < 1 || o.PanelCount > MaxPanelCount {
		return fmt.Errorf("panel_count must be between 1 and %d", MaxPanelCount)
	}
	for field, value := range map[string]string{"persona": o.Persona, "mood": o.Mood, "vibe": o.Vibe} {
		if utf8.RuneCountInString(value) > 120 {
			return fmt.Errorf("%s must be at most 120 characters", field)
		}
	}
	return validateRender(o.Size, o.Quality)
}

// DecodeCutout parses stored or submitted cutout options. Empty input yields
// defaults.
func DecodeCutout(raw json.RawMessage) (CutoutOptions, error) {
	var o CutoutOptions
	if err := decode(raw, &o); err != nil {
		return o, fmt.Errorf("decode cutout options: %w", err)
	}
	o.Normalize()
	return o, nil
}

// DecodeAvatar parses stored or submitted avatar options.
func DecodeAvatar(raw json.RawMessage) (AvatarOptions, error) {
	var o AvatarOptions
	if err := decode(raw, &o); err != nil {
		return o, fmt.Errorf("decode avatar options: %w", err)
	}
	o.Normalize()
	return o, nil
}

// DecodeComic parses stored or submitted comic options.
func DecodeComic(raw json.RawMessage) (ComicOptions, error) {
	var o ComicOptions
	if err := decode(raw, &o); err != nil {
		return o, fmt.Errorf("decode comic options: %w", err)
	}
	o.Normalize()
	return o, nil
}

// MustMarshal encodes v and panics on failure. Only use it with values whose
// encoding cannot fail.
func MustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("json marshal: %w", err))
	}
	return b
}

func decode(raw json.RawMessage, dst any) error {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	return json.Unmarshal([]byte(trimmed), dst)
}

func validateRender(size, quality string) error {
	if _, ok := allowedSizes[size]; !ok {
		return fmt.Errorf("size must be one of 1024x1024, 1024x1536, 1536x1024, auto")
	}
	if _, ok := allowedQualities[quality]; !ok {
		return fmt.Errorf("quality must be one of low, medium, high, auto")
	}
	return nil
}

func lowerOr(v, fallback string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return fallback
	}
	return v
}

func trimOr(v, fallback string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	return v
}
