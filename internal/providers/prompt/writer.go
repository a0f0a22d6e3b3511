package prompt

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"cutoutly/internal/domain/jsoncfg"
	"cutoutly/internal/imagegen"
)

// ScriptRequest carries the comic options the script is written from.
type ScriptRequest struct {
	Options jsoncfg.ComicOptions
	Locale  string
}

// Script is a comic breakdown plus the image prompt derived from it.
type Script struct {
	Title       string   `json:"title"`
	Panels      []string `json:"panels"`
	FinalPrompt string   `json:"final_prompt"`
	Provider    string   `json:"provider,omitempty"`
}

// ScriptWriter produces comic scripts.
type ScriptWriter interface {
	GenerateScript(ctx context.Context, req ScriptRequest) (*Script, error)
}

// StaticWriter builds a script from fixed beats. It backs local development
// and takes over when the LLM is unavailable.
type StaticWriter struct{}

func NewStaticWriter() *StaticWriter {
	return &StaticWriter{}
}

var staticBeats = map[string][]string{
	"en": {
		"%s starts the day feeling %s",
		"An unexpected twist shakes up the %s routine",
		"%s improvises a clever plan",
		"Things go hilariously sideways",
		"A friend joins in and the mood turns %s",
		"%s ends the day with a big grin",
	},
	"id": {
		"%s memulai hari dengan perasaan %s",
		"Kejutan tak terduga mengguncang rutinitas %s",
		"%s menyusun rencana cerdik",
		"Semuanya jadi kacau dengan lucu",
		"Seorang teman ikut dan suasana jadi %s",
		"%s menutup hari dengan senyum lebar",
	},
}

func (s *StaticWriter) GenerateScript(ctx context.Context, req ScriptRequest) (*Script, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts := req.Options
	opts.Normalize()
	lang := localeKey(req.Locale)
	tag := language.English
	if lang == "id" {
		tag = language.Indonesian
	}
	c := cases.Title(tag)
	persona := c.String(opts.Persona)
	beats := staticBeats[lang]
	panels := make([]string, 0, opts.PanelCount)
	for i := 0; i < opts.PanelCount; i++ {
		beat := beats[i%len(beats)]
		switch strings.Count(beat, "%s") {
		case 2:
			panels = append(panels, fmt.Sprintf(beat, persona, opts.Mood))
		case 1:
			if strings.HasPrefix(beat, "%s") {
				panels = append(panels, fmt.Sprintf(beat, persona))
			} else {
				panels = append(panels, fmt.Sprintf(beat, opts.Vibe))
			}
		default:
			panels = append(panels, beat)
		}
	}
	title := c.String(fmt.Sprintf("%s %s", opts.Mood, opts.Vibe))
	return &Script{
		Title:       title,
		Panels:      panels,
		FinalPrompt: imagegen.BuildComicPrompt(opts, title, panels),
		Provider:    staticProviderName,
	}, nil
}

func localeKey(locale string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(locale)), "id") {
		return "id"
	}
	return "en"
}

var _ ScriptWriter = (*StaticWriter)(nil)
