package imagegen

import (
	"fmt"
	"strings"

	"cutoutly/internal/domain/jsoncfg"
)

// Phrase tables map option ids to prompt fragments. Ids missing from a table
// are used verbatim so new client options degrade to plain text instead of
// failing the job.
var (
	cutoutPoses = map[string]string{
		"standing":     "standing upright facing the viewer",
		"waving":       "waving one hand in greeting",
		"thumbs_up":    "giving an enthusiastic thumbs up",
		"pointing":     "pointing to the side as if presenting something",
		"arms_crossed": "with arms crossed and a confident stance",
		"jumping":      "jumping mid-air with joy",
		"sitting":      "sitting cross-legged",
		"peace_sign":   "making a peace sign with one hand",
	}
	cutoutProps = map[string]string{
		"coffee":     "holding a steaming cup of coffee",
		"laptop":     "holding an open laptop",
		"phone":      "holding a smartphone",
		"microphone": "holding a microphone",
		"balloon":    "holding a colorful balloon",
		"gift":       "holding a wrapped gift box",
		"sign":       "holding a blank sign board",
		"trophy":     "holding a golden trophy",
	}
	cutoutStyles = map[string]string{
		"cartoon": "bold clean cartoon illustration with thick outlines and flat vibrant colors",
		"anime":   "anime style illustration with expressive eyes and cel shading",
		"chibi":   "cute chibi style with an oversized head and small body",
		"pixar":   "3D animated movie character style with soft lighting",
		"comic":   "western comic book style with ink lines and halftone shading",
		"pixel":   "retro pixel art style",
	}
	cutoutExpressions = map[string]string{
		"smiling":   "a warm friendly smile",
		"laughing":  "laughing out loud",
		"surprised": "a surprised expression with wide eyes",
		"cool":      "a cool relaxed look",
		"winking":   "a playful wink",
		"serious":   "a focused serious expression",
	}
	cutoutUseCases = map[string]string{
		"sticker":      "die-cut sticker with a thick white border on a transparent background",
		"avatar":       "profile picture framing from the chest up",
		"emoji":        "emoji sized icon with an exaggerated pose",
		"thumbnail":    "eye-catching video thumbnail cutout",
		"presentation": "clean presentation asset on a plain white background",
	}

	avatarStyles = map[string]string{
		"3d":         "stylized 3D animated character render",
		"anime":      "anime portrait with cel shading",
		"cartoon":    "flat vector cartoon portrait",
		"watercolor": "soft watercolor painting",
		"pixel":      "pixel art portrait",
		"clay":       "claymation figure look",
	}
	avatarExpressions = map[string]string{
		"smiling":   "a warm smile",
		"laughing":  "a joyful laugh",
		"neutral":   "a calm neutral expression",
		"confident": "a confident smirk",
		"surprised": "a surprised look",
	}
	avatarOutfits = map[string]string{
		"casual":      "casual everyday clothes",
		"business":    "a smart business suit",
		"sporty":      "sporty athletic wear",
		"hoodie":      "a cozy hoodie",
		"traditional": "traditional batik attire",
		"superhero":   "a colorful superhero costume",
	}
	avatarBackgrounds = map[string]string{
		"solid":    "a solid pastel background",
		"gradient": "a smooth gradient background",
		"office":   "a blurred office background",
		"outdoor":  "a sunny outdoor background",
		"none":     "a transparent background",
	}

	comicStyles = map[string]string{
		"classic": "classic newspaper comic strip with clean ink lines and flat colors",
		"manga":   "black and white manga with screentone shading",
		"webtoon": "bright webtoon style with soft gradients",
		"noir":    "high contrast noir comic with heavy shadows",
		"retro":   "retro 1960s pop art comic with halftone dots",
	}
)

const (
	cutoutSuffix = "Isolated full-body character cutout, centered, no background clutter, crisp edges suitable for cropping."
	identityHint = "Keep the person's facial features, skin tone and hairstyle recognizable."
)

// Phrase returns the table entry for id or id itself when unknown.
func Phrase(table map[string]string, id string) string {
	id = strings.TrimSpace(id)
	if v, ok := table[id]; ok {
		return v
	}
	return strings.ReplaceAll(id, "_", " ")
}

// BuildCutoutPrompt renders a cutout prompt. In custom mode the user's prompt
// is kept as-is and only the cutout suffix is appended.
func BuildCutoutPrompt(o jsoncfg.CutoutOptions, locale string) string {
	if o.CustomMode {
		return strings.TrimSpace(o.Prompt) + ". " + cutoutSuffix
	}
	parts := []string{
		fmt.Sprintf("Turn the person in the photo into a %s.", Phrase(cutoutStyles, o.Style)),
		fmt.Sprintf("The character is %s with %s.", Phrase(cutoutPoses, o.Pose), Phrase(cutoutExpressions, o.Expression)),
	}
	if o.Prop != "" && o.Prop != "none" {
		parts = append(parts, fmt.Sprintf("The character is %s.", Phrase(cutoutProps, o.Prop)))
	}
	if bubble := strings.TrimSpace(o.SpeechBubble); bubble != "" {
		parts = append(parts, fmt.Sprintf("Add a speech bubble that reads %q, lettered in %s.", bubble, languageName(locale)))
	}
	parts = append(parts, "Format: "+Phrase(cutoutUseCases, o.UseCase)+".")
	parts = append(parts, identityHint, cutoutSuffix)
	return strings.Join(parts, " ")
}

// BuildAvatarPrompt renders an avatar prompt from the style, expression,
// outfit and background tables.
func BuildAvatarPrompt(o jsoncfg.AvatarOptions) string {
	parts := []string{
		fmt.Sprintf("Create an avatar of the person in the photo as a %s.", Phrase(avatarStyles, o.Style)),
		fmt.Sprintf("They have %s and wear %s.", Phrase(avatarExpressions, o.Expression), Phrase(avatarOutfits, o.Outfit)),
		fmt.Sprintf("Head and shoulders portrait on %s.", Phrase(avatarBackgrounds, o.Background)),
		identityHint,
	}
	return strings.Join(parts, " ")
}

// BuildComicPrompt renders the image prompt for a comic strip from a script.
// Callers use it when the script writer did not supply a final prompt.
func BuildComicPrompt(o jsoncfg.ComicOptions, title string, panels []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Draw a %d-panel comic strip in %s style", len(panels), Phrase(comicStyles, o.Style))
	if t := strings.TrimSpace(title); t != "" {
		fmt.Fprintf(&b, " titled %q", t)
	}
	fmt.Fprintf(&b, ". The main character is the person in the photo as %s. Mood: %s. Vibe: %s.", o.Persona, o.Mood, o.Vibe)
	for i, panel := range panels {
		fmt.Fprintf(&b, " Panel %d: %s.", i+1, strings.TrimRight(strings.TrimSpace(panel), "."))
	}
	b.WriteString(" Panels are arranged left to right with clear gutters. ")
	b.WriteString(identityHint)
	return b.String()
}

// ComicStyle exposes the comic style phrase for script writers.
func ComicStyle(id string) string {
	return Phrase(comicStyles, id)
}

func languageName(locale string) string {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(locale)), "id") {
		return "Indonesian"
	}
	return "English"
}
