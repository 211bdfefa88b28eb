package musicbrainz

import (
	"strings"

	"github.com/dlclark/regexp2"
)

// Provider track titles carry decoration MusicBrainz does not index:
// "(Remastered 2011)", "- Radio Edit", "feat. X". The cleaner strips
// that before the fallback search so near-miss titles still match.

var guffWords = []string{
	"acoustic", "bonus", "clean", "demo", "deluxe", "dirty", "edit",
	"explicit", "extended", "instrumental", "karaoke", "live", "mix",
	"mono", "radio", "remaster", "remastered", "remix", "remixed",
	"rework", "session", "single", "stereo", "version",
}

type MetadataCleaner struct {
	enclosedExpr *regexp2.Regexp
	featExpr     *regexp2.Regexp
	dashExpr     *regexp2.Regexp
	artistExpr   *regexp2.Regexp
}

func NewMetadataCleaner() *MetadataCleaner {
	return &MetadataCleaner{
		enclosedExpr: regexp2.MustCompile(`(?i)(?<title>.+?)\s+(?<enclosed>\(.+\)|\[.+\]|\{.+\})$`, 0),
		featExpr:     regexp2.MustCompile(`(?i)(?<title>.+?)\s+?[\[\(]?(?:feat(?:uring)?|ft)\b\.?\s*?.+`, 0),
		dashExpr:     regexp2.MustCompile(`(?i)(?<title>.+?)(?:\s+?[‐‒–—~-])(?![^(]*\))(?<dash>.*)`, 0),
		artistExpr:   regexp2.MustCompile(`(?i)(?<title>.+?)(?:\s*?,|\s+?(&|with))(?<rest>.*)`, 0),
	}
}

// CleanRecording strips featured-artist and guff decoration from a track
// title. The second return reports whether anything was removed.
func (mc *MetadataCleaner) CleanRecording(title string) (string, bool) {
	cleaned := title

	if m, _ := mc.featExpr.FindStringMatch(cleaned); m != nil {
		if g := m.GroupByName("title"); g != nil {
			cleaned = g.String()
		}
	}

	if m, _ := mc.enclosedExpr.FindStringMatch(cleaned); m != nil {
		titleGroup := m.GroupByName("title")
		enclosed := m.GroupByName("enclosed")
		if titleGroup != nil && enclosed != nil && isGuff(enclosed.String()) {
			cleaned = titleGroup.String()
		}
	}

	if m, _ := mc.dashExpr.FindStringMatch(cleaned); m != nil {
		titleGroup := m.GroupByName("title")
		dash := m.GroupByName("dash")
		if titleGroup != nil && dash != nil && isGuff(dash.String()) {
			cleaned = titleGroup.String()
		}
	}

	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return title, false
	}
	return cleaned, cleaned != title
}

// CleanArtist reduces a joined artist string ("A, B & C") to its first
// credited name for searching.
func (mc *MetadataCleaner) CleanArtist(name string) (string, bool) {
	cleaned := name
	if m, _ := mc.artistExpr.FindStringMatch(cleaned); m != nil {
		if g := m.GroupByName("title"); g != nil {
			cleaned = g.String()
		}
	}
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return name, false
	}
	return cleaned, cleaned != name
}

// isGuff reports whether a stripped decoration looks like release guff
// rather than part of the real title.
func isGuff(s string) bool {
	s = strings.ToLower(strings.Trim(s, " ()[]{}"))
	for _, w := range strings.Fields(s) {
		for _, guff := range guffWords {
			if w == guff {
				return true
			}
		}
	}
	return false
}
