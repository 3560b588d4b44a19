package download

import (
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"lecturebook/internal/contracts"
)

// ytdlpHosts are handled by yt-dlp even when the path looks like a file.
var ytdlpHosts = regexp.MustCompile(`(?i)(youtube\.com|youtu\.be|soundcloud\.com|vimeo\.com|dailymotion\.com|archive\.org|podcasts?\.(apple|google)\.com)/`)

var audioExtensions = map[string]struct{}{
	".mp3": {}, ".wav": {}, ".m4a": {}, ".ogg": {}, ".opus": {}, ".flac": {}, ".webm": {}, ".aac": {},
}

// DetectSourceType picks the retrieval strategy for a source. Unknown web
// pages go to yt-dlp, which supports many sites.
func DetectSourceType(source string) contracts.SourceType {
	source = strings.TrimSpace(source)
	switch {
	case strings.HasPrefix(source, "/"), strings.HasPrefix(source, "file://"):
		return contracts.SourceLocalFile
	case ytdlpHosts.MatchString(source):
		return contracts.SourceYouTube
	case IsDirectAudioURL(source):
		return contracts.SourceDirectHTTP
	default:
		return contracts.SourceYouTube
	}
}

// IsDirectAudioURL reports whether the URL path ends in a known audio extension.
func IsDirectAudioURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	_, ok := audioExtensions[strings.ToLower(path.Ext(u.Path))]
	return ok
}

// LocalPath strips a file:// scheme.
func LocalPath(source string) string {
	return strings.TrimPrefix(strings.TrimSpace(source), "file://")
}

// fileNameFromURL derives a download file name from the URL path.
func fileNameFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "download.mp3"
	}
	name, err := url.PathUnescape(path.Base(u.Path))
	if err != nil || name == "" || name == "." || name == "/" {
		return "download.mp3"
	}
	return name
}

// titleFromPath turns "/x/morning_class-2024.mp3" into "morning class 2024".
func titleFromPath(p string) string {
	base := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	return strings.Join(strings.Fields(base), " ")
}
