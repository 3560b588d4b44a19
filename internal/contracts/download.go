package contracts

import "lecturebook/internal/stage"

// SourceType describes how a source item was retrieved.
type SourceType string

const (
	SourceYouTube    SourceType = "youtube"
	SourceDirectHTTP SourceType = "direct_http"
	SourceLocalFile  SourceType = "local_file"
)

// DownloadOutput records the normalized audio produced for one source item.
type DownloadOutput struct {
	SourceURL       string     `json:"source_url"`
	SourceType      SourceType `json:"source_type"`
	AudioPath       string     `json:"audio_path"`
	OriginalPath    string     `json:"original_path,omitempty"`
	SHA256          string     `json:"sha256,omitempty"`
	Title           string     `json:"title"`
	DurationSeconds float64    `json:"duration_seconds"`
	SizeBytes       int64      `json:"size_bytes"`
	UploadDate      string     `json:"upload_date,omitempty"`
	Channel         string     `json:"channel,omitempty"`
	Speaker         string     `json:"speaker,omitempty"`
}

func (*DownloadOutput) Stage() stage.Stage { return stage.Download }

func (d *DownloadOutput) Validate() error {
	switch {
	case blank(d.SourceURL):
		return invalid(stage.Download, "source_url is empty")
	case blank(d.AudioPath):
		return invalid(stage.Download, "audio_path is empty")
	case blank(d.Title):
		return invalid(stage.Download, "title is empty")
	case d.DurationSeconds < 0:
		return invalid(stage.Download, "duration_seconds is negative")
	case d.SizeBytes < 0:
		return invalid(stage.Download, "size_bytes is negative")
	}
	switch d.SourceType {
	case SourceYouTube, SourceDirectHTTP, SourceLocalFile:
	default:
		return invalid(stage.Download, "unknown source_type %q", d.SourceType)
	}
	return nil
}
