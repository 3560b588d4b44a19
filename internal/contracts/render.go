package contracts

import "lecturebook/internal/stage"

// RenderedFile is one document written by the render stage.
type RenderedFile struct {
	Format    string `json:"format"`
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
	SHA256    string `json:"sha256"`
}

// RenderOutput lists the files written for a job.
type RenderOutput struct {
	OutputDir string         `json:"output_dir"`
	Files     []RenderedFile `json:"files"`
}

func (*RenderOutput) Stage() stage.Stage { return stage.Render }

func (r *RenderOutput) Validate() error {
	if len(r.Files) == 0 {
		return invalid(stage.Render, "no files rendered")
	}
	for _, f := range r.Files {
		if blank(f.Path) || blank(f.Format) {
			return invalid(stage.Render, "rendered file missing path or format")
		}
	}
	return nil
}

// Primary returns the path of the first rendered file.
func (r *RenderOutput) Primary() string {
	if len(r.Files) == 0 {
		return ""
	}
	return r.Files[0].Path
}
