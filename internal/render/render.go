package render

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"lecturebook/internal/contracts"
	"lecturebook/internal/fileutil"
	"lecturebook/internal/logging"
	"lecturebook/internal/services"
	"lecturebook/internal/stage"
	"lecturebook/internal/textutil"
)

// Supported formats.
const (
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

// DefaultFormats is used when a job does not request specific formats.
var DefaultFormats = []string{FormatMarkdown, FormatJSON}

// frontMatter is the YAML header of the markdown rendition.
type frontMatter struct {
	Title            string   `yaml:"title"`
	Speaker          string   `yaml:"speaker,omitempty"`
	Date             string   `yaml:"date"`
	Chapters         int      `yaml:"chapters"`
	Words            int      `yaml:"words"`
	VersesReferenced int      `yaml:"verses_referenced"`
	VerifiedVerses   int      `yaml:"verified_verses"`
	Sources          []string `yaml:"sources,omitempty"`
	Themes           []string `yaml:"themes,omitempty"`
}

// Renderer writes books under OutputDir/<job id>/.
type Renderer struct {
	OutputDir string
	Logger    *slog.Logger
}

// Render writes every requested format. Unknown formats are a configuration
// error and nothing is written for them.
func (r *Renderer) Render(ctx context.Context, jobID string, book *contracts.CompileOutput, formats []string) (*contracts.RenderOutput, error) {
	if book == nil {
		return nil, services.Wrap(services.ErrValidation, string(stage.Render), "render", "no compiled book", nil)
	}
	if strings.TrimSpace(r.OutputDir) == "" {
		return nil, services.Wrap(services.ErrConfiguration, string(stage.Render), "render", "output directory not configured", nil)
	}
	if len(formats) == 0 {
		formats = DefaultFormats
	}
	for _, f := range formats {
		if f != FormatMarkdown && f != FormatJSON {
			return nil, services.Wrap(services.ErrConfiguration, string(stage.Render), "render", fmt.Sprintf("unsupported format %q", f), nil)
		}
	}

	dir := filepath.Join(r.OutputDir, textutil.FileToken(jobID))
	base := textutil.FileToken(book.Title)
	out := &contracts.RenderOutput{OutputDir: dir}
	for _, format := range formats {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, ext, err := encode(book, format)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, string(stage.Render), "encode "+format, "could not encode book", err)
		}
		path := filepath.Join(dir, base+ext)
		if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
			return nil, services.Wrap(services.ErrExternalTool, string(stage.Render), "write "+format, "could not write output file", err)
		}
		sum := sha256.Sum256(data)
		out.Files = append(out.Files, contracts.RenderedFile{
			Format:    format,
			Path:      path,
			SizeBytes: int64(len(data)),
			SHA256:    hex.EncodeToString(sum[:]),
		})
		r.logger().Info("rendered book",
			logging.String(logging.FieldEventType, "render_file"),
			logging.String("format", format),
			logging.String("path", path),
			logging.Int("bytes", len(data)),
		)
	}
	return out, nil
}

func encode(book *contracts.CompileOutput, format string) ([]byte, string, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(book, "", "  ")
		if err != nil {
			return nil, "", err
		}
		return append(data, '\n'), ".json", nil
	default:
		data, err := Markdown(book)
		return data, ".md", err
	}
}

// Markdown renders the book as markdown preceded by YAML front matter.
func Markdown(book *contracts.CompileOutput) ([]byte, error) {
	fm := frontMatter{
		Title:            book.Title,
		Speaker:          book.Speaker,
		Date:             book.CompiledAt.UTC().Format("2006-01-02"),
		Chapters:         book.Report.TotalChapters,
		Words:            book.Report.TotalWords,
		VersesReferenced: book.Report.TotalVersesReferenced,
		VerifiedVerses:   book.Report.VerifiedVerseCount,
	}
	for _, ref := range book.SourceReferences {
		if ref.Status == contracts.SourceSucceeded && ref.URL != "" {
			fm.Sources = append(fm.Sources, ref.URL)
		}
	}
	for _, ch := range book.Chapters {
		for _, theme := range ch.Themes {
			fm.Themes = appendUnique(fm.Themes, theme)
		}
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fm); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	buf.WriteString("---\n\n")
	buf.WriteString(strings.TrimLeft(book.FullMarkdown, "\n"))
	if !strings.HasSuffix(book.FullMarkdown, "\n") {
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func (r *Renderer) logger() *slog.Logger {
	if r == nil || r.Logger == nil {
		return logging.NewNop()
	}
	return r.Logger
}
