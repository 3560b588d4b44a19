package render_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"lecturebook/internal/contracts"
	"lecturebook/internal/render"
	"lecturebook/internal/services"
	"lecturebook/internal/testsupport"
)

func TestRenderWritesDefaultFormats(t *testing.T) {
	dir := t.TempDir()
	r := &render.Renderer{OutputDir: dir}
	book := testsupport.CompileFixture()

	out, err := r.Render(context.Background(), "job-1", book, nil)
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if err := out.Validate(); err != nil {
		t.Fatalf("render output invalid: %v", err)
	}
	if len(out.Files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(out.Files))
	}
	if want := filepath.Join(dir, "job-1", "collected_lectures.md"); out.Primary() != want {
		t.Fatalf("primary = %s, want %s", out.Primary(), want)
	}
	for _, f := range out.Files {
		info, err := os.Stat(f.Path)
		if err != nil {
			t.Fatalf("stat %s: %v", f.Path, err)
		}
		if info.Size() != f.SizeBytes || len(f.SHA256) != 64 {
			t.Fatalf("file metadata mismatch for %+v", f)
		}
	}

	raw, err := os.ReadFile(out.Files[1].Path)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := contracts.Decode(book.Stage(), raw)
	if err != nil {
		t.Fatalf("json rendition does not decode as a compile payload: %v", err)
	}
	if decoded.(*contracts.CompileOutput).Title != book.Title {
		t.Fatalf("unexpected decoded title")
	}
}

func TestMarkdownFrontMatter(t *testing.T) {
	book := testsupport.CompileFixture()
	book.Speaker = "Guest"
	data, err := render.Markdown(book)
	if err != nil {
		t.Fatalf("Markdown returned error: %v", err)
	}
	text := string(data)
	if !strings.HasPrefix(text, "---\n") {
		t.Fatalf("missing front matter: %q", text)
	}
	parts := strings.SplitN(text, "---\n", 3)
	if len(parts) != 3 {
		t.Fatalf("front matter not terminated: %q", text)
	}
	var fm map[string]any
	if err := yaml.Unmarshal([]byte(parts[1]), &fm); err != nil {
		t.Fatalf("front matter is not yaml: %v", err)
	}
	if fm["title"] != "Collected Lectures" || fm["speaker"] != "Guest" || fm["date"] != "2025-03-14" || fm["chapters"] != 1 {
		t.Fatalf("unexpected front matter %v", fm)
	}
	if !strings.HasSuffix(text, "BG 2.47 teaches action.\n") {
		t.Fatalf("body not appended: %q", text)
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	r := &render.Renderer{OutputDir: t.TempDir()}
	a, err := r.Render(context.Background(), "job", testsupport.CompileFixture(), []string{render.FormatMarkdown})
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Render(context.Background(), "job", testsupport.CompileFixture(), []string{render.FormatMarkdown})
	if err != nil {
		t.Fatal(err)
	}
	if a.Files[0].SHA256 != b.Files[0].SHA256 {
		t.Fatal("rendering the same book twice produced different bytes")
	}
}

func TestRenderRejectsUnknownFormat(t *testing.T) {
	r := &render.Renderer{OutputDir: t.TempDir()}
	_, err := r.Render(context.Background(), "job", testsupport.CompileFixture(), []string{"pdf"})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
