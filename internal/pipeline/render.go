package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Renderer writes results to files or stdout
type Renderer struct {
	indent bool
	stdout io.Writer
}

// NewRenderer creates a renderer writing indented or compact JSON
func NewRenderer(indent bool) *Renderer {
	return &Renderer{indent: indent, stdout: os.Stdout}
}

// RenderJSON writes v as JSON to path, or to stdout when path is "" or "-"
func (r *Renderer) RenderJSON(v any, path string) error {
	var (
		data []byte
		err  error
	)
	if r.indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	data = append(data, '\n')

	return r.write(data, path)
}

// RenderMarkdown writes already rendered markdown to path, or stdout
func (r *Renderer) RenderMarkdown(markdown, path string) error {
	return r.write([]byte(markdown), path)
}

func (r *Renderer) write(data []byte, path string) error {
	if path == "" || path == "-" {
		if _, err := r.stdout.Write(data); err != nil {
			return fmt.Errorf("write stdout: %w", err)
		}
		return nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
