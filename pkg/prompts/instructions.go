// Package prompts loads and renders the agent system instructions.
package prompts

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolagent", "prompts")

// DefaultInstructionsFile is the file name used when none is configured.
const DefaultInstructionsFile = "instructions.md"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// LoadInstructions returns the content of the instructions file.
// A read failure does not fail the caller, the returned text describes the error instead.
func LoadInstructions(path string) string {
	if path == "" {
		path = DefaultInstructionsFile
	}
	b, err := os.ReadFile(path)
	if err != nil {
		logger.KV(xlog.WARNING,
			"reason", "load_instructions",
			"file", path,
			"err", err.Error())
		return fmt.Sprintf("<unable to load %s: %s>", filepath.Base(path), err.Error())
	}
	return string(bytes.TrimPrefix(b, utf8BOM))
}

// Data is available to the instructions template.
type Data struct {
	AgentName   string
	Description string
	ThreadID    string
	Now         time.Time
	Tools       []string
}

// SystemPrompt renders instructions as a text/template with sprig functions.
// A prompt created with NewFileSystemPrompt re-reads its file on every Render.
type SystemPrompt struct {
	name string
	path string

	lock sync.Mutex
	text string
	tmpl *template.Template
}

// NewSystemPrompt parses the instructions.
// Text without template actions is returned as is by Render.
func NewSystemPrompt(name, text string) (*SystemPrompt, error) {
	sp := &SystemPrompt{text: text}
	if !strings.Contains(text, "{{") {
		return sp, nil
	}
	tmpl, err := template.New(name).
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=zero").
		Parse(text)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse instructions template %q", name)
	}
	sp.tmpl = tmpl
	return sp, nil
}

// NewFileSystemPrompt loads the instructions file and parses it.
// Later edits of the file are picked up by Render.
// An edit that does not parse is rendered as raw text.
func NewFileSystemPrompt(path string) (*SystemPrompt, error) {
	if path == "" {
		path = DefaultInstructionsFile
	}
	name := filepath.Base(path)
	sp, err := NewSystemPrompt(name, LoadInstructions(path))
	if err != nil {
		return nil, err
	}
	sp.name = name
	sp.path = path
	return sp, nil
}

// MustSystemPrompt is NewSystemPrompt that falls back to the raw text
// when the template does not parse.
func MustSystemPrompt(name, text string) *SystemPrompt {
	sp, err := NewSystemPrompt(name, text)
	if err != nil {
		logger.KV(xlog.ERROR, "reason", "parse_instructions", "err", err.Error())
		return &SystemPrompt{text: text}
	}
	return sp
}

// Text returns the instructions as last loaded.
func (p *SystemPrompt) Text() string {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.text
}

func (p *SystemPrompt) current() (string, *template.Template) {
	if p.path == "" {
		return p.text, p.tmpl
	}

	text := LoadInstructions(p.path)
	p.lock.Lock()
	defer p.lock.Unlock()
	if text != p.text {
		reloaded := MustSystemPrompt(p.name, text)
		p.text = text
		p.tmpl = reloaded.tmpl
		logger.KV(xlog.DEBUG, "status", "instructions_reloaded", "file", p.path)
	}
	return p.text, p.tmpl
}

// Render returns the system prompt for the data.
func (p *SystemPrompt) Render(data Data) (string, error) {
	text, tmpl := p.current()
	if tmpl == nil {
		return text, nil
	}
	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", errors.Wrap(err, "failed to render instructions")
	}
	return buf.String(), nil
}
