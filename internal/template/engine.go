package template

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// File names inside the template directory.
const (
	ScriptTemplate   = "CopyFilesToVM.template.ps1"
	ScriptRendered   = "CopyFilesToVM.ps1"
	UnattendTemplate = "autounattend.template.xml"
	UnattendRendered = "autounattend.xml"
	UpdateScript     = "Update-VMConfig.ps1"
)

// DefaultTemplateDir is the dependency directory shipped with the
// provisioning scripts.
const DefaultTemplateDir = "easy-gpu-pv"

// DefaultSearchRoots are tried in order, relative to the working directory.
var DefaultSearchRoots = []string{".", "templates", "share/vmpilot"}

// DefaultStagingRoot returns <tmp>/HyperV_GPU_Provisioning.
func DefaultStagingRoot() string {
	return filepath.Join(os.TempDir(), "HyperV_GPU_Provisioning")
}

// Engine stages template directories into per-job working copies and renders
// the scripts inside them.
type Engine struct {
	SearchRoots []string
	StagingRoot string
}

func NewEngine(searchRoots []string, stagingRoot string) *Engine {
	if len(searchRoots) == 0 {
		searchRoots = DefaultSearchRoots
	}
	if stagingRoot == "" {
		stagingRoot = DefaultStagingRoot()
	}
	return &Engine{SearchRoots: searchRoots, StagingRoot: stagingRoot}
}

// Resolve returns the first search root that contains templateDir.
func (e *Engine) Resolve(templateDir string) (string, error) {
	tried := make([]string, 0, len(e.SearchRoots))
	for _, root := range e.SearchRoots {
		p := filepath.Join(root, templateDir)
		tried = append(tried, p)
		if fi, err := os.Stat(p); err == nil && fi.IsDir() {
			return p, nil
		}
	}
	return "", &NotFoundError{Name: templateDir, Tried: tried}
}

// Locate returns the path of file inside the resolved template directory.
func (e *Engine) Locate(templateDir, file string) (string, error) {
	dir, err := e.Resolve(templateDir)
	if err != nil {
		return "", err
	}
	p := filepath.Join(dir, file)
	if _, err := os.Stat(p); err != nil {
		return "", missing(file)
	}
	return p, nil
}

// WorkDir returns the staging directory of jobName.
func (e *Engine) WorkDir(jobName string) string {
	return filepath.Join(e.StagingRoot, jobName)
}

// Stage replaces <StagingRoot>/<jobName> with a fresh copy of templateDir.
// A copy failure aborts staging and leaves the partial directory behind.
func (e *Engine) Stage(templateDir, jobName string) (string, error) {
	if err := checkJobName(jobName); err != nil {
		return "", err
	}
	src, err := e.Resolve(templateDir)
	if err != nil {
		return "", err
	}
	dst := e.WorkDir(jobName)
	if err := os.RemoveAll(dst); err != nil {
		return "", fmt.Errorf("failed to clean staging dir %s: %w", dst, err)
	}
	if err := os.MkdirAll(dst, 0o750); err != nil {
		return "", fmt.Errorf("failed to create staging dir %s: %w", dst, err)
	}
	if err := copyTree(src, dst); err != nil {
		return dst, fmt.Errorf("failed to copy dependencies: %w", err)
	}
	slog.Debug("staged template", "src", src, "dst", dst)
	return dst, nil
}

// Render writes CopyFilesToVM.ps1 from its template with p substituted and
// the headless patches applied.
func (e *Engine) Render(workDir string, p Placeholders) (string, error) {
	return renderFile(workDir, ScriptTemplate, ScriptRendered, func(s string) string {
		return PatchForHeadless(p.Apply(s))
	})
}

// RenderUnattend writes autounattend.xml. Only the account tokens apply there.
func (e *Engine) RenderUnattend(workDir string, p Placeholders) (string, error) {
	sub := p.Only(TokenUsername, TokenPassword)
	return renderFile(workDir, UnattendTemplate, UnattendRendered, sub.Apply)
}

func renderFile(workDir, from, to string, transform func(string) string) (string, error) {
	src := filepath.Join(workDir, from)
	b, err := os.ReadFile(src) // #nosec G304
	if err != nil {
		if os.IsNotExist(err) {
			return "", missing(from)
		}
		return "", fmt.Errorf("failed to read %s: %w", from, err)
	}
	dst := filepath.Join(workDir, to)
	if err := os.WriteFile(dst, []byte(transform(string(b))), 0o600); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", to, err)
	}
	return dst, nil
}

func checkJobName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("invalid job name %q", name)
	}
	return nil
}
