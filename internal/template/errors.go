package template

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTemplateNotFound means no search root contained the template directory.
	ErrTemplateNotFound = errors.New("template directory not found")
	// ErrTemplateMissing means a required template file is absent from the staged copy.
	ErrTemplateMissing = errors.New("template file missing")
)

// NotFoundError lists every location that was tried.
type NotFoundError struct {
	Name  string
	Tried []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("could not find %q template directory, checked: [%s]", e.Name, strings.Join(e.Tried, ", "))
}

func (e *NotFoundError) Unwrap() error { return ErrTemplateNotFound }

func missing(name string) error {
	return fmt.Errorf("%w: %s not found in dependency directory", ErrTemplateMissing, name)
}
