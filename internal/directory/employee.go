// Package directory loads the roster of AI employees and caches it for the
// lifetime of its owner.
package directory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Employee is a persona: a named LLM configuration with capability tags.
type Employee struct {
	Name         string   `yaml:"name" json:"name" validate:"required"`
	Role         string   `yaml:"role,omitempty" json:"role,omitempty"`
	Description  string   `yaml:"description" json:"description" validate:"required"`
	Category     string   `yaml:"category,omitempty" json:"category,omitempty"`
	Skills       []string `yaml:"skills,omitempty" json:"skills,omitempty"`
	Tools        []string `yaml:"tools" json:"tools"`
	Model        string   `yaml:"model" json:"model" validate:"required"`
	Provider     string   `yaml:"provider,omitempty" json:"provider,omitempty" validate:"omitempty,oneof=anthropic openai google perplexity ollama"`
	SystemPrompt string   `yaml:"system_prompt" json:"system_prompt" validate:"required"`
	Expertise    []string `yaml:"expertise,omitempty" json:"expertise,omitempty"`
}

var ErrInvalidEmployee = errors.New("invalid employee record")

var validate = validator.New()

// Validate reports missing required fields.
func (e *Employee) Validate() error {
	if err := validate.Struct(e); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			name := e.Name
			if name == "" {
				name = "<unnamed>"
			}
			return fmt.Errorf("%w %s: %s", ErrInvalidEmployee, name, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidEmployee, err)
	}
	return nil
}
