package reconcile

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var promptsYAML []byte

type decidePrompts struct {
	System      string `yaml:"system"`
	DocumentA   string `yaml:"document_a"`
	DocumentB   string `yaml:"document_b"`
	NoToolCall  string `yaml:"no_tool_call"`
	UnknownTool string `yaml:"unknown_tool"`
}

type generatePrompts struct {
	System    string `yaml:"system"`
	DocumentA string `yaml:"document_a"`
	DocumentB string `yaml:"document_b"`
}

type Prompts struct {
	Decide   decidePrompts     `yaml:"decide"`
	Generate generatePrompts   `yaml:"generate"`
	Tools    map[string]string `yaml:"tools"`
}

var (
	promptsOnce   sync.Once
	loadedPrompts Prompts
	promptsErr    error
)

// LoadPrompts parses the embedded prompt templates once.
func LoadPrompts() (Prompts, error) {
	promptsOnce.Do(func() {
		loadedPrompts, promptsErr = parsePrompts(promptsYAML)
	})
	return loadedPrompts, promptsErr
}

func parsePrompts(raw []byte) (Prompts, error) {
	var p Prompts
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Prompts{}, fmt.Errorf("parse prompts: %w", err)
	}
	required := map[string]string{
		"decide.system":       p.Decide.System,
		"decide.document_a":   p.Decide.DocumentA,
		"decide.document_b":   p.Decide.DocumentB,
		"decide.no_tool_call": p.Decide.NoToolCall,
		"decide.unknown_tool": p.Decide.UnknownTool,
		"generate.system":     p.Generate.System,
		"generate.document_a": p.Generate.DocumentA,
		"generate.document_b": p.Generate.DocumentB,
		"tools.answer_yes":    p.Tools[ToolAnswerYes],
		"tools.answer_no":     p.Tools[ToolAnswerNo],
	}
	for key, v := range required {
		if strings.TrimSpace(v) == "" {
			return Prompts{}, fmt.Errorf("parse prompts: %s is empty", key)
		}
	}
	return p, nil
}

// fill substitutes {{key}} placeholders in a single pass, so values that
// contain placeholder syntax are left alone.
func fill(tmpl string, kv ...string) string {
	pairs := make([]string, 0, len(kv))
	for i := 0; i+1 < len(kv); i += 2 {
		pairs = append(pairs, "{{"+kv[i]+"}}", kv[i+1])
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
