package module

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/promptloop/promptloop/chat"
	"github.com/promptloop/promptloop/eval"
)

// Definition is the on-disk shape of a module: a task with typed input and
// output fields, loaded from *.module.yaml files.
type Definition struct {
	Name    string      `yaml:"name"`
	Task    string      `yaml:"task"`
	Details string      `yaml:"details"`
	Inputs  []FieldSpec `yaml:"inputs"`
	Outputs []FieldSpec `yaml:"outputs"`
}

// FieldSpec declares one field and its attached evaluations.
type FieldSpec struct {
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	Evaluations []EvaluationSpec `yaml:"evaluations"`
	Inputs      []FieldSpec      `yaml:"inputs"`
}

// EvaluationSpec declares one evaluation by type tag. Value carries the
// type-specific payload: a count for max_chars and no_long_words, a term
// list for the contains checks, a field name for the _field variants, and
// the requirement text for llm.
type EvaluationSpec struct {
	Type   string `yaml:"type"`
	Value  any    `yaml:"value"`
	Label  string `yaml:"label"`
	UseCoT bool   `yaml:"use_cot"`
}

// Load parses a definition file.
func Load(path string) (*Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading module definition: %w", err)
	}
	var def Definition
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("parsing module definition %s: %w", path, err)
	}
	return &def, nil
}

// Discover returns every *.module.yaml path under root, sorted.
func Discover(root string) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(root), "**/*.module.yaml")
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	paths := make([]string, len(matches))
	for i, m := range matches {
		paths[i] = filepath.Join(root, filepath.FromSlash(m))
	}
	sort.Strings(paths)
	return paths, nil
}

// LoadAll loads every definition Discover finds under root.
func LoadAll(root string) ([]*Definition, error) {
	paths, err := Discover(root)
	if err != nil {
		return nil, err
	}
	defs := make([]*Definition, 0, len(paths))
	for _, path := range paths {
		def, err := Load(path)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Build materializes the definition into a Module over the given chat
// configuration. LLM-backed evaluations run their grader over the same
// configuration.
func (d *Definition) Build(chatCfg chat.Config) (*Module, error) {
	inputs, err := buildFields(d.Inputs, chatCfg)
	if err != nil {
		return nil, err
	}
	outputs, err := buildFields(d.Outputs, chatCfg)
	if err != nil {
		return nil, err
	}
	return New(Config{
		Chat:    chatCfg,
		Task:    d.Task,
		Details: d.Details,
		Inputs:  inputs,
		Outputs: outputs,
	})
}

func buildFields(specs []FieldSpec, chatCfg chat.Config) ([]Field, error) {
	fields := make([]Field, 0, len(specs))
	for _, spec := range specs {
		f, err := spec.build(chatCfg)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func (s FieldSpec) build(chatCfg chat.Config) (Field, error) {
	inputs, err := buildFields(s.Inputs, chatCfg)
	if err != nil {
		return Field{}, err
	}
	f := Field{Name: s.Name, Description: s.Description, Inputs: inputs}
	for _, es := range s.Evaluations {
		evl, err := buildEvaluation(f, es, chatCfg)
		if err != nil {
			return Field{}, fmt.Errorf("field %s: %w", s.Name, err)
		}
		f.Evaluations = append(f.Evaluations, evl)
	}
	return f, nil
}

func buildEvaluation(target Field, spec EvaluationSpec, chatCfg chat.Config) (eval.Evaluation, error) {
	switch spec.Type {
	case "max_chars":
		n, err := intValue(spec.Value)
		if err != nil {
			return nil, fmt.Errorf("max_chars: %w", err)
		}
		return eval.MaxLength{Field: target.Name, Max: n, Req: spec.Label}, nil
	case "no_square_brackets":
		return eval.NoBracketPlaceholders{Field: target.Name, Req: spec.Label}, nil
	case "no_slashes":
		return eval.NoSlashConstructs{Field: target.Name, Req: spec.Label}, nil
	case "not_contains":
		return eval.BlockedTerms{Field: target.Name, Terms: stringList(spec.Value), Req: spec.Label}, nil
	case "not_contains_field":
		return eval.BlockedTerms{Field: target.Name, TermsField: stringValue(spec.Value), Req: spec.Label}, nil
	case "not_in_blocked_list":
		return eval.NotInBlockedList{Field: target.Name, List: stringList(spec.Value), Req: spec.Label}, nil
	case "not_in_blocked_list_field":
		return eval.NotInBlockedList{Field: target.Name, ListField: stringValue(spec.Value), Req: spec.Label}, nil
	case "no_long_words":
		n, err := intValue(spec.Value)
		if err != nil {
			return nil, fmt.Errorf("no_long_words: %w", err)
		}
		return eval.NoLongWords{Field: target.Name, Max: n, Req: spec.Label}, nil
	case "llm":
		requirement := spec.Label
		if requirement == "" {
			requirement = stringValue(spec.Value)
		}
		return NewLLMEvaluation(target, requirement, spec.UseCoT, chatCfg)
	default:
		return nil, fmt.Errorf("unknown evaluation type %q", spec.Type)
	}
}

func intValue(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{list}
	default:
		return nil
	}
}
