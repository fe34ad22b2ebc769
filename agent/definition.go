package agent

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/raaf/core"
	"github.com/hupe1980/raaf/guardrail"
	"github.com/hupe1980/raaf/tool"
)

// Definition is the YAML form of an agent.
//
//	name: triage
//	instructions: |
//	  You route {{ .user_name }} to the right specialist.
//	model: gpt-4o-mini
//	temperature: 0.2
//	tools: [context_vars]
//	handoffs: [billing]
//	guardrails:
//	  input:
//	    - type: max_length
//	      max: 4000
//	  output:
//	    - type: secret_redactor
type Definition struct {
	Name            string               `yaml:"name"`
	Description     string               `yaml:"description,omitempty"`
	Instructions    string               `yaml:"instructions"`
	Model           string               `yaml:"model,omitempty"`
	Temperature     *float64             `yaml:"temperature,omitempty"`
	MaxOutputTokens int                  `yaml:"max_output_tokens,omitempty"`
	Tools           []string             `yaml:"tools,omitempty"`
	Handoffs        []string             `yaml:"handoffs,omitempty"`
	Guardrails      GuardrailsDefinition `yaml:"guardrails,omitempty"`
}

// GuardrailsDefinition lists the filters of an agent's chains.
type GuardrailsDefinition struct {
	Input    []FilterDefinition `yaml:"input,omitempty"`
	Output   []FilterDefinition `yaml:"output,omitempty"`
	Parallel bool               `yaml:"parallel,omitempty"`
}

// FilterDefinition configures one guardrail filter. Type is one of
// blocked_words, regex_redactor, secret_redactor, max_length, json_schema.
type FilterDefinition struct {
	Type        string   `yaml:"type"`
	Words       []string `yaml:"words,omitempty"`
	Patterns    []string `yaml:"patterns,omitempty"`
	Replacement string   `yaml:"replacement,omitempty"`
	Max         int      `yaml:"max,omitempty"`
	Schema      string   `yaml:"schema,omitempty"`
}

type definitionFile struct {
	Agents []Definition `yaml:"agents"`
}

// Catalog maps tool names referenced by definitions to tool instances.
type Catalog map[string]tool.Tool

// DefaultCatalog returns the built-in tools available to definitions.
func DefaultCatalog() Catalog {
	return Catalog{
		tool.ContextVarsName: tool.NewContextVarsTool(),
		tool.FetchPageName:   tool.NewFetchPageTool(),
	}
}

// Add registers t under its name and returns the catalog.
func (c Catalog) Add(tools ...tool.Tool) Catalog {
	for _, t := range tools {
		c[t.Name()] = t
	}
	return c
}

// ParseDefinitions decodes either a single agent document or a document with
// a top-level agents list. Unknown keys are rejected.
func ParseDefinitions(r io.Reader) ([]Definition, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var file definitionFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err == nil && len(file.Agents) > 0 {
		return file.Agents, nil
	}

	var defs []Definition
	dec = yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	for {
		var d Definition
		err := dec.Decode(&d)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: agent definition: %w", core.ErrInvalidArgument, err)
		}
		defs = append(defs, d)
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: no agent definitions found", core.ErrInvalidArgument)
	}
	return defs, nil
}

// LoadDefinitions reads definitions from a YAML file or from every *.yaml /
// *.yml file of a directory (in lexical order).
func LoadDefinitions(path string) ([]Definition, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	files := []string{path}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		files = files[:0]
		for _, e := range entries {
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
				files = append(files, filepath.Join(path, e.Name()))
			}
		}
		sort.Strings(files)
	}

	var defs []Definition
	for _, f := range files {
		fh, err := os.Open(f)
		if err != nil {
			return nil, err
		}
		d, err := ParseDefinitions(fh)
		_ = fh.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		defs = append(defs, d...)
	}
	return defs, nil
}

// Build turns definitions into Specs, resolving tool names through catalog
// and hand-offs by agent name. Hand-off cycles (triage <-> specialist) are
// allowed. The result keeps definition order.
func Build(defs []Definition, catalog Catalog) ([]*Spec, error) {
	specs := make([]*Spec, len(defs))
	byName := make(map[string]*Spec, len(defs))

	for i, d := range defs {
		if _, dup := byName[d.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate agent name %q", core.ErrInvalidArgument, d.Name)
		}
		opts, err := d.options(catalog)
		if err != nil {
			return nil, err
		}
		s, err := newSpec(d.Name, opts)
		if err != nil {
			return nil, err
		}
		specs[i] = s
		byName[d.Name] = s
	}

	for i, d := range defs {
		targets := make([]*Spec, 0, len(d.Handoffs))
		for _, h := range d.Handoffs {
			t, ok := byName[h]
			if !ok {
				return nil, fmt.Errorf("%w: agent %s: unknown hand-off target %q", core.ErrInvalidArgument, d.Name, h)
			}
			targets = append(targets, t)
		}
		if err := specs[i].setHandoffs(targets); err != nil {
			return nil, err
		}
	}
	for _, s := range specs {
		s.tools.Freeze()
	}
	return specs, nil
}

func (d Definition) options(catalog Catalog) (Options, error) {
	opts := Options{
		Description:     d.Description,
		Model:           d.Model,
		Temperature:     d.Temperature,
		MaxOutputTokens: d.MaxOutputTokens,
	}
	if strings.TrimSpace(d.Instructions) != "" {
		opts.Instruction = NewInstructionFromText(d.Instructions)
	} else {
		opts.Instruction = NewInstructionFromText(fmt.Sprintf("You are %s, a helpful AI assistant.", d.Name))
	}
	for _, name := range d.Tools {
		t, ok := catalog[name]
		if !ok {
			return Options{}, fmt.Errorf("%w: agent %s: unknown tool %q", core.ErrInvalidArgument, d.Name, name)
		}
		opts.Tools = append(opts.Tools, t)
	}

	var err error
	if opts.InputGuardrails, err = buildChain(d.Name, d.Guardrails.Input, d.Guardrails.Parallel); err != nil {
		return Options{}, err
	}
	if opts.OutputGuardrails, err = buildChain(d.Name, d.Guardrails.Output, d.Guardrails.Parallel); err != nil {
		return Options{}, err
	}
	return opts, nil
}

func buildChain(agentName string, defs []FilterDefinition, parallel bool) (*guardrail.Chain, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	filters := make([]guardrail.Filter, 0, len(defs))
	for _, fd := range defs {
		f, err := fd.build()
		if err != nil {
			return nil, fmt.Errorf("%w: agent %s: guardrail %s: %w", core.ErrInvalidArgument, agentName, fd.Type, err)
		}
		filters = append(filters, f)
	}
	return guardrail.NewChain(filters, func(o *guardrail.ChainOptions) { o.Parallel = parallel }), nil
}

func (fd FilterDefinition) build() (guardrail.Filter, error) {
	switch fd.Type {
	case "blocked_words":
		if len(fd.Words) == 0 {
			return nil, errors.New("words required")
		}
		return guardrail.BlockedWords(fd.Words...), nil
	case "regex_redactor":
		if len(fd.Patterns) == 0 {
			return nil, errors.New("patterns required")
		}
		return guardrail.RegexRedactor(fd.Replacement, fd.Patterns...)
	case "secret_redactor":
		return guardrail.SecretRedactor(), nil
	case "max_length":
		if fd.Max <= 0 {
			return nil, errors.New("max must be > 0")
		}
		return guardrail.MaxLength(fd.Max), nil
	case "json_schema":
		return guardrail.JSONSchema([]byte(fd.Schema))
	}
	return nil, fmt.Errorf("unknown filter type %q", fd.Type)
}
