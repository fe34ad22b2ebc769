package guardrail

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/xeipuuv/gojsonschema"
)

// DefaultSecretPatterns mask credential-looking assignments.
var DefaultSecretPatterns = []string{
	`(?i)password[:=]\s*\S+`,
	`(?i)api[_-]?key[:=]\s*\S+`,
	`(?i)secret[:=]\s*\S+`,
}

// BlockedWords blocks content containing any of words (case-insensitive).
func BlockedWords(words ...string) Filter {
	lower := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			lower = append(lower, strings.ToLower(w))
		}
	}
	return FilterFunc{FilterName: "blocked_words", Fn: func(_ context.Context, in Input) (Decision, error) {
		content := strings.ToLower(in.Content)
		for _, w := range lower {
			if strings.Contains(content, w) {
				return Decision{Action: Block, Reason: fmt.Sprintf("contains blocked word %q", w)}, nil
			}
		}
		return Decision{Action: Allow}, nil
	}}
}

// RegexRedactor replaces every match of patterns with replacement
// ("[REDACTED]" when empty).
func RegexRedactor(replacement string, patterns ...string) (Filter, error) {
	if replacement == "" {
		replacement = "[REDACTED]"
	}
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		compiled[i] = re
	}
	return FilterFunc{FilterName: "regex_redactor", Fn: func(_ context.Context, in Input) (Decision, error) {
		out := in.Content
		hits := 0
		for _, re := range compiled {
			if re.MatchString(out) {
				hits++
				out = re.ReplaceAllString(out, replacement)
			}
		}
		if hits == 0 {
			return Decision{Action: Allow}, nil
		}
		return Decision{Action: Redact, Content: out, Reason: fmt.Sprintf("%d pattern(s) redacted", hits)}, nil
	}}, nil
}

// SecretRedactor is a RegexRedactor over DefaultSecretPatterns.
func SecretRedactor() Filter {
	f, err := RegexRedactor("", DefaultSecretPatterns...)
	if err != nil {
		panic(err)
	}
	return f
}

// MaxLength blocks content longer than n characters.
func MaxLength(n int) Filter {
	return FilterFunc{FilterName: "max_length", Fn: func(_ context.Context, in Input) (Decision, error) {
		if l := utf8.RuneCountInString(in.Content); l > n {
			return Decision{Action: Block, Reason: fmt.Sprintf("length %d exceeds maximum %d", l, n)}, nil
		}
		return Decision{Action: Allow}, nil
	}}
}

// ToolAllowlist blocks tool calls to tools not in names. It allows content at
// every other stage.
func ToolAllowlist(names ...string) Filter {
	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		allowed[n] = true
	}
	return FilterFunc{FilterName: "tool_allowlist", Fn: func(_ context.Context, in Input) (Decision, error) {
		if in.Stage != StageToolCall || allowed[in.ToolName] {
			return Decision{Action: Allow}, nil
		}
		return Decision{Action: Block, Reason: fmt.Sprintf("tool %s is not in allowlist", in.ToolName)}, nil
	}}
}

// JSONSchema blocks content that is not a JSON document valid against schema.
// The schema is compiled once.
func JSONSchema(schema []byte) (Filter, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("invalid json schema: %w", err)
	}
	return FilterFunc{FilterName: "json_schema", Fn: func(_ context.Context, in Input) (Decision, error) {
		if !json.Valid([]byte(in.Content)) {
			return Decision{Action: Block, Reason: "content is not valid JSON"}, nil
		}
		result, err := compiled.Validate(gojsonschema.NewStringLoader(in.Content))
		if err != nil {
			return Decision{}, fmt.Errorf("schema validation failed: %w", err)
		}
		if result.Valid() {
			return Decision{Action: Allow}, nil
		}
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return Decision{Action: Block, Reason: "schema validation errors: " + strings.Join(msgs, "; ")}, nil
	}}, nil
}
