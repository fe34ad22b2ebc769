package util

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"text/template/parse"
)

// RenderTemplate replaces template variables in instruction text with session
// context variables. Missing keys render as empty strings.
func RenderTemplate(text string, vars map[string]any) (string, error) {
	if !strings.Contains(text, "{{") { // fast path: no template markers
		return text, nil
	}

	tmpl, err := template.New("instructions").Option("missingkey=zero").Funcs(template.FuncMap{
		"default": func(defaultVal any, val any) any {
			if val == nil || val == "" {
				return defaultVal
			}
			return val
		},
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"join": func(sep string, items []any) string {
			strItems := make([]string, len(items))
			for i, item := range items {
				strItems[i] = fmt.Sprintf("%v", item)
			}
			return strings.Join(strItems, sep)
		},
	}).Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse instructions: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, withMissingKeys(tmpl.Root, vars)); err != nil {
		return "", fmt.Errorf("render instructions: %w", err)
	}

	return buf.String(), nil
}

// withMissingKeys returns a copy of vars in which every top-level key the
// template prints is present, unset or nil ones as "". Keys ranged over stay
// absent since range over nil renders nothing and range over "" fails.
func withMissingKeys(root *parse.ListNode, vars map[string]any) map[string]any {
	c := keyCollector{keys: map[string]bool{}}
	c.walk(root, false)

	data := make(map[string]any, len(vars)+len(c.keys))
	for k, ranged := range c.keys {
		if !ranged {
			data[k] = ""
		}
	}
	for k, v := range vars {
		if v != nil || c.keys[k] {
			data[k] = v
		}
	}
	return data
}

// keyCollector records the top-level keys referenced as {{ .key }}; the value
// is true once a key has been used as a range pipeline.
type keyCollector struct {
	keys map[string]bool
}

func (c keyCollector) walk(node parse.Node, ranged bool) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, child := range n.Nodes {
			c.walk(child, false)
		}
	case *parse.ActionNode:
		c.walk(n.Pipe, false)
	case *parse.PipeNode:
		if n == nil {
			return
		}
		for _, cmd := range n.Cmds {
			c.walk(cmd, ranged && len(n.Cmds) == 1)
		}
	case *parse.CommandNode:
		for _, arg := range n.Args {
			c.walk(arg, ranged && len(n.Args) == 1)
		}
	case *parse.FieldNode:
		// nested paths like .user.name are left alone; "" has no fields
		if len(n.Ident) == 1 {
			c.keys[n.Ident[0]] = c.keys[n.Ident[0]] || ranged
		}
	case *parse.IfNode:
		c.branch(&n.BranchNode, false)
	case *parse.RangeNode:
		c.branch(&n.BranchNode, true)
	case *parse.WithNode:
		c.branch(&n.BranchNode, false)
	case *parse.TemplateNode:
		c.walk(n.Pipe, false)
	}
}

func (c keyCollector) branch(b *parse.BranchNode, ranged bool) {
	c.walk(b.Pipe, ranged)
	c.walk(b.List, false)
	c.walk(b.ElseList, false)
}
