package rule

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/teranos/mend/errors"
	"github.com/teranos/mend/types"
)

// Rule types accepted in definitions.
const (
	TypeFD    = "fd"
	TypeCFD   = "cfd"
	TypeCheck = "check"
)

// Definition is the declarative form of a rule.
//
//	fd:    "zipcode, state | city"
//	cfd:   "zipcode=60611 | city=Chicago"
//	check: "beds >= 0"
type Definition struct {
	ID    string `toml:"id" yaml:"id"`
	Type  string `toml:"type" yaml:"type"`
	Table string `toml:"table" yaml:"table"`
	Expr  string `toml:"expr" yaml:"expr"`
}

// File is the layout of a rule file. TOML uses [[rule]] tables, YAML a rules list.
type File struct {
	Rules []Definition `toml:"rule" yaml:"rules"`
}

var checkPattern = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\s*(<=|>=|!=|<>|==|=|<|>)\s*(.+?)\s*$`)

// Parse builds the concrete rule for def.
func Parse(def Definition) (Rule, error) {
	if err := types.ValidIdentifier("table", def.Table); err != nil {
		return nil, errors.Wrapf(err, "rule %s", def.ID)
	}
	switch strings.ToLower(strings.TrimSpace(def.Type)) {
	case TypeFD:
		lhs, rhs, err := splitSides(def)
		if err != nil {
			return nil, err
		}
		return NewFD(def.ID, def.Table, attributeList(lhs), attributeList(rhs))

	case TypeCFD:
		lhs, rhs, err := splitSides(def)
		if err != nil {
			return nil, err
		}
		conditions, err := bindingList(def, lhs)
		if err != nil {
			return nil, err
		}
		targets, err := bindingList(def, rhs)
		if err != nil {
			return nil, err
		}
		if len(targets) != 1 {
			return nil, errors.NewInvalidInputError("rule %s: cfd needs exactly one right-hand binding", def.ID)
		}
		return NewCFD(def.ID, def.Table, conditions, targets[0])

	case TypeCheck:
		m := checkPattern.FindStringSubmatch(def.Expr)
		if m == nil {
			return nil, errors.NewInvalidInputError("rule %s: malformed check %q", def.ID, def.Expr)
		}
		op, err := types.ParseOperation(m[2])
		if err != nil {
			return nil, errors.Wrapf(err, "rule %s", def.ID)
		}
		return NewCheck(def.ID, def.Table, m[1], op, unquote(m[3]))

	default:
		return nil, errors.WithHint(
			errors.NewInvalidInputError("rule %s: unknown type %q", def.ID, def.Type),
			"supported rule types are fd, cfd and check")
	}
}

func splitSides(def Definition) (string, string, error) {
	parts := strings.Split(def.Expr, "|")
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		return "", "", errors.NewInvalidInputError("rule %s: expected \"lhs | rhs\", got %q", def.ID, def.Expr)
	}
	return parts[0], parts[1], nil
}

func attributeList(side string) []string {
	var attrs []string
	for _, a := range strings.Split(side, ",") {
		if a = strings.TrimSpace(a); a != "" {
			attrs = append(attrs, a)
		}
	}
	return attrs
}

func bindingList(def Definition, side string) ([]Binding, error) {
	var bindings []Binding
	for _, part := range strings.Split(side, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		attr, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, errors.NewInvalidInputError("rule %s: expected attribute=value, got %q", def.ID, part)
		}
		bindings = append(bindings, Binding{Attribute: strings.TrimSpace(attr), Value: unquote(strings.TrimSpace(value))})
	}
	return bindings, nil
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// ParseAll builds every definition, rejecting duplicate ids.
func ParseAll(defs []Definition) ([]Rule, error) {
	seen := make(map[string]struct{}, len(defs))
	rules := make([]Rule, 0, len(defs))
	for _, def := range defs {
		if _, dup := seen[def.ID]; dup {
			return nil, errors.NewInvalidInputError("duplicate rule id %q", def.ID)
		}
		seen[def.ID] = struct{}{}
		r, err := Parse(def)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// LoadFile reads rule definitions from a .toml, .yaml or .yml file.
func LoadFile(path string) ([]Rule, error) {
	var file File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, &file); err != nil {
			return nil, errors.Wrapf(err, "failed to parse rule file %s", path)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read rule file %s", path)
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, errors.Wrapf(err, "failed to parse rule file %s", path)
		}
	default:
		return nil, errors.WithHint(
			errors.NewInvalidInputError("unsupported rule file %s", path),
			"use a .toml or .yaml rule file")
	}

	if len(file.Rules) == 0 {
		return nil, errors.NewInvalidInputError("rule file %s defines no rules", path)
	}
	rules, err := ParseAll(file.Rules)
	if err != nil {
		return nil, errors.WithDetailf(err, "rule file %s", path)
	}
	return rules, nil
}
