// Package config implements the override-script DSL of spec.md §6's
// command surface: set-option, select-root-action, prototype-override-at,
// and flow-override-at directives, one per line. Grounded on
// grammar/parser.go's participle.Build-plus-caret-error idiom
// (grammar.ParseFile, reportParseError), replacing the Kanso
// expression/statement grammar with this small directive language.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/fatih/color"
	"github.com/pkg/errors"
)

// Option is a resolved set-option directive's value.
type Option struct {
	Name    string
	Bool    *bool
	Str     *string
}

// Directive kinds after resolution, consumed by the wiring code that
// applies overrides against the action database and driver.
type ResolvedDirective struct {
	SetOption   *Option
	SelectRoot  string
	Prototype   *PrototypeOverride
	Flow        *FlowOverride
}

type PrototypeOverride struct {
	Address   uint64
	Prototype string
}

type FlowOverride struct {
	Address uint64
	Kind    string
	Target  uint64
}

// ParseScript parses source (the override-script document text) into
// resolved directives, in file order.
func ParseScript(name, source string) ([]ResolvedDirective, error) {
	parser, err := participle.Build[Script](
		participle.Lexer(DirectiveLexer),
		participle.Elide("Whitespace", "Newline", "Comment"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "config: building override-script parser")
	}
	script, err := parser.ParseString(name, source)
	if err != nil {
		reportParseError(source, err)
		return nil, errors.Wrap(err, "config: parsing override script")
	}

	out := make([]ResolvedDirective, 0, len(script.Directives))
	for _, d := range script.Directives {
		rd, err := resolve(d)
		if err != nil {
			return nil, err
		}
		out = append(out, rd)
	}
	return out, nil
}

func resolve(d *Directive) (ResolvedDirective, error) {
	switch {
	case d.SetOption != nil:
		opt, err := resolveOption(d.SetOption)
		if err != nil {
			return ResolvedDirective{}, err
		}
		return ResolvedDirective{SetOption: opt}, nil
	case d.SelectRoot != nil:
		return ResolvedDirective{SelectRoot: d.SelectRoot.Name}, nil
	case d.PrototypeAt != nil:
		addr, err := parseAddress(d.PrototypeAt.Address)
		if err != nil {
			return ResolvedDirective{}, err
		}
		text := strings.Trim(d.PrototypeAt.Prototype, `"`)
		return ResolvedDirective{Prototype: &PrototypeOverride{Address: addr, Prototype: text}}, nil
	case d.FlowAt != nil:
		addr, err := parseAddress(d.FlowAt.Address)
		if err != nil {
			return ResolvedDirective{}, err
		}
		target, err := parseAddress(d.FlowAt.Target)
		if err != nil {
			return ResolvedDirective{}, err
		}
		return ResolvedDirective{Flow: &FlowOverride{Address: addr, Kind: d.FlowAt.Kind, Target: target}}, nil
	default:
		return ResolvedDirective{}, errors.New("config: empty directive")
	}
}

func resolveOption(d *SetOptionDirective) (*Option, error) {
	if strings.HasPrefix(d.Value, `"`) {
		s := strings.Trim(d.Value, `"`)
		return &Option{Name: d.Name, Str: &s}, nil
	}
	switch d.Value {
	case "true":
		v := true
		return &Option{Name: d.Name, Bool: &v}, nil
	case "false":
		v := false
		return &Option{Name: d.Name, Bool: &v}, nil
	default:
		return &Option{Name: d.Name, Str: &d.Value}, nil
	}
}

func parseAddress(text string) (uint64, error) {
	if strings.HasPrefix(text, "0x") {
		v, err := strconv.ParseUint(text[2:], 16, 64)
		return v, errors.Wrap(err, "config: parsing hex address")
	}
	v, err := strconv.ParseUint(text, 10, 64)
	return v, errors.Wrap(err, "config: parsing address")
}

// reportParseError prints a caret-style parse error, matching
// grammar.reportParseError's format exactly.
func reportParseError(src string, err error) {
	pe, ok := err.(participle.Error)
	if !ok {
		color.Red("Unexpected error: %s", err)
		return
	}
	pos := pe.Position()
	lines := strings.Split(src, "\n")
	if pos.Line <= 0 || pos.Line > len(lines) {
		color.Red("Syntax error at unknown location: %s", err)
		return
	}
	line := lines[pos.Line-1]
	caret := strings.Repeat(" ", pos.Column-1) + "^"

	color.Red("syntax error in %s at line %d, column %d:", pos.Filename, pos.Line, pos.Column)
	fmt.Println(line)
	color.HiRed(caret)
	fmt.Printf("-> %s\n", pe.Message())
}
