package config

// Script is a sequence of override-script directives (spec.md §6
// "Command surface"), one per line — the same struct-tag-grammar idiom
// as grammar.Program (grammar/grammar.go), specialized to this
// language's four directive kinds instead of a module/struct/function
// language.
type Script struct {
	Directives []*Directive `@@*`
}

// Directive is one line of the override script.
type Directive struct {
	SetOption       *SetOptionDirective       `  @@`
	SelectRoot      *SelectRootDirective      `| @@`
	PrototypeAt     *PrototypeOverrideDirective `| @@`
	FlowAt          *FlowOverrideDirective    `| @@`
}

// SetOptionDirective matches `set-option <name> <bool|string>` (§6
// "set a named boolean/string option"). Value is captured raw and
// resolved into a bool or a string by the caller, since participle
// captures a literal token's text, not a typed value.
type SetOptionDirective struct {
	Name  string `"set-option" @Ident`
	Value string `@(Ident | String)`
}

// SelectRootDirective matches `select-root-action <name>` (§6 "select
// current root action by name").
type SelectRootDirective struct {
	Name string `"select-root-action" @Ident`
}

// PrototypeOverrideDirective matches
// `prototype-override-at <addr> "<prototype text>"` (§6 "set a
// prototype override at an address").
type PrototypeOverrideDirective struct {
	Address   string `"prototype-override-at" @(Hex | Integer)`
	Prototype string `@String`
}

// FlowOverrideDirective matches `flow-override-at <addr> <kind> <target>`
// (§6 "set a flow override at an address").
type FlowOverrideDirective struct {
	Address string `"flow-override-at" @(Hex | Integer)`
	Kind    string `@Ident`
	Target  string `@(Hex | Integer)`
}
