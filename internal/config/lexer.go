package config

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// DirectiveLexer tokenizes the override-script DSL (spec.md §6's
// set-option / select-root-action / prototype-override-at /
// flow-override-at command surface, expressed as a small text
// language), the same stateful-rules shape as grammar.KansoLexer
// (grammar/lexer.go), narrowed to the directive vocabulary this
// language actually needs.
var DirectiveLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{"Comment", `#[^\n]*`, nil},
		{"String", `"(\\"|[^"])*"`, nil},
		{"Hex", `0x[0-9a-fA-F]+`, nil},
		{"Integer", `[0-9]+`, nil},
		{"Ident", `[a-zA-Z_][a-zA-Z0-9_.\-]*`, nil},
		{"Punctuation", `[():,]`, nil},
		{"Newline", `[\r\n]+`, nil},
		{"Whitespace", `[ \t]+`, nil},
	},
})
