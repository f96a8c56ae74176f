// SPDX-License-Identifier: Apache-2.0
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"

	"pcodecore/internal/action"
	"pcodecore/internal/decompile"
	"pcodecore/internal/fixture"
	"pcodecore/internal/rules"
	"pcodecore/internal/session"
	"pcodecore/internal/symbols"
	"pcodecore/internal/types"
)

func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: pcode-cli <program.json> <entry-address>")
		os.Exit(1)
	}

	startTime := time.Now()
	path := os.Args[1]
	entry, err := strconv.ParseUint(os.Args[2], 0, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid entry address %q: %v\n", os.Args[2], err)
		os.Exit(1)
	}

	prog, err := fixture.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load program: %v\n", err)
		os.Exit(1)
	}

	root := symbols.NewScope("global", nil)
	adapter := symbols.NewScopeAdapter(root)
	for name, addr := range prog.EntryPoints {
		adapter.DefineFunction(addr, name)
	}

	pool := rules.Default(64)
	driver := &decompile.Driver{
		Translator: prog,
		Symbols:    adapter,
		Types:      types.NewFactory(session.DefaultDataOrganization),
		Memory:     prog,
		Rules:      pool,
		Actions:    action.Default(pool),
		Limits:     decompile.DefaultLimits(),
	}

	result, err := driver.DecompileFunction(context.Background(), entry)
	duration := time.Since(startTime)
	formattedDuration := formatDuration(duration)

	if err != nil {
		color.Red("Decompilation of %#x failed after %s: %v", entry, formattedDuration, err)
		os.Exit(1)
	}

	emitter := driver.Emitter(result)
	if header := result.Reporter.WarningHeader(true); header != "" {
		fmt.Print(header)
	}

	proto := emitter.Prototype()
	fmt.Printf("%s %s(", typeName(proto.ReturnType), result.Name)
	for i, p := range proto.Params {
		if i > 0 {
			fmt.Print(", ")
		}
		fmt.Printf("%s %s", typeName(p.Type), p.Name)
	}
	fmt.Println(")")

	if len(result.GotoTargets) > 0 {
		fmt.Printf("  (%d block(s) left unstructured, emitted as goto targets)\n", len(result.GotoTargets))
	}
	if len(result.JumpTables) > 0 {
		fmt.Printf("  (%d jump table(s) recovered)\n", len(result.JumpTables))
	}

	color.Green("Successfully decompiled %s at %#x in %s", path, entry, formattedDuration)
}

func typeName(t types.Type) string {
	if t == nil {
		return "void"
	}
	return t.String()
}

func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Minute:
		return fmt.Sprintf("%.2fmin", d.Minutes())
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.1fms", float64(d.Nanoseconds())/1000000.0)
	case d >= time.Microsecond:
		return fmt.Sprintf("%.1fμs", float64(d.Nanoseconds())/1000.0)
	default:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
}
