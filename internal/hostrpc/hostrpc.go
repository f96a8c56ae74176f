// Package hostrpc exposes the decompilation core's command surface
// (spec.md §6 "Command surface") over JSON-RPC 2.0, using
// github.com/sourcegraph/jsonrpc2 as the transport in place of the
// teacher's LSP handler (internal/lsp/handler.go, built on
// github.com/tliron/glsp). The command surface here is shaped by §6's
// register/deregister/decompile/select-root/set-option/override/
// structured-only verbs, not by the Language Server Protocol, so a
// generic JSON-RPC handler replaces glsp's LSP-specific method table
// while keeping the teacher's per-method dispatch-table idiom.
package hostrpc

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/sourcegraph/jsonrpc2"
	"github.com/tliron/commonlog"

	"pcodecore/internal/diag"
)

var log = commonlog.GetLogger("pcodecore.hostrpc")

// Method names for the command surface (spec.md §6 "Command surface").
const (
	MethodRegisterProgram    = "core/registerProgram"
	MethodDeregisterProgram  = "core/deregisterProgram"
	MethodDecompileAt        = "core/decompileAt"
	MethodSelectRootAction   = "core/selectRootAction"
	MethodSetOption          = "core/setOption"
	MethodSetPrototypeOverride = "core/setPrototypeOverride"
	MethodSetFlowOverride    = "core/setFlowOverride"
	MethodStructuredOnly     = "core/requestStructuredOnly"
)

// RegisterProgramParams matches §6's "register a program (processor
// spec + compiler spec + type spec + core-type spec)".
type RegisterProgramParams struct {
	ProgramID      string `json:"programId"`
	ProcessorSpec  string `json:"processorSpec"`
	CompilerSpec   string `json:"compilerSpec"`
	TypeSpec       string `json:"typeSpec"`
	CoreTypeSpec   string `json:"coreTypeSpec"`
}

type DeregisterProgramParams struct {
	ProgramID string `json:"programId"`
}

type DecompileAtParams struct {
	ProgramID string `json:"programId"`
	Address   uint64 `json:"address"`
}

type SelectRootActionParams struct {
	ProgramID string `json:"programId"`
	Name      string `json:"name"`
}

type SetOptionParams struct {
	ProgramID string `json:"programId"`
	Name      string `json:"name"`
	BoolValue *bool  `json:"boolValue,omitempty"`
	StrValue  *string `json:"strValue,omitempty"`
}

type SetPrototypeOverrideParams struct {
	ProgramID string `json:"programId"`
	Address   uint64 `json:"address"`
	Prototype string `json:"prototype"`
}

type SetFlowOverrideParams struct {
	ProgramID string `json:"programId"`
	Address   uint64 `json:"address"`
	Kind      string `json:"kind"`
	Target    uint64 `json:"target"`
}

type StructuredOnlyParams struct {
	ProgramID string `json:"programId"`
	Enabled   bool   `json:"enabled"`
}

// ErrorPayload matches spec.md §6's "Error encoding": "Every outbound
// command response carries either a success payload or an error record
// with class ... and a human-readable explanation."
type ErrorPayload struct {
	Class       string `json:"class"`
	Explanation string `json:"explanation"`
}

// classToRPCClass maps a diag.Class onto the fixed
// alignment/low-level/recoverable/xml/java-exception vocabulary §6
// names for outbound error records; every diag class not otherwise
// mapped is reported as "recoverable" or "low-level" depending on
// fatality, since the JSON-RPC surface only needs the coarse bucket,
// not the full internal taxonomy.
func classToRPCClass(c diag.Class) string {
	if !c.Recoverable() {
		return "low-level"
	}
	return "recoverable"
}

// Core is the set of driver operations the handler dispatches to. The
// driver package implements this at wiring time; hostrpc only declares
// the shape, per the teacher's "declare the shape, not the
// implementation" idiom (see internal/external).
type Core interface {
	RegisterProgram(ctx context.Context, p RegisterProgramParams) error
	DeregisterProgram(ctx context.Context, programID string) error
	DecompileAt(ctx context.Context, programID string, address uint64) (interface{}, *diag.Diagnostic)
	SelectRootAction(ctx context.Context, programID, name string) error
	SetOption(ctx context.Context, p SetOptionParams) error
	SetPrototypeOverride(ctx context.Context, p SetPrototypeOverrideParams) error
	SetFlowOverride(ctx context.Context, p SetFlowOverrideParams) error
	SetStructuredOnly(ctx context.Context, programID string, enabled bool) error
}

// Handler implements jsonrpc2.Handler, dispatching by method name to
// Core, mirroring the teacher's KansoHandler method-per-LSP-request
// shape but keyed by the §6 command vocabulary instead of LSP methods.
type Handler struct {
	mu   sync.RWMutex
	core Core
}

// NewHandler wraps core in a jsonrpc2.Handler.
func NewHandler(core Core) *Handler {
	return &Handler{core: core}
}

func (h *Handler) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
	h.mu.RLock()
	core := h.core
	h.mu.RUnlock()

	log.Debugf("dispatching %s", req.Method)
	result, rpcErr := h.dispatch(ctx, core, req)
	if req.Notif {
		return
	}
	if rpcErr != nil {
		log.Warningf("%s failed: %s", req.Method, rpcErr.Message)
		_ = conn.ReplyWithError(ctx, req.ID, rpcErr)
		return
	}
	_ = conn.Reply(ctx, req.ID, result)
}

func (h *Handler) dispatch(ctx context.Context, core Core, req *jsonrpc2.Request) (interface{}, *jsonrpc2.Error) {
	switch req.Method {
	case MethodRegisterProgram:
		var p RegisterProgramParams
		if err := unmarshalParams(req, &p); err != nil {
			return nil, invalidParams(err)
		}
		if err := core.RegisterProgram(ctx, p); err != nil {
			return nil, toRPCError(err)
		}
		return map[string]bool{"ok": true}, nil

	case MethodDeregisterProgram:
		var p DeregisterProgramParams
		if err := unmarshalParams(req, &p); err != nil {
			return nil, invalidParams(err)
		}
		if err := core.DeregisterProgram(ctx, p.ProgramID); err != nil {
			return nil, toRPCError(err)
		}
		return map[string]bool{"ok": true}, nil

	case MethodDecompileAt:
		var p DecompileAtParams
		if err := unmarshalParams(req, &p); err != nil {
			return nil, invalidParams(err)
		}
		res, d := core.DecompileAt(ctx, p.ProgramID, p.Address)
		if d != nil {
			return nil, diagToRPCError(d)
		}
		return res, nil

	case MethodSelectRootAction:
		var p SelectRootActionParams
		if err := unmarshalParams(req, &p); err != nil {
			return nil, invalidParams(err)
		}
		if err := core.SelectRootAction(ctx, p.ProgramID, p.Name); err != nil {
			return nil, toRPCError(err)
		}
		return map[string]bool{"ok": true}, nil

	case MethodSetOption:
		var p SetOptionParams
		if err := unmarshalParams(req, &p); err != nil {
			return nil, invalidParams(err)
		}
		if err := core.SetOption(ctx, p); err != nil {
			return nil, toRPCError(err)
		}
		return map[string]bool{"ok": true}, nil

	case MethodSetPrototypeOverride:
		var p SetPrototypeOverrideParams
		if err := unmarshalParams(req, &p); err != nil {
			return nil, invalidParams(err)
		}
		if err := core.SetPrototypeOverride(ctx, p); err != nil {
			return nil, toRPCError(err)
		}
		return map[string]bool{"ok": true}, nil

	case MethodSetFlowOverride:
		var p SetFlowOverrideParams
		if err := unmarshalParams(req, &p); err != nil {
			return nil, invalidParams(err)
		}
		if err := core.SetFlowOverride(ctx, p); err != nil {
			return nil, toRPCError(err)
		}
		return map[string]bool{"ok": true}, nil

	case MethodStructuredOnly:
		var p StructuredOnlyParams
		if err := unmarshalParams(req, &p); err != nil {
			return nil, invalidParams(err)
		}
		if err := core.SetStructuredOnly(ctx, p.ProgramID, p.Enabled); err != nil {
			return nil, toRPCError(err)
		}
		return map[string]bool{"ok": true}, nil

	default:
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "unknown method: " + req.Method}
	}
}

func unmarshalParams(req *jsonrpc2.Request, out interface{}) error {
	if req.Params == nil {
		return errors.New("hostrpc: missing params")
	}
	return json.Unmarshal(*req.Params, out)
}

func invalidParams(err error) *jsonrpc2.Error {
	return &jsonrpc2.Error{Code: jsonrpc2.CodeInvalidParams, Message: err.Error()}
}

func toRPCError(err error) *jsonrpc2.Error {
	if d, ok := errors.Cause(err).(*diag.Diagnostic); ok {
		return diagToRPCError(d)
	}
	payload, _ := json.Marshal(ErrorPayload{Class: "recoverable", Explanation: err.Error()})
	raw := json.RawMessage(payload)
	return &jsonrpc2.Error{Code: jsonrpc2.CodeInternalError, Message: err.Error(), Data: &raw}
}

func diagToRPCError(d *diag.Diagnostic) *jsonrpc2.Error {
	payload, _ := json.Marshal(ErrorPayload{Class: classToRPCClass(d.Class), Explanation: d.Error()})
	raw := json.RawMessage(payload)
	return &jsonrpc2.Error{Code: jsonrpc2.CodeInternalError, Message: d.Error(), Data: &raw}
}
