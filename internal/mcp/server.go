package mcp

import (
	"context"
	"database/sql"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/tabula/internal/config"
	"github.com/hpungsan/tabula/internal/review"
)

// KnownTypes lists all valid type names.
var KnownTypes = []string{"session", "library", "trash", "consent"}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"session_state": {
		def:     sessionStateToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionState },
	},
	"session_next": {
		def:     sessionNextToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionNext },
	},
	"session_previous": {
		def:     sessionPreviousToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionPrevious },
	},
	"session_mark": {
		def:     sessionMarkToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionMark },
	},
	"session_refresh": {
		def:     sessionRefreshToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionRefresh },
	},
	"session_configure": {
		def:     sessionConfigureToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSessionConfigure },
	},
	"library_rescan": {
		def:     libraryRescanToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleLibraryRescan },
	},
	"trash_list": {
		def:     trashListToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTrashList },
	},
	"trash_restore": {
		def:     trashRestoreToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTrashRestore },
	},
	"trash_delete": {
		def:     trashDeleteToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTrashDelete },
	},
	"trash_burn": {
		def:     trashBurnToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleTrashBurn },
	},
	"consent_resolve": {
		def:     consentResolveToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleConsentResolve },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// ValidateDisabledTypes returns a list of unknown type names from the given list.
func ValidateDisabledTypes(names []string) []string {
	known := make(map[string]bool, len(KnownTypes))
	for _, t := range KnownTypes {
		known[t] = true
	}

	unknown := make([]string, 0)
	for _, name := range names {
		if !known[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// GetTypeForTool extracts the type name from a tool name.
// Tool names follow the pattern "type_action" (e.g., "trash_burn" → "trash").
func GetTypeForTool(toolName string) string {
	if idx := strings.Index(toolName, "_"); idx > 0 {
		return toolName[:idx]
	}
	return ""
}

// ExpandTypesToTools returns all tool names belonging to the given types.
func ExpandTypesToTools(types []string) []string {
	if len(types) == 0 {
		return nil
	}

	typeSet := make(map[string]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	tools := make([]string, 0)
	for name := range toolRegistry {
		if typeSet[GetTypeForTool(name)] {
			tools = append(tools, name)
		}
	}
	return tools
}

// NewServer creates a new MCP server with Tabula tools registered.
// Tools listed in cfg.DisabledTools or belonging to cfg.DisabledTypes
// are excluded from registration.
func NewServer(m *review.Machine, resolver review.ConsentResolver, db *sql.DB, cfg *config.Config, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"tabula",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(m, resolver, db, cfg)

	// Build set of disabled tools: first expand types, then add individual tools
	disabled := make(map[string]bool)
	for _, tool := range ExpandTypesToTools(cfg.DisabledTypes) {
		disabled[tool] = true
	}
	for _, name := range cfg.DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(m *review.Machine, resolver review.ConsentResolver, db *sql.DB, cfg *config.Config, version string) error {
	s := NewServer(m, resolver, db, cfg, version)
	return server.ServeStdio(s)
}

// ToolHandlerFunc is the signature for tool handlers.
type ToolHandlerFunc func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
