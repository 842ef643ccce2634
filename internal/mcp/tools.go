package mcp

import "github.com/mark3labs/mcp-go/mcp"

var sessionStateToolDef = mcp.NewTool("session_state",
	mcp.WithDescription("Return the current review session: the photo under the cursor, its neighbours, progress, staged trash, and any pending deletion consent."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var sessionNextToolDef = mcp.NewTool("session_next",
	mcp.WithDescription("Keep the current photo and advance to the next one. Past the last photo the session is complete."),
)

var sessionPreviousToolDef = mcp.NewTool("session_previous",
	mcp.WithDescription("Go back one photo. Does nothing at the first photo."),
)

var sessionMarkToolDef = mcp.NewTool("session_mark",
	mcp.WithDescription("Stage a photo from the session for deletion. Moves it from the stack to the trash; nothing is deleted yet."),
	mcp.WithNumber("id",
		mcp.Description("Photo ID from the session stack. Defaults to the current photo."),
	),
)

var sessionRefreshToolDef = mcp.NewTool("session_refresh",
	mcp.WithDescription("Discard the session and build a new one from the existing index."),
	mcp.WithBoolean("wait",
		mcp.Description("Wait for the new session to load before returning (default true)."),
	),
)

var sessionConfigureToolDef = mcp.NewTool("session_configure",
	mcp.WithDescription("Change session preferences. Changing size or curation mode starts a new session."),
	mcp.WithNumber("session_size",
		mcp.Description("Photos per session, clamped to 5..50."),
	),
	mcp.WithString("curation_mode",
		mcp.Description("RANDOM picks photos at random; BURST picks photos taken in quick succession."),
		mcp.Enum("RANDOM", "BURST"),
	),
	mcp.WithString("theme_mode",
		mcp.Enum("LIGHT", "DARK", "SYSTEM"),
	),
	mcp.WithString("language",
		mcp.Enum("EN", "CN"),
	),
)

var libraryRescanToolDef = mcp.NewTool("library_rescan",
	mcp.WithDescription("Re-index the photo library, then start a new session."),
	mcp.WithBoolean("wait",
		mcp.Description("Wait for indexing and the new session before returning (default true)."),
	),
)

var trashListToolDef = mcp.NewTool("trash_list",
	mcp.WithDescription("List photos staged for deletion, newest first."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var trashRestoreToolDef = mcp.NewTool("trash_restore",
	mcp.WithDescription("Take photos out of the trash. They are kept and do not return to the session."),
	mcp.WithArray("ids",
		mcp.Required(),
		mcp.Description("Photo IDs to restore."),
		mcp.Items(map[string]any{"type": "integer"}),
	),
)

var trashDeleteToolDef = mcp.NewTool("trash_delete",
	mcp.WithDescription("Permanently delete photos from the trash. May return a pending consent that must be answered with consent_resolve."),
	mcp.WithDestructiveHintAnnotation(true),
	mcp.WithArray("ids",
		mcp.Required(),
		mcp.Description("Photo IDs to delete."),
		mcp.Items(map[string]any{"type": "integer"}),
	),
)

var trashBurnToolDef = mcp.NewTool("trash_burn",
	mcp.WithDescription("Permanently delete everything in the trash, then start a new session. May return a pending consent."),
	mcp.WithDestructiveHintAnnotation(true),
)

var consentResolveToolDef = mcp.NewTool("consent_resolve",
	mcp.WithDescription("Answer the pending deletion consent. Denying keeps every photo in the trash."),
	mcp.WithDestructiveHintAnnotation(true),
	mcp.WithString("handle",
		mcp.Required(),
		mcp.Description("Handle from pending_consent."),
	),
	mcp.WithBoolean("granted",
		mcp.Required(),
	),
)
