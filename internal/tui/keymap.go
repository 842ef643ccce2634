package tui

// Key binding constants used in handleKey.
const (
	KeyQuit    = "q"
	KeyCtrlC   = "ctrl+c"
	KeyKeep    = "l"
	KeyRight   = "right"
	KeyBack    = "h"
	KeyLeft    = "left"
	KeyMark    = "d"
	KeyMarkAlt = "x"
	KeyRefresh = "r"
	KeyRescan  = "R"
	KeyTrash   = "t"
	KeyUp      = "up"
	KeyDown    = "down"
	KeyJ       = "j"
	KeyK       = "k"
	KeySpace   = " "
	KeyRestore = "u"
	KeyDelete  = "D"
	KeyBurn    = "B"
	KeyYes     = "y"
	KeyNo      = "n"
	KeyEsc     = "esc"
)
