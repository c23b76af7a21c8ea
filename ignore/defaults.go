package ignore

// JunkPatterns are file names that never describe a change a consumer cares about:
// editor swap/backup files, atomic-save temporaries and OS metadata. They are matched
// against the base name, case-insensitively.
var JunkPatterns = []string{
	// Vim
	"*.swp",
	"*.swo",
	"*.swx",
	".*.sw?",
	"4913",

	// Emacs
	"*~",
	"#*#",
	".#*",

	// JetBrains / VS Code atomic saves
	"*___jb_tmp___",
	"*___jb_old___",
	"*.tmp",
	"*.crdownload",
	"*.part",

	// OS metadata
	".DS_Store",
	"._*",
	"Thumbs.db",
	"desktop.ini",
	"*:Zone.Identifier",
}

// GitIgnoreFile is always consulted when present in the watched directory.
const GitIgnoreFile = ".gitignore"
