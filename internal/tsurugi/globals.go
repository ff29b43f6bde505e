package tsurugi

import (
	"runtime"

	"github.com/gookit/color"
)

// Global variables
var (
	OutDir       string
	WorkDir      string
	tmpDir       string
	PartSizeMB   int64
	Platform     string
	WantDebug    string
	Debug        bool
	ConfigFile   = "/etc/tsurugi.conf"
	version      = "dev"     // default version; overridden at build time
	arch         = runtime.GOARCH
	buildDate    = "unknown" // overridden at build time
	// Global executor (assigned in Main)
	Exec *Executor
)

// defaultPartSizeMB is the per-file limit of the release store, minus headroom.
const defaultPartSizeMB = 1800

// color helpers
var (
	colInfo    = color.Info // style provided by gookit/color
	colWarn    = color.Warn
	colError   = color.Error
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
	colNote    = color.Tag("notice")
)
