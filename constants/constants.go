package constants

// Overridden at build time with -ldflags "-X".
var (
	Version     = "dev"
	CompileTime = "unknown"
)

const AppName = "playtag"
