package global

const (
	DefaultDBDir      = "dagdb"
	ConfigFileName    = "dagnode"
	DefaultConfigType = "yaml"

	// TraceTag values used by the core components
	TraceTagOrdering = "ordering"
	TraceTagFinality = "finality"
	TraceTagSync     = "syncmgr"
)
