package pipeline

// Dispatch and journal tuning
const (
	// DefaultImportance is used for utterances identified straight off
	// the capture path. Downstream analysis refines importance through
	// the identify operation when it runs.
	DefaultImportance = 0.5

	JournalMaxEntries  = 50
	JournalEventBuffer = 100
)
