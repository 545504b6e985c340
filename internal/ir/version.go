package ir

const (
	// SnapshotVersion is bumped whenever TimerRecord or WatchRecord change shape.
	SnapshotVersion = 1

	// EngineVersion is recorded alongside every saved snapshot.
	EngineVersion = "0.1.0"
)
