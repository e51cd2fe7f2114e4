package types

import "time"

// BatchStatus tracks a batch run across process restarts.
type BatchStatus string

const (
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchFailed    BatchStatus = "failed"
	BatchPaused    BatchStatus = "paused"
)

// Phase names the pipeline stage a batch failure occurred in.
type Phase string

const (
	PhaseText   Phase = "text"
	PhaseImages Phase = "images"
	PhaseAudio  Phase = "audio"
)

// FailureRecord captures one failed unit inside a batch without aborting
// the rest of the run.
type FailureRecord struct {
	Index     int       `json:"index"`
	BookID    string    `json:"bookId,omitempty"`
	Error     string    `json:"error"`
	Phase     Phase     `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
}

// BatchConfig is the immutable configuration a batch was started with.
// Resumed runs reuse the stored config so a restart cannot silently change
// the workload shape.
type BatchConfig struct {
	Count          int     `json:"count"`
	StartIndex     int     `json:"startIndex"`
	AgeRange       AgeBand `json:"ageRange,omitempty"`
	VoiceName      string  `json:"voiceName,omitempty"`
	MaxConcurrency int     `json:"maxConcurrency"`
	GenerateAudio  bool    `json:"generateAudio"`
}

// BatchProgress is the checkpoint document for a resumable batch. It is
// persisted after every completed unit.
type BatchProgress struct {
	BatchID        string          `json:"batchId"`
	TotalBooks     int             `json:"totalBooks"`
	CompletedBooks int             `json:"completedBooks"`
	FailedBooks    int             `json:"failedBooks"`
	SkippedBooks   int             `json:"skippedBooks"`
	CurrentIndex   int             `json:"currentIndex"`
	Status         BatchStatus     `json:"status"`
	Config         BatchConfig     `json:"config"`
	Failures       []FailureRecord `json:"failures"`
	StartedAt      time.Time       `json:"startedAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// BatchAudioResult summarizes an audio backfill sweep over existing books.
type BatchAudioResult struct {
	Succeeded []string `json:"succeeded"`
	Failed    []string `json:"failed"`
	Skipped   []string `json:"skipped"`
}
