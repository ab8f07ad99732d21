package types

// Message types exchanged over the session channel.
const (
	MessageTranscriptCommit = "transcript_commit"
	MessagePipelineResult   = "pipeline_result"
	MessageError            = "error"
)

// InboundMessage is the envelope of every client to server message. Only
// transcript_commit is currently understood.
type InboundMessage struct {
	Type            string `json:"type"`
	LectureID       string `json:"lecture_id"`
	ChunkID         string `json:"chunk_id"`
	Text            string `json:"text"`
	PreviousContext string `json:"previous_context"`
	IsFinal         bool   `json:"is_final"`
}

// Chunk converts a transcript_commit message into a [TranscriptChunk].
func (m InboundMessage) Chunk() TranscriptChunk {
	return TranscriptChunk{
		LectureID:       m.LectureID,
		ChunkID:         m.ChunkID,
		Text:            m.Text,
		PreviousContext: m.PreviousContext,
		IsFinal:         m.IsFinal,
	}
}

// PipelineResult is pushed to the client once per chunk with the immediate
// results, and once per deferred artifact when it becomes ready.
type PipelineResult struct {
	Type      string  `json:"type"`
	LectureID string  `json:"lecture_id"`
	Results   Results `json:"results"`
}

// NewPipelineResult wraps r in a pipeline_result envelope.
func NewPipelineResult(lectureID string, r Results) PipelineResult {
	return PipelineResult{Type: MessagePipelineResult, LectureID: lectureID, Results: r}
}

// ErrorMessage reports a failed chunk to the client.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewErrorMessage builds an error envelope.
func NewErrorMessage(msg string) ErrorMessage {
	return ErrorMessage{Type: MessageError, Message: msg}
}
