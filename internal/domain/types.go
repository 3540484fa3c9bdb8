package domain

// VoicePhase models the voice capture lifecycle.
type VoicePhase string

const (
	VoicePhaseIdle       VoicePhase = "idle"
	VoicePhaseListening  VoicePhase = "listening"
	VoicePhaseProcessing VoicePhase = "processing"
	VoicePhaseError      VoicePhase = "error"
)

// RecognitionErrorCategory classifies failures reported by a speech recognizer.
type RecognitionErrorCategory string

const (
	RecognitionErrorNoSpeech         RecognitionErrorCategory = "no-speech"
	RecognitionErrorPermissionDenied RecognitionErrorCategory = "permission-denied"
	RecognitionErrorNetwork          RecognitionErrorCategory = "network"
	RecognitionErrorOther            RecognitionErrorCategory = "other"
)

// VoiceSnapshot is the externally visible voice session state.
type VoiceSnapshot struct {
	Open       bool       `json:"open"`
	Phase      VoicePhase `json:"phase"`
	Transcript string     `json:"transcript"`
	LastError  string     `json:"lastError,omitempty"`
}

// LookupSource identifies how a text lookup was issued.
type LookupSource string

const (
	LookupSourceLibrary LookupSource = "library"
	LookupSourceVoice   LookupSource = "voice"
)

// AdviceOutcome is the result of one advice request as published to the UI.
type AdviceOutcome struct {
	Seq     uint64        `json:"seq"`
	Record  *AdviceRecord `json:"record,omitempty"`
	Message string        `json:"message,omitempty"`
}
