package domain

// ScreenReport is the structured result of a screenshot analysis pass.
type ScreenReport struct {
	TextExtracted   string
	Activity        string
	IsStudying      bool
	Details         string
	Analysis        string
	OCRModelUsed    string
	VisionModelUsed string
	WarningMessage  string
	WarningAudio    *AudioClip
}

// CameraReport is the structured result of a camera frame analysis pass.
type CameraReport struct {
	PersonPresent   bool
	Activity        string
	IsStudying      bool
	Details         string
	Analysis        string
	VisionModelUsed string
	WarningMessage  string
	WarningAudio    *AudioClip
}

// Exchange is one completed user/assistant turn, as archived by the
// optional transcript store.
type Exchange struct {
	PK        string
	SK        string
	SessionID string
	Question  string
	Answer    string
	Turns     int
	Status    string
	TTL       int64
}

// SessionMeta stores aggregate per-session archive state.
type SessionMeta struct {
	PK           string
	SK           string
	SessionID    string
	LastActivity string
	Turns        int
	TTL          int64
}
