package protocol

// FrameMessage is one inbound websocket message from the streaming client.
// It intentionally keeps wire-compatible field names with the reference
// frontend: a frame plus optional routing hints.
type FrameMessage struct {
	Image          string `json:"image,omitempty"`
	Prompt         string `json:"prompt,omitempty"`
	RecognizeFaces bool   `json:"recognize_faces,omitempty"`
	IsSpeech       bool   `json:"is_speech,omitempty"`
}

// FaceLocation holds pixel offsets of a detected face box.
type FaceLocation struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// Face is one named detection in an outbound reply.
type Face struct {
	Name       string       `json:"name"`
	Location   FaceLocation `json:"location"`
	Confidence float64      `json:"confidence"`
}

// FaceReport aggregates detections for a single frame. Error carries a decode
// failure tag; the detection list is empty in that case.
type FaceReport struct {
	Count int    `json:"count"`
	Faces []Face `json:"faces"`
	Error string `json:"error,omitempty"`
}

// AnalysisReply is the outbound result for one processed frame.
type AnalysisReply struct {
	Response string      `json:"response"`
	Faces    *FaceReport `json:"faces"`
	Triggers []string    `json:"triggers,omitempty"`
}

// ErrorReply is sent for malformed or incomplete messages; the connection
// stays open.
type ErrorReply struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewErrorReply builds a structured error reply.
func NewErrorReply(message string) ErrorReply {
	return ErrorReply{Type: "error", Message: message}
}
