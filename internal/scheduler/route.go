package scheduler

import (
	"regexp"
	"strings"

	"github.com/memorylink/vision-server/internal/protocol"
)

// Route is the response path chosen for one frame/message pair. Exactly one
// route applies per inference opportunity.
type Route int

const (
	// RouteAmbient runs the VLM with the default descriptive prompt and
	// scans the answer for trigger words. The periodic scanner always takes
	// this route.
	RouteAmbient Route = iota
	// RouteSpeech answers a spoken prompt, either from the face gallery
	// (identity questions) or the object-memory service. Never calls the VLM.
	RouteSpeech
	// RouteQuery runs the VLM with the user's prompt verbatim.
	RouteQuery
	// RouteFaceOnly runs face matching and skips the VLM entirely.
	RouteFaceOnly
)

// String returns the route name for logging.
func (r Route) String() string {
	switch r {
	case RouteSpeech:
		return "speech"
	case RouteQuery:
		return "query"
	case RouteFaceOnly:
		return "face_only"
	default:
		return "ambient"
	}
}

// Decide picks the response path for a message. Rules apply in strict priority
// order; the first match wins:
//
//  1. speech flag with a prompt -> RouteSpeech
//  2. a prompt differing from the idle sentinel -> RouteQuery
//  3. recognize_faces with no explicit prompt -> RouteFaceOnly
//  4. otherwise -> RouteAmbient
//
// The idle sentinel counts as "no prompt" everywhere, so rule 3 skips the VLM
// for always-on clients that send the default prompt alongside the faces flag.
func Decide(msg protocol.FrameMessage, idlePrompt string) Route {
	switch {
	case msg.IsSpeech && msg.Prompt != "":
		return RouteSpeech
	case msg.Prompt != "" && msg.Prompt != idlePrompt:
		return RouteQuery
	case msg.RecognizeFaces && (msg.Prompt == "" || msg.Prompt == idlePrompt):
		return RouteFaceOnly
	default:
		return RouteAmbient
	}
}

var identityQueryPattern = regexp.MustCompile(`(?i)\bwho\s+(am\s+i|is\s+(this|that)|do\s+you\s+see)\b`)

// IsIdentityQuery reports whether a spoken prompt asks about face identity
// rather than stored object state.
func IsIdentityQuery(prompt string) bool {
	return identityQueryPattern.MatchString(prompt)
}

// ScanTriggers returns every configured target word found in the response
// text, case-insensitively. The configured list is walked as-is: duplicate
// entries produce duplicate hits, each of which dispatches its own forward.
func ScanTriggers(response string, targets []string) []string {
	if response == "" || len(targets) == 0 {
		return nil
	}
	lowered := strings.ToLower(response)
	var hits []string
	for _, target := range targets {
		if target == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(target)) {
			hits = append(hits, target)
		}
	}
	return hits
}
