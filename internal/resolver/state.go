package resolver

// State names a step of a single resolution attempt.
type State int

// Resolution states.
const (
	StateStart State = iota
	StateClassifying
	StateLocatingMirror
	StateFetchingMirrorPage
	StateExtractingLink
	StateFetchingContent
	StateValidating
	StateRetryWithNextMirror
	StateSuccess
	StateFailed
)

var stateNames = map[State]string{
	StateStart:               "start",
	StateClassifying:         "classifying",
	StateLocatingMirror:      "locating_mirror",
	StateFetchingMirrorPage:  "fetching_mirror_page",
	StateExtractingLink:      "extracting_link",
	StateFetchingContent:     "fetching_content",
	StateValidating:          "validating",
	StateRetryWithNextMirror: "retry_with_next_mirror",
	StateSuccess:             "success",
	StateFailed:              "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailed
}
