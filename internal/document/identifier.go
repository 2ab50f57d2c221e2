package document

import "strings"

// Kind classifies a caller-supplied identifier.
type Kind string

// Identifier kinds understood by the resolver.
const (
	KindDirectURL    Kind = "direct_url"
	KindNonDirectURL Kind = "non_direct_url"
	KindPMID         Kind = "pmid"
	KindDOI          Kind = "doi"
)

// DefaultContentExtensions lists the terminal extensions that mark a URL as direct.
var DefaultContentExtensions = []string{"pdf"}

// Identifier is a raw identifier plus its classification.
type Identifier struct {
	raw  string
	kind Kind
}

// NewIdentifier classifies raw using DefaultContentExtensions.
func NewIdentifier(raw string) Identifier {
	return NewIdentifierWithExtensions(raw, DefaultContentExtensions)
}

// NewIdentifierWithExtensions classifies raw against a custom extension list.
func NewIdentifierWithExtensions(raw string, extensions []string) Identifier {
	return Identifier{raw: raw, kind: ClassifyWithExtensions(raw, extensions)}
}

// Raw returns the identifier exactly as supplied.
func (i Identifier) Raw() string { return i.raw }

// Kind returns the classification.
func (i Identifier) Kind() Kind { return i.kind }

func (i Identifier) String() string { return i.raw }

// Classify maps a raw identifier to its Kind. It is total over all strings:
// anything that is neither a URL nor purely numeric is treated as a DOI,
// including the empty string.
func Classify(raw string) Kind {
	return ClassifyWithExtensions(raw, DefaultContentExtensions)
}

// ClassifyWithExtensions is Classify with a caller-supplied list of content extensions.
func ClassifyWithExtensions(raw string, extensions []string) Kind {
	if strings.HasPrefix(raw, "http") {
		for _, ext := range extensions {
			ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
			if ext != "" && strings.HasSuffix(raw, ext) {
				return KindDirectURL
			}
		}
		return KindNonDirectURL
	}
	if isDigits(raw) {
		return KindPMID
	}
	return KindDOI
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
