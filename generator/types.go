package generator

import (
	"errors"
	"fmt"
)

// Outcome tells a real generation apart from a fallback value.
type Outcome int

const (
	Generated Outcome = iota
	Defaulted
)

func (o Outcome) String() string {
	switch o {
	case Generated:
		return "generated"
	case Defaulted:
		return "defaulted"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result is what the Agent hands back. Text is always usable; when Outcome
// is Defaulted, Text holds the fallback and Reason says why.
type Result struct {
	Text    string
	Outcome Outcome
	Reason  error
}

func (r Result) IsDefault() bool { return r.Outcome == Defaulted }

func generated(text string) Result { return Result{Text: text, Outcome: Generated} }

func defaulted(text string, reason error) Result {
	return Result{Text: text, Outcome: Defaulted, Reason: reason}
}

// Summary is the structured output of Summarize.
type Summary struct {
	Summary             string `json:"summary"`
	Category            string `json:"category"`
	CategoryDescription string `json:"category_description"`
}

var (
	ErrFetchFailed  = errors.New("source page could not be fetched")
	ErrEmptyReply   = errors.New("backend returned an empty reply")
	ErrEmptyContent = errors.New("nothing to summarize")
	ErrNoJSON       = errors.New("no JSON object in reply")
)

const (
	// FetchFailedText replaces the post when the source URL cannot be read.
	FetchFailedText = "Sorry, I couldn't read the page at that link. Please check the URL and try again."
	// ApologyText replaces the post when the backend gives us nothing usable.
	ApologyText = "Sorry, I couldn't come up with a post this time. Please try again."

	DefaultSummaryJSON = `{"summary":"Blog Post","category":"General","category_description":"General blog posts"}`
)
