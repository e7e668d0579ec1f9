package domain

import "errors"

// ResultStatus enumerates the outcome of a generation call.
type ResultStatus string

const (
	ResultSucceeded ResultStatus = "succeeded"
	ResultFailed    ResultStatus = "failed"
	ResultPending   ResultStatus = "pending"
)

// Result is the normalized outcome of one upstream generation. Exactly one of
// the status-specific fields is meaningful: ArtifactURL/Text for Succeeded,
// Failure for Failed, PollURL for Pending.
type Result struct {
	Status      ResultStatus
	ArtifactURL string
	Text        string
	Cached      bool
	PollURL     string
	Metadata    map[string]any
	Failure     *Error
}

func Success(artifactURL string, metadata map[string]any) Result {
	return Result{Status: ResultSucceeded, ArtifactURL: artifactURL, Metadata: metadata}
}

func TextSuccess(text string, metadata map[string]any) Result {
	return Result{Status: ResultSucceeded, Text: text, Metadata: metadata}
}

func Pending(pollURL string) Result {
	return Result{Status: ResultPending, PollURL: pollURL}
}

// Failure wraps err into a failed result, classifying unknown errors as
// internal.
func Failure(err error) Result {
	if err == nil {
		err = &Error{Kind: KindInternal, Message: DefaultPublicMessage}
	}
	var de *Error
	if !errors.As(err, &de) {
		de = &Error{Kind: KindInternal, Message: PublicMessage(err), Err: err}
	}
	return Result{Status: ResultFailed, Failure: de}
}

// Err returns the failure as an error, or nil for non-failed results.
func (r Result) Err() error {
	if r.Status != ResultFailed {
		return nil
	}
	if r.Failure == nil {
		return &Error{Kind: KindInternal, Message: DefaultPublicMessage}
	}
	return r.Failure
}

// Succeeded reports whether the result carries a usable artifact.
func (r Result) Succeeded() bool {
	return r.Status == ResultSucceeded
}
