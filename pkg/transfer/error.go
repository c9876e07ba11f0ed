package transfer

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/David-Botos/entity-dataload/pkg/entityapi"
)

// Outcome is the fate of a single input record
type Outcome int

const (
	// OutcomeSuccess means the store created or updated the entity
	OutcomeSuccess Outcome = iota
	// OutcomePermanentFailure means the record is logged as failed and never retried
	OutcomePermanentFailure
	// OutcomeRetryCandidate means the raw row is copied to the retry file
	OutcomeRetryCandidate
	// OutcomeUpdateCandidate means the record duplicates an entity and is queued for the update pass
	OutcomeUpdateCandidate
)

// String returns a string representation of the outcome
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "Success"
	case OutcomePermanentFailure:
		return "PermanentFailure"
	case OutcomeRetryCandidate:
		return "RetryCandidate"
	case OutcomeUpdateCandidate:
		return "UpdateCandidate"
	default:
		return fmt.Sprintf("Unknown(%d)", int(o))
	}
}

// Taxonomy names the family an error code belongs to
type Taxonomy string

const (
	TaxonomyAPI     Taxonomy = "api"
	TaxonomyHTTP    Taxonomy = "http"
	TaxonomyUnknown Taxonomy = "unknown"
)

// Per-record error kind reported for duplicates
const uniqueViolation = "unique_violation"

// Messages written to the failure logs
const (
	MessageDryRun             = "Dry run. Record was skipped."
	MessageUnexpectedResponse = "Unexpected API response"
	MessageMissingResult      = "Missing result for record"
)

// RetryPolicy holds the codes presumed transient, per taxonomy
type RetryPolicy struct {
	APICodes  map[int]bool
	HTTPCodes map[int]bool
}

// DefaultRetryPolicy returns the codes the entity store documents as transient
func DefaultRetryPolicy() RetryPolicy {
	return NewRetryPolicy([]int{403, 500, 504, 510}, []int{403, 500, 501, 502})
}

// NewRetryPolicy builds a policy from code lists
func NewRetryPolicy(apiCodes, httpCodes []int) RetryPolicy {
	p := RetryPolicy{
		APICodes:  make(map[int]bool, len(apiCodes)),
		HTTPCodes: make(map[int]bool, len(httpCodes)),
	}
	for _, c := range apiCodes {
		p.APICodes[c] = true
	}
	for _, c := range httpCodes {
		p.HTTPCodes[c] = true
	}
	return p
}

// Retryable reports whether code is transient within taxonomy.
// Unknown taxonomies are always retryable.
func (p RetryPolicy) Retryable(taxonomy Taxonomy, code int) bool {
	switch taxonomy {
	case TaxonomyAPI:
		return p.APICodes[code]
	case TaxonomyHTTP:
		return p.HTTPCodes[code]
	default:
		return true
	}
}

// String lists the codes, for logging
func (p RetryPolicy) String() string {
	return fmt.Sprintf("api=[%s] http=[%s]", joinCodes(p.APICodes), joinCodes(p.HTTPCodes))
}

func joinCodes(codes map[int]bool) string {
	list := make([]int, 0, len(codes))
	for c := range codes {
		list = append(list, c)
	}
	sort.Ints(list)
	parts := make([]string, len(list))
	for i, c := range list {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, ",")
}

// CallError is the classification of a failed remote call
type CallError struct {
	Taxonomy Taxonomy
	Code     int
	Message  string
	Err      error
}

// Describe extracts the taxonomy and code from err
func Describe(err error) CallError {
	var apiErr *entityapi.APIError
	if errors.As(err, &apiErr) {
		return CallError{Taxonomy: TaxonomyAPI, Code: apiErr.Code, Message: apiErr.Error(), Err: err}
	}

	var httpErr *entityapi.HTTPError
	if errors.As(err, &httpErr) {
		return CallError{Taxonomy: TaxonomyHTTP, Code: httpErr.StatusCode, Message: httpErr.Error(), Err: err}
	}

	return CallError{Taxonomy: TaxonomyUnknown, Message: err.Error(), Err: err}
}

// ClassifyCall decides the outcome shared by every record of a call that
// failed as a whole.
func (p RetryPolicy) ClassifyCall(err error) (Outcome, CallError) {
	desc := Describe(err)
	if p.Retryable(desc.Taxonomy, desc.Code) {
		return OutcomeRetryCandidate, desc
	}
	return OutcomePermanentFailure, desc
}

// ClassifyRecord decides the outcome of one entry of a bulk create response
func ClassifyRecord(result entityapi.RecordResult, deltaMigration bool) Outcome {
	if !result.Failed() {
		return OutcomeSuccess
	}
	if deltaMigration && result.Kind == uniqueViolation {
		return OutcomeUpdateCandidate
	}
	return OutcomePermanentFailure
}

// WrapError creates a new error with additional context
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
