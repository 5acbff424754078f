package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is makes DomainError comparable with errors.Is against the sentinel
// values below: two DomainErrors match when their codes and messages match.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeAlreadyExists     = "ALREADY_EXISTS"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeInvalidOperation  = "INVALID_OPERATION"
	ErrCodeUnsupportedFormat = "UNSUPPORTED_FORMAT"
	ErrCodeExtractionFailed  = "EXTRACTION_FAILED"
	ErrCodeDimensionMismatch = "EMBEDDING_DIMENSION_MISMATCH"
	ErrCodeModelMismatch     = "MODEL_VERSION_MISMATCH"
	ErrCodeNoRelevantContext = "NO_RELEVANT_CONTEXT"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeUpstreamModel     = "UPSTREAM_MODEL_FAILURE"
)

// Ingestion errors
var (
	ErrUnsupportedFormat = NewDomainError(ErrCodeUnsupportedFormat, "uploaded file is not a PDF")
	ErrExtractionFailed  = NewDomainError(ErrCodeExtractionFailed, "failed to extract text from document")
)

// Index and retrieval errors. Dimension and model-version mismatches are
// configuration errors: the caller must fail fast rather than return
// meaningless scores.
var (
	ErrDimensionMismatch    = NewDomainError(ErrCodeDimensionMismatch, "embedding vector has wrong dimension for index")
	ErrModelVersionMismatch = NewDomainError(ErrCodeModelMismatch, "embedding model version does not match index")
	ErrDocumentNotIndexed   = NewDomainError(ErrCodeInvalidOperation, "document has not been indexed yet")
)

// Generation errors
var (
	ErrNoRelevantContext    = NewDomainError(ErrCodeNoRelevantContext, "no relevant context found for the question")
	ErrGenerationTimeout    = NewDomainError(ErrCodeTimeout, "generation timed out")
	ErrUpstreamModelFailure = NewDomainError(ErrCodeUpstreamModel, "upstream model call failed")
)

// Not found errors
var (
	ErrDocumentNotFound = NewDomainError(ErrCodeNotFound, "document not found")
	ErrChunkNotFound    = NewDomainError(ErrCodeNotFound, "chunk not found")
	ErrIndexJobNotFound = NewDomainError(ErrCodeNotFound, "index job not found")
	ErrSegmentNotFound  = NewDomainError(ErrCodeNotFound, "topic segment not found")
	ErrArtifactNotFound = NewDomainError(ErrCodeNotFound, "artifact not found")
)

// Operation errors
var (
	ErrExtractionInProgress = NewDomainError(ErrCodeInvalidOperation, "extraction already in progress for document")
	ErrDocumentNotExtracted = NewDomainError(ErrCodeInvalidOperation, "document text has not been extracted")
)

// Validation errors
var (
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
	ErrInvalidTurnRole      = NewDomainError(ErrCodeValidation, "invalid conversation turn role")
	ErrInvalidArtifactKind  = NewDomainError(ErrCodeValidation, "invalid artifact kind")
)

// Authorization errors
var (
	ErrInvalidAPIKey = NewDomainError(ErrCodeUnauthorized, "invalid api key")
)
