package model

// Stable numeric reason codes recorded on receipts when a processing step
// fails. Codes are part of the stored document contract and must not be
// renumbered.
const (
	ReasonCodePDFEngine        = 700
	ReasonCodeTokenizerIO      = 800
	ReasonCodeTokenizerMapping = 802
	ReasonCodeStore            = 900
	ReasonCodeBlobStorage      = 901
	ReasonCodeQueue            = 902
	ReasonCodeGeneric          = 903
	ReasonCodeVersionConflict  = 409
)

// PDFEngineReasonCode maps a renderer HTTP status to a reason code: client
// and server statuses are recorded as-is, anything else falls back to the
// generic renderer code.
func PDFEngineReasonCode(httpStatus int) int {
	if httpStatus >= 400 && httpStatus < 600 {
		return httpStatus
	}
	return ReasonCodePDFEngine
}

// NewReasonError builds a reason error, truncating oversized messages so a
// runaway upstream body cannot bloat the stored document.
func NewReasonError(code int, message string) *ReasonError {
	const maxLen = 2048
	if len(message) > maxLen {
		message = message[:maxLen]
	}
	return &ReasonError{Code: code, Message: message}
}
