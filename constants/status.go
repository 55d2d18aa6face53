package constants

// AttemptStatus is the canonical status for rows in extraction_attempt.
type AttemptStatus string

// Stable values (store these exact strings in DB).
const (
	AttemptStatusRunning AttemptStatus = "RUNNING" // in progress
	AttemptStatusTextOK  AttemptStatus = "TEXT_OK" // non-empty text produced
	AttemptStatusEmpty   AttemptStatus = "EMPTY"   // attempted, nothing extracted
	AttemptStatusFailed  AttemptStatus = "FAILED"  // terminal failure outside the extractor (read, hash)
)

// Method labels which strategy produced the final text.
type Method string

const (
	MethodNone        Method = "none"
	MethodPDFText     Method = "pdf-text"
	MethodPDFTextAlt  Method = "pdf-text-alt"
	MethodPDFOCR      Method = "pdf-ocr"
	MethodImageOCR    Method = "image-ocr"
	MethodWord        Method = "word"
	MethodSpreadsheet Method = "spreadsheet"
)
