package intake

// ErrorCode is the machine-readable error reported to the delivering client.
type ErrorCode string

// Error codes.
const (
	CodeInvalidRequest ErrorCode = "invalid_request"
	CodeInvalidKey     ErrorCode = "invalid_key"

	// Operational failures: the token may be valid but the receiver could not take it.
	CodeQueueUnavailable          ErrorCode = "queue_unavailable"
	CodeDuplicateStoreUnavailable ErrorCode = "duplicate_store_unavailable"
)

// Operational failure descriptions.
const (
	descQueueUnavailable          = "An error occurred when adding the event to the queue."
	descDuplicateStoreUnavailable = "An error occurred when checking for duplicated events."
)

// Result is the outcome of processing one token. Description is empty when absent.
type Result struct {
	Accepted    bool
	Code        ErrorCode
	Description string
	// Operational marks failures caused by the receiver rather than the token.
	Operational bool
}

func accepted() Result { return Result{Accepted: true} }

func rejected(code ErrorCode, description string) Result {
	return Result{Code: code, Description: description}
}

func unavailable(code ErrorCode, description string) Result {
	return Result{Code: code, Description: description, Operational: true}
}

// QueueUnavailable is the operational failure reported when a record cannot
// be admitted to the queue.
func QueueUnavailable() Result {
	return unavailable(CodeQueueUnavailable, descQueueUnavailable)
}
