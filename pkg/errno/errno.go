package errno

// Errno defines the error code logic
type Errno struct {
	Code    int
	Message string
}

func (e Errno) Error() string {
	return e.Message
}

// Decode tries to convert an error to Errno
func Decode(err error) (int, string) {
	if err == nil {
		return OK.Code, OK.Message
	}

	switch typed := err.(type) {
	case *Errno:
		return typed.Code, typed.Message
	case Errno:
		return typed.Code, typed.Message
	default:
		return InternalServerError.Code, err.Error()
	}
}

// Common Errors
var (
	OK                  = Errno{Code: 0, Message: "Success"}
	InternalServerError = Errno{Code: 10001, Message: "Internal server error"}
	ErrBind             = Errno{Code: 10002, Message: "Error occurred while binding the request body to the struct"}
	ErrDatabase         = Errno{Code: 10004, Message: "Database error"}
)

// Business Errors (20000+)
var (
	ErrAccountNotFound = Errno{Code: 20101, Message: "Account not found"}
	ErrTargetNotFound  = Errno{Code: 20102, Message: "Transaction target not found"}
	ErrFlowNotFound    = Errno{Code: 20103, Message: "Transaction flow not found"}

	// ErrFeeLevelNotOffered 调用方传入了引擎未提供的手续费档位，属于调用契约错误
	ErrFeeLevelNotOffered = Errno{Code: 20201, Message: "Fee level is not offered by this engine"}
	ErrFlowBusy           = Errno{Code: 20202, Message: "Another lifecycle call is in flight for this transaction"}
	ErrNotValidated       = Errno{Code: 20203, Message: "Transaction must pass validation before execution"}
	ErrAlreadyExecuted    = Errno{Code: 20204, Message: "Transaction has already been executed"}

	ErrQuoteUnavailable  = Errno{Code: 20301, Message: "Price quote is unavailable"}
	ErrLimitsUnavailable = Errno{Code: 20302, Message: "Transfer limits are unavailable"}
	ErrInvoiceRejected   = Errno{Code: 20303, Message: "Invoice backend rejected the transaction"}
	ErrApprovalPending   = Errno{Code: 20304, Message: "Bank authorisation URL was not issued in time"}
)
