package models

import "fmt"

// ValidationError is one reason an incoming message was rejected. Codes are
// part of the wire contract.
type ValidationError struct {
	Code    string `json:"code" xml:"code"`
	Message string `json:"message" xml:"message"`
	Target  string `json:"target,omitempty" xml:"target,omitempty"`
}

func (e ValidationError) String() string {
	return e.Code + ": " + e.Message
}

// Validation error codes.
const (
	CodeAuthenticatedUserDoesNotHoldRequiredRole = "00001"
	CodeSenderIDDoesNotMatchAuthenticatedUser    = "00002"
	CodeSenderRoleTypeIsNotAuthorized            = "00003"
	CodeMessageIDNotUnique                       = "00101"
	CodeTransactionIDNotUnique                   = "00102"
	CodeEmptyMessageID                           = "00201"
	CodeEmptyTransactionID                       = "00202"
	CodeInvalidTransactionIDLength               = "00205"
	CodeSchemaValidationError                    = "00302"
	CodeInvalidReceiverID                        = "00303"
	CodeInvalidReceiverRole                      = "00304"
	CodeInvalidMessageIDLength                   = "00305"
	CodeNotSupportedMessageType                  = "00401"
	CodeNotSupportedProcessType                  = "00402"
	CodeInvalidBusinessType                      = "00403"
)

func AuthenticatedUserDoesNotHoldRequiredRole() ValidationError {
	return ValidationError{Code: CodeAuthenticatedUserDoesNotHoldRequiredRole,
		Message: "Authenticated user does not hold the required role type", Target: "sender_role"}
}

func SenderIDDoesNotMatchAuthenticatedUser() ValidationError {
	return ValidationError{Code: CodeSenderIDDoesNotMatchAuthenticatedUser,
		Message: "Sender id does not match id of current authenticated user", Target: "sender_number"}
}

func SenderRoleTypeIsNotAuthorized() ValidationError {
	return ValidationError{Code: CodeSenderRoleTypeIsNotAuthorized,
		Message: "Sender role type is not authorized to use this type of message", Target: "sender_role"}
}

func DuplicateMessageIDDetected(messageID string) ValidationError {
	return ValidationError{Code: CodeMessageIDNotUnique,
		Message: fmt.Sprintf("Message id '%s' is not unique", messageID), Target: "message_id"}
}

func DuplicateTransactionIDDetected(transactionID string) ValidationError {
	return ValidationError{Code: CodeTransactionIDNotUnique,
		Message: fmt.Sprintf("Transaction id '%s' is not unique and will not be processed", transactionID), Target: "transaction_id"}
}

func EmptyMessageID() ValidationError {
	return ValidationError{Code: CodeEmptyMessageID, Message: "Message id cannot be empty", Target: "message_id"}
}

func EmptyTransactionID() ValidationError {
	return ValidationError{Code: CodeEmptyTransactionID, Message: "Transaction id cannot be empty", Target: "transaction_id"}
}

func InvalidTransactionIDSize(transactionID string) ValidationError {
	return ValidationError{Code: CodeInvalidTransactionIDLength,
		Message: fmt.Sprintf("Transaction id '%s' must have a length of at most %d characters", transactionID, MaxIdentifierLength),
		Target:  "transaction_id"}
}

func InvalidMessageIDSize(messageID string) ValidationError {
	return ValidationError{Code: CodeInvalidMessageIDLength,
		Message: fmt.Sprintf("Message id '%s' must have a length of at most %d characters", messageID, MaxIdentifierLength),
		Target:  "message_id"}
}

func SchemaValidationError(detail string) ValidationError {
	return ValidationError{Code: CodeSchemaValidationError, Message: "Schema validation error: " + detail}
}

func InvalidReceiverID() ValidationError {
	return ValidationError{Code: CodeInvalidReceiverID, Message: "Invalid receiver id", Target: "receiver_number"}
}

func InvalidReceiverRole() ValidationError {
	return ValidationError{Code: CodeInvalidReceiverRole, Message: "Invalid receiver role", Target: "receiver_role"}
}

func NotSupportedMessageType(messageType string) ValidationError {
	return ValidationError{Code: CodeNotSupportedMessageType,
		Message: fmt.Sprintf("Message type '%s' is not supported", messageType), Target: "message_type"}
}

func NotSupportedProcessType(reason string) ValidationError {
	return ValidationError{Code: CodeNotSupportedProcessType,
		Message: fmt.Sprintf("Business reason '%s' is not supported", reason), Target: "business_reason"}
}

func InvalidBusinessType(businessType string) ValidationError {
	return ValidationError{Code: CodeInvalidBusinessType,
		Message: fmt.Sprintf("Business type '%s' is not supported", businessType), Target: "business_type"}
}
