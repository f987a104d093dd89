package logging

import "log/slog"

// Common field names for consistent logging across services.
const (
	FieldService      = "service"
	FieldActorNumber  = "actor_number"
	FieldActorRole    = "actor_role"
	FieldMessageID    = "message_id"
	FieldBundleID     = "bundle_id"
	FieldDocumentType = "document_type"
	FieldFormat       = "format"
	FieldMethod       = "method"
	FieldPath         = "path"
	FieldStatus       = "status"
	FieldDuration     = "duration_ms"
	FieldError        = "error"
	FieldCount        = "count"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// ActorNumber returns a slog attribute for a market actor number (GLN/EIC).
func ActorNumber(number string) slog.Attr {
	return slog.String(FieldActorNumber, number)
}

// ActorRole returns a slog attribute for a market role code.
func ActorRole(role string) slog.Attr {
	return slog.String(FieldActorRole, role)
}

// MessageID returns a slog attribute for a market document message id.
func MessageID(id string) slog.Attr {
	return slog.String(FieldMessageID, id)
}

// BundleID returns a slog attribute for an outgoing bundle id.
func BundleID(id string) slog.Attr {
	return slog.String(FieldBundleID, id)
}

// DocumentType returns a slog attribute for a document type name.
func DocumentType(name string) slog.Attr {
	return slog.String(FieldDocumentType, name)
}

// Format returns a slog attribute for a document wire format.
func Format(name string) slog.Attr {
	return slog.String(FieldFormat, name)
}

// Method returns a slog attribute for the HTTP method.
func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

// Path returns a slog attribute for the HTTP path.
func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

// Status returns a slog attribute for the HTTP status code.
func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Duration returns a slog attribute for duration in milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Count returns a slog attribute for a count of items.
func Count(n int) slog.Attr {
	return slog.Int(FieldCount, n)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}
