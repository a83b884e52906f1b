package errors

// Kind names the taxonomy bucket err falls into. Batch reports use these
// names in their failed list; unknown errors map to "Error".
func Kind(err error) string {
	switch {
	case IsFetchError(err):
		return "FetchError"
	case IsParseError(err):
		return "ParseError"
	case IsDuplicateWorkError(err):
		return "DuplicateWorkError"
	case IsPersistenceError(err):
		return "PersistenceError"
	default:
		return "Error"
	}
}
