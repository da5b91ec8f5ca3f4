package protocol

const (
	ErrBadRequest = "E_BAD_REQUEST"
	ErrNotFound   = "E_NOT_FOUND"
	ErrBusy       = "E_BUSY"
	ErrConflict   = "E_CONFLICT"
	ErrInternal   = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest: {},
	ErrNotFound:   {},
	ErrBusy:       {},
	ErrConflict:   {},
	ErrInternal:   {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// ErrorResponse is the JSON body of every non-2xx admin API reply.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
