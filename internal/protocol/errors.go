package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Field operation layer.
	ErrBadRequest = "E_BAD_REQUEST"
	ErrOutOfRange = "E_OUT_OF_RANGE"
	ErrNotReady   = "E_NOT_READY"
	ErrPersist    = "E_PERSIST"
	ErrInternal   = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadRequest:      {},
	ErrOutOfRange:      {},
	ErrNotReady:        {},
	ErrPersist:         {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
