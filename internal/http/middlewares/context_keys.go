package middlewares

// Keys stored on the gin context.
const (
	CtxRequestID = "request_id"
	CtxSession   = "auth.session"
)
