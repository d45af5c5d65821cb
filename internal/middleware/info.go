package middleware

import "context"

type infoKey struct{}

// requestInfo is filled in by inner handlers and read back by the
// outer middleware once the request completes.
type requestInfo struct {
	route  string
	userID string
}

// withRequestInfo reserves request info in ctx unless it exists.
func withRequestInfo(ctx context.Context) context.Context {
	if _, ok := ctx.Value(infoKey{}).(*requestInfo); ok {
		return ctx
	}
	return context.WithValue(ctx, infoKey{}, &requestInfo{})
}

func infoFrom(ctx context.Context) *requestInfo {
	info, _ := ctx.Value(infoKey{}).(*requestInfo)
	return info
}

// SetRoute records the matched route name for logging and metrics.
func SetRoute(ctx context.Context, name string) {
	if info := infoFrom(ctx); info != nil {
		info.route = name
	}
}

// RouteFromContext returns the matched route name, or "".
func RouteFromContext(ctx context.Context) string {
	if info := infoFrom(ctx); info != nil {
		return info.route
	}
	return ""
}

// SetUserID records the authenticated caller for the access log.
func SetUserID(ctx context.Context, userID string) {
	if info := infoFrom(ctx); info != nil {
		info.userID = userID
	}
}

// UserIDFromContext returns the recorded caller, or "".
func UserIDFromContext(ctx context.Context) string {
	if info := infoFrom(ctx); info != nil {
		return info.userID
	}
	return ""
}
