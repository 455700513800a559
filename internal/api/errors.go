package api

import (
	"context"
	"errors"
	"strconv"

	"connectrpc.com/connect"

	"repotutor/internal/apperr"
)

// UpstreamStatusHeader carries the hosting API's HTTP status on upstream
// failures.
const UpstreamStatusHeader = "Upstream-Status"

func codeOf(kind apperr.Kind) connect.Code {
	switch kind {
	case apperr.KindInvalidArgument, apperr.KindInvalidRepository:
		return connect.CodeInvalidArgument
	case apperr.KindPathEscape:
		return connect.CodePermissionDenied
	case apperr.KindUpstream:
		return connect.CodeUnavailable
	case apperr.KindNotFound:
		return connect.CodeNotFound
	case apperr.KindIndexNotReady:
		return connect.CodeFailedPrecondition
	default:
		return connect.CodeInternal
	}
}

// toConnect maps err onto a connect error holding only the caller-facing
// message. Context errors keep their own codes.
func toConnect(err error) *connect.Error {
	var ce *connect.Error
	if errors.As(err, &ce) {
		return ce
	}
	switch {
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, errors.New("request canceled"))
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, errors.New("request timed out"))
	}
	kind := apperr.KindOf(err)
	out := connect.NewError(codeOf(kind), errors.New(apperr.Message(err)))
	if s := apperr.StatusOf(err); s != 0 {
		out.Meta().Set(UpstreamStatusHeader, strconv.Itoa(s))
	}
	return out
}
