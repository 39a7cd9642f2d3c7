package xerr

import (
	"errors"
	"fmt"
)

// 网关错误码
const (
	OK                  = 200
	BadRequest          = 400
	Unauthorized        = 401
	NotMember           = 403
	RecordNotFound      = 404
	InvalidRoom         = 422
	RateLimited         = 429
	ServerCommonError   = 500
	ProviderUnavailable = 503
)

type CodeError struct {
	Code  int    `json:"code"`
	Msg   string `json:"msg"`
	Cause error  `json:"-"`
}

func (e *CodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ErrCode:%d, Msg:%s, Cause:%v", e.Code, e.Msg, e.Cause)
	}
	return fmt.Sprintf("ErrCode:%d, Msg:%s", e.Code, e.Msg)
}

func (e *CodeError) Unwrap() error { return e.Cause }

// Is 按错误码比较，errors.Is(err, xerr.NewErrCode(xerr.Unauthorized)) 可用
func (e *CodeError) Is(target error) bool {
	t, ok := target.(*CodeError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func New(code int, msg string) error {
	return &CodeError{Code: code, Msg: msg}
}

func NewErrCode(code int) error {
	return &CodeError{Code: code, Msg: MapErrMsg(code)}
}

// Wrap 保留底层错误，对外只暴露 code + msg
func Wrap(cause error, code int, msg string) error {
	if msg == "" {
		msg = MapErrMsg(code)
	}
	return &CodeError{Code: code, Msg: msg, Cause: cause}
}

func As(err error) (*CodeError, bool) {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// CodeOf 非 CodeError 一律当 500
func CodeOf(err error) int {
	if err == nil {
		return OK
	}
	if ce, ok := As(err); ok {
		return ce.Code
	}
	return ServerCommonError
}

func MapErrMsg(code int) string {
	switch code {
	case BadRequest:
		return "Bad request"
	case Unauthorized, NotMember:
		return "Unauthorized"
	case RecordNotFound:
		return "Not found"
	case InvalidRoom:
		return "Invalid room"
	case RateLimited:
		return "Too many messages"
	case ProviderUnavailable:
		return "Matchmaking unavailable"
	case ServerCommonError:
		return "Internal error"
	default:
		return "Unknown error"
	}
}
