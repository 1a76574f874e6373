package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// OK represents a successful operation.
var OK = Register(&Errno{
	Code:      0,
	HTTP:      http.StatusOK,
	GRPCCode:  codes.OK,
	MessageEN: "Success",
	MessageZH: "成功",
})

// 通用错误码 (服务代码 00)
var (
	ErrRouteNotFound      = NewNotFoundErr(ServiceCommon, 4, "Route not found", "路由不存在")
	ErrTooManyRequests    = NewRateLimitErr(ServiceCommon, 0, "Too many requests", "请求过于频繁")
	ErrInternal           = NewInternalErr(ServiceCommon, 0, "Internal server error", "服务器内部错误")
	ErrPanic              = NewInternalErr(ServiceCommon, 2, "Internal panic", "服务内部异常")
	ErrServiceUnavailable = NewNetworkErr(ServiceCommon, 0, "Service unavailable", "服务不可用")

	ErrRequestTooLarge = NewError(ServiceCommon, CategoryRequest, 5, http.StatusRequestEntityTooLarge, codes.InvalidArgument,
		"Request body too large", "请求体过大")
)
