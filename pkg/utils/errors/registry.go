package errors

import (
	"fmt"
	"net/http"
	"slices"
	"sync"

	"google.golang.org/grpc/codes"
)

// kind 将类别映射到对外状态码。
type kind struct {
	category int
	http     int
	grpc     codes.Code
}

var (
	kindRequest   = kind{CategoryRequest, http.StatusBadRequest, codes.InvalidArgument}
	kindNotFound  = kind{CategoryResource, http.StatusNotFound, codes.NotFound}
	kindRateLimit = kind{CategoryRateLimit, http.StatusTooManyRequests, codes.ResourceExhausted}
	kindInternal  = kind{CategoryInternal, http.StatusInternalServerError, codes.Internal}
	kindNetwork   = kind{CategoryNetwork, http.StatusServiceUnavailable, codes.Unavailable}
	kindTimeout   = kind{CategoryTimeout, http.StatusGatewayTimeout, codes.DeadlineExceeded}
	kindConfig    = kind{CategoryConfig, http.StatusInternalServerError, codes.Internal}
)

// catalog 保存进程内所有已注册的错误码与服务名。
type catalog struct {
	mu       sync.RWMutex
	codes    map[int]*Errno
	services map[int]string
}

var registered = &catalog{codes: map[int]*Errno{}, services: map[int]string{}}

// Register 注册错误码，重复注册同一个码会 panic。
func Register(e *Errno) *Errno {
	registered.mu.Lock()
	defer registered.mu.Unlock()
	if prev, ok := registered.codes[e.Code]; ok {
		panic(fmt.Sprintf("errors: code %d already registered as %q", e.Code, prev.MessageEN))
	}
	registered.codes[e.Code] = e
	return e
}

// Lookup 按错误码查找已注册的 Errno。
func Lookup(code int) (*Errno, bool) {
	registered.mu.RLock()
	defer registered.mu.RUnlock()
	e, ok := registered.codes[code]
	return e, ok
}

// Codes 返回全部已注册的错误码，升序。
func Codes() []int {
	registered.mu.RLock()
	defer registered.mu.RUnlock()
	out := make([]int, 0, len(registered.codes))
	for c := range registered.codes {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// RegisterService 绑定服务码与服务名。同名重复注册无影响，换名会 panic。
func RegisterService(code int, name string) {
	registered.mu.Lock()
	defer registered.mu.Unlock()
	if prev, ok := registered.services[code]; ok && prev != name {
		panic(fmt.Sprintf("errors: service code %d already belongs to %q", code, prev))
	}
	registered.services[code] = name
}

// GetServiceName 返回服务码对应的服务名。
func GetServiceName(code int) (string, bool) {
	registered.mu.RLock()
	defer registered.mu.RUnlock()
	name, ok := registered.services[code]
	return name, ok
}

// NewError 创建并注册错误码。参数越界或缺少英文描述时 panic。
func NewError(service, category, sequence int, httpStatus int, grpcCode codes.Code, messageEN, messageZH string) *Errno {
	switch {
	case service < 0 || service > 99:
		panic(fmt.Sprintf("errors: service %d out of range 0-99", service))
	case category < 0 || category > 99:
		panic(fmt.Sprintf("errors: category %d out of range 0-99", category))
	case sequence < 0 || sequence > 999:
		panic(fmt.Sprintf("errors: sequence %d out of range 0-999", sequence))
	case messageEN == "":
		panic("errors: english message is required")
	}
	return Register(New(MakeCode(service, category, sequence), httpStatus, grpcCode, messageEN, messageZH))
}

func define(k kind, service, sequence int, en, zh string) *Errno {
	return NewError(service, k.category, sequence, k.http, k.grpc, en, zh)
}

// NewRequestErr 400
func NewRequestErr(service, sequence int, en, zh string) *Errno {
	return define(kindRequest, service, sequence, en, zh)
}

// NewNotFoundErr 404
func NewNotFoundErr(service, sequence int, en, zh string) *Errno {
	return define(kindNotFound, service, sequence, en, zh)
}

// NewRateLimitErr 429
func NewRateLimitErr(service, sequence int, en, zh string) *Errno {
	return define(kindRateLimit, service, sequence, en, zh)
}

// NewInternalErr 500
func NewInternalErr(service, sequence int, en, zh string) *Errno {
	return define(kindInternal, service, sequence, en, zh)
}

// NewNetworkErr 503
func NewNetworkErr(service, sequence int, en, zh string) *Errno {
	return define(kindNetwork, service, sequence, en, zh)
}

// NewTimeoutErr 504
func NewTimeoutErr(service, sequence int, en, zh string) *Errno {
	return define(kindTimeout, service, sequence, en, zh)
}

// NewConfigErr 500, 启动期配置错误。
func NewConfigErr(service, sequence int, en, zh string) *Errno {
	return define(kindConfig, service, sequence, en, zh)
}
