package errors

// Services (AA).
const (
	ServiceCommon   = 0
	ServiceChainRAG = 21
)

// Categories (BB). Client categories sort below CategoryInternal.
const (
	CategoryRequest   = 1
	CategoryAuth      = 2
	CategoryResource  = 4
	CategoryRateLimit = 6
	CategoryInternal  = 7
	CategoryNetwork   = 10
	CategoryTimeout   = 11
	CategoryConfig    = 12
)

const (
	serviceUnit  = 100000
	categoryUnit = 1000
)

// MakeCode composes AABBCCC.
func MakeCode(service, category, sequence int) int {
	return service*serviceUnit + category*categoryUnit + sequence
}

// ParseCode splits a code into its three parts.
func ParseCode(code int) (service, category, sequence int) {
	return code / serviceUnit, GetCategory(code), code % categoryUnit
}

// GetCategory returns BB.
func GetCategory(code int) int {
	return code % serviceUnit / categoryUnit
}

// IsClientError reports a category answered with a 4xx status.
func IsClientError(code int) bool {
	c := GetCategory(code)
	return c >= CategoryRequest && c < CategoryInternal
}

// IsServerError reports a category answered with a 5xx status.
func IsServerError(code int) bool {
	return GetCategory(code) >= CategoryInternal
}
