package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// chainrag 服务错误码: 21 (业务服务范围 20-79)
//
// 对外暴露的错误类型与 HTTP 状态:
//   - ErrValidation           400 查询格式错误, 不重试
//   - ErrCanceled             499 调用方在完成前断开
//   - ErrOverloaded           429 准入控制拒绝
//   - ErrUpstreamUnavailable  503 向量库或模型不可达
//   - ErrStageTimeout         504 单阶段超时
//   - ErrAuthentication       502 远端模型拒绝本服务的凭证
//   - ErrEmptyResult          502 模型未产出可用文本 (降级响应)
//   - ErrDimensionMismatch    500 查询向量维度与向量库不一致
func init() {
	RegisterService(ServiceChainRAG, "chainrag")
}

var (
	// 请求参数错误 (类别 01)
	ErrValidation = NewRequestErr(ServiceChainRAG, 1, "Invalid query", "查询参数无效")

	// 499 沿用 nginx 的 client closed request 约定
	ErrCanceled = NewError(ServiceChainRAG, CategoryRequest, 2, 499, codes.Canceled,
		"Query canceled by caller", "查询已被调用方取消")

	// 远端凭证错误 (类别 02). 这是上游对本服务的拒绝, 不是调用方未认证, 因此返回 502.
	ErrAuthentication = NewError(ServiceChainRAG, CategoryAuth, 1, http.StatusBadGateway, codes.Unauthenticated,
		"Upstream model rejected credentials", "远端模型凭证无效")

	// 准入控制 (类别 06)
	ErrOverloaded = NewRateLimitErr(ServiceChainRAG, 1, "Too many in-flight queries", "并发查询过多")

	// 空结果 (类别 07)
	ErrEmptyResult = NewError(ServiceChainRAG, CategoryInternal, 1, http.StatusBadGateway, codes.Unavailable,
		"Model returned no usable text", "模型未返回有效内容")

	// 上游不可用 (类别 10)
	ErrUpstreamUnavailable = NewNetworkErr(ServiceChainRAG, 1, "Upstream service unavailable", "上游服务不可用")

	// 阶段超时 (类别 11)
	ErrStageTimeout = NewTimeoutErr(ServiceChainRAG, 1, "Pipeline stage timed out", "流水线阶段超时")

	// 配置错误 (类别 12)
	ErrDimensionMismatch = NewConfigErr(ServiceChainRAG, 1, "Embedding dimension does not match vector store", "向量维度与向量库不一致")
)
