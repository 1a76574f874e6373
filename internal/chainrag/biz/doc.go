// Package biz 提供 chainrag 查询流水线的业务逻辑层。
//
// 一次查询严格按顺序经过以下阶段：
//   - Embedder: 将查询文本转换为向量，并校验维度与向量库一致
//   - Retriever: 向量检索 top-k 文档块，去重并按分数排序
//   - ReasoningStage: 本地推理模型基于上下文给出推理过程
//   - SynthesisStage: 远端模型基于推理过程与上下文给出最终答案
//
// QueryPipeline 组合以上组件，是唯一决定重试与超时的地方；
// 各阶段只返回带类别的错误，由流水线在边界处映射为 Errno。
package biz
