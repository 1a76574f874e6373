// Package store 提供 chainrag 的向量存储层。
//
// 每个 VectorStore 绑定一个集合，提供查询路径需要的 Search，
// 以及摄取侧使用的 Upsert/DeleteSource。分数统一为"越大越相似"。
package store
