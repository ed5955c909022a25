// Package dsl 提供基于 CEL 的物品过滤表达式。
package dsl
