package utils

import (
	"github.com/duke-git/lancet/v2/slice"
)

// SliceContains 判断切片是否包含元素
func SliceContains[T comparable](s []T, item T) bool {
	return slice.Contain(s, item)
}

// SliceUnique 切片去重，保持首次出现顺序
func SliceUnique[T comparable](s []T) []T {
	return slice.Unique(s)
}
