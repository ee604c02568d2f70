package utils

import (
	"github.com/bytedance/sonic"
)

// Marshal 将对象序列化为JSON字节数组
func Marshal(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

// Unmarshal 将JSON字节数组解析到指定对象
func Unmarshal(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}

