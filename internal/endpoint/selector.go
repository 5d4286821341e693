// Package endpoint 为一次出站调用挑选推理后端端点。
package endpoint

import (
	"errors"
	"math/rand"

	"pomelo/internal/config"
)

// ErrNoEndpoints 模型没有配置任何端点（配置错误，直接让请求失败）
var ErrNoEndpoints = errors.New("no endpoint configured for model")

// Select 按权重随机返回一个端点，未配置权重时等价于均匀随机
// 纯函数，无副作用
func Select(model *config.ModelConfig) (*config.EndpointConfig, error) {
	if model == nil || len(model.Endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	total := 0
	for i := range model.Endpoints {
		total += weightOf(&model.Endpoints[i])
	}

	n := rand.Intn(total)
	for i := range model.Endpoints {
		n -= weightOf(&model.Endpoints[i])
		if n < 0 {
			return &model.Endpoints[i], nil
		}
	}

	// total > 0 时循环必定命中，此处不会执行
	return &model.Endpoints[len(model.Endpoints)-1], nil
}

func weightOf(ep *config.EndpointConfig) int {
	if ep.Weight <= 0 {
		return 1
	}
	return ep.Weight
}
