package outbound

import "strings"

// 发送优先级：数值越小越先发（ZPOPMIN 取最小 score）
const (
	// PriorityEmergency 紧急（告警、停机指令）
	PriorityEmergency = 1
	// PriorityHigh 高优先级（应答、控制指令）
	PriorityHigh = 2
	// PriorityNormal 普通业务数据
	PriorityNormal = 3
	// PriorityLow 批量数据
	PriorityLow = 4
	// PriorityBackground 信标、定期同步
	PriorityBackground = 5
)

var priorityNames = map[string]int{
	"emergency":  PriorityEmergency,
	"high":       PriorityHigh,
	"normal":     PriorityNormal,
	"low":        PriorityLow,
	"background": PriorityBackground,
}

// ParsePriority 解析优先级名称，空串为 normal
func ParsePriority(name string) (int, bool) {
	if name == "" {
		return PriorityNormal, true
	}
	p, ok := priorityNames[strings.ToLower(name)]
	return p, ok
}

// ClampPriority 将数值优先级收敛到合法区间
func ClampPriority(p int) int {
	switch {
	case p < PriorityEmergency:
		return PriorityEmergency
	case p > PriorityBackground:
		return PriorityBackground
	default:
		return p
	}
}
