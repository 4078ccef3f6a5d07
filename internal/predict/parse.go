// Package predict 把模型的自由文本回复解析为点数。
package predict

import (
	"strconv"
	"strings"

	"github.com/John-Robertt/dicebench/internal/domain"
)

// Parse 去掉首尾空白后按十进制整数解析，只接受 1..6。
// 解析失败或超出范围时返回 ok=false；不会 panic，也不会返回 error。
//
// 注意：这里故意不从长文本里“挑数字”。提示词要求模型只回复一个数字，
// 不遵守格式本身就应计为无效预测。
func Parse(reply string) (domain.Outcome, bool) {
	s := strings.TrimSpace(reply)
	if s == "" {
		return domain.OutcomeUnknown, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return domain.OutcomeUnknown, false
	}
	return domain.ParseOutcome(n)
}
