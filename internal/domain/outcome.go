package domain

import "strconv"

// Outcome 是骰子朝上的点数（1..6）。
//
// 零值 OutcomeUnknown 表示“未知/无效”；构造函数统一返回 (Outcome, bool)，
// 调用方必须显式处理 ok=false 的分支，而不是靠零值判断。
type Outcome int

const OutcomeUnknown Outcome = 0

const (
	MinOutcome Outcome = 1
	MaxOutcome Outcome = 6
)

// ParseOutcome 校验整数是否为合法点数。
func ParseOutcome(n int) (Outcome, bool) {
	o := Outcome(n)
	if !o.Valid() {
		return OutcomeUnknown, false
	}
	return o, true
}

func (o Outcome) Valid() bool { return o >= MinOutcome && o <= MaxOutcome }

// Int 返回 *int 形式（Unknown => nil），用于 JSON 中的 nullable 字段。
func (o Outcome) Int() *int {
	if !o.Valid() {
		return nil
	}
	n := int(o)
	return &n
}

func (o Outcome) String() string {
	if !o.Valid() {
		return "unknown"
	}
	return strconv.Itoa(int(o))
}

// RandomBaseline 是六面骰随机猜测的期望准确率（百分比）。
const RandomBaseline = 100.0 / 6.0
