package orderstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Flag 履约状态位索引，顺序固定
type Flag int

const (
	FlagConfirmed Flag = iota
	FlagPayed
	FlagSent
	FlagDelivered
)

// Max 四位状态可表示的最大整数
const Max = 15

// Flags 按编码顺序排列的全部状态位（高位在前）
var Flags = [4]Flag{FlagConfirmed, FlagPayed, FlagSent, FlagDelivered}

var flagNames = [4]string{"confirmed", "payed", "sent", "delivered"}

var (
	// ErrOutOfRange 状态整数超出 [0,15]
	ErrOutOfRange = errors.New("order state out of range")
	// ErrUnknownFlag 未知状态位
	ErrUnknownFlag = errors.New("unknown order state flag")
)

// String 状态位名称
func (f Flag) String() string {
	if !f.Valid() {
		return fmt.Sprintf("flag(%d)", int(f))
	}
	return flagNames[f]
}

// Valid 是否为已知状态位
func (f Flag) Valid() bool {
	return f >= FlagConfirmed && f <= FlagDelivered
}

// ParseFlag 根据名称解析状态位
func ParseFlag(name string) (Flag, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for i, n := range flagNames {
		if n == normalized {
			return Flag(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFlag, name)
}

// State 订单履约状态，按 Flags 顺序索引
type State [4]bool

// Confirmed 是否已确认
func (s State) Confirmed() bool { return s[FlagConfirmed] }

// Payed 是否已支付
func (s State) Payed() bool { return s[FlagPayed] }

// Sent 是否已发货
func (s State) Sent() bool { return s[FlagSent] }

// Delivered 是否已送达
func (s State) Delivered() bool { return s[FlagDelivered] }

// Has 读取指定状态位
func (s State) Has(f Flag) bool {
	if !f.Valid() {
		return false
	}
	return s[f]
}

// With 返回设置了指定状态位的新状态
func (s State) With(f Flag, on bool) State {
	if f.Valid() {
		s[f] = on
	}
	return s
}

// Decode 将整数按四位二进制（高位在前）解码为状态，只取低四位
func Decode(n int) State {
	var s State
	for i, f := range Flags {
		shift := len(Flags) - 1 - i
		s[f] = (n>>shift)&1 == 1
	}
	return s
}

// Encode 将状态编码为整数：confirmed*8 + payed*4 + sent*2 + delivered
func Encode(s State) int {
	n := 0
	for _, f := range Flags {
		n <<= 1
		if s[f] {
			n |= 1
		}
	}
	return n
}

// Toggle 翻转单个状态位，返回新状态及其编码
func Toggle(s State, f Flag) (State, int) {
	next := s.With(f, !s.Has(f))
	return next, Encode(next)
}

// Valid 判断整数是否为合法状态编码
func Valid(n int) bool {
	return n >= 0 && n <= Max
}

// Parse 在信任边界处解码，超出范围返回 ErrOutOfRange
func Parse(n int) (State, error) {
	if !Valid(n) {
		return State{}, fmt.Errorf("%w: %d", ErrOutOfRange, n)
	}
	return Decode(n), nil
}

type stateJSON struct {
	Confirmed bool `json:"confirmed"`
	Payed     bool `json:"payed"`
	Sent      bool `json:"sent"`
	Delivered bool `json:"delivered"`
}

// MarshalJSON 输出对象形式
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(stateJSON{
		Confirmed: s.Confirmed(),
		Payed:     s.Payed(),
		Sent:      s.Sent(),
		Delivered: s.Delivered(),
	})
}

// UnmarshalJSON 读取对象形式
func (s *State) UnmarshalJSON(data []byte) error {
	var raw stateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = State{}.
		With(FlagConfirmed, raw.Confirmed).
		With(FlagPayed, raw.Payed).
		With(FlagSent, raw.Sent).
		With(FlagDelivered, raw.Delivered)
	return nil
}

// String 以二进制字符串展示，例如 1010
func (s State) String() string {
	return fmt.Sprintf("%04b", Encode(s))
}
