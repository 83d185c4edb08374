package form

import "reflect"

// Tracker 表单脏值跟踪，基线为打开表单时的记录
type Tracker[T any] struct {
	baseline T
	current  T
}

// NewTracker 以初始记录作为基线
func NewTracker[T any](initial T) *Tracker[T] {
	return &Tracker[T]{baseline: initial, current: initial}
}

// Set 更新当前值
func (t *Tracker[T]) Set(v T) {
	t.current = v
}

// IsDirty 当前值与基线是否不同（深比较）
func (t *Tracker[T]) IsDirty() bool {
	return !reflect.DeepEqual(t.baseline, t.current)
}

// Reset 丢弃修改，回到基线
func (t *Tracker[T]) Reset() {
	t.current = t.baseline
}

// Commit 保存成功后以当前值作为新基线
func (t *Tracker[T]) Commit() {
	t.baseline = t.current
}

// Baseline 基线值
func (t *Tracker[T]) Baseline() T {
	return t.baseline
}

// Current 当前值
func (t *Tracker[T]) Current() T {
	return t.current
}

// Project 取出 record 中与 fields 同名的字段，用于和提交内容按字段比较
func Project(record map[string]interface{}, fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for key := range fields {
		if value, ok := record[key]; ok {
			out[key] = value
		} else {
			out[key] = nil
		}
	}
	return out
}

// Changed 返回 current 中与 baseline 不同的字段
func Changed(baseline, current map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for key, value := range current {
		if old, ok := baseline[key]; !ok || !reflect.DeepEqual(old, value) {
			out[key] = value
		}
	}
	return out
}
