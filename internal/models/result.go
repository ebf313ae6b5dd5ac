// internal/models/result.go
package models

// OperationResult 校验级失败的结构化返回值
// 调用方按 Success 分支处理，不走 error 通道（见错误处理约定）
type OperationResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// OK 返回成功结果
func OK() OperationResult {
	return OperationResult{Success: true}
}

// Failed 返回带原因的失败结果
func Failed(reason string) OperationResult {
	return OperationResult{Success: false, Error: reason}
}

// ReconcileDiagnostics 一次合并/重建过程中被静默过滤的异常计数
// 最终一致窗口内悬空引用属预期现象，只记录不报错
type ReconcileDiagnostics struct {
	DroppedCharacterRefs int `json:"dropped_character_refs"`
	DroppedLocationRefs  int `json:"dropped_location_refs"`
	DroppedStaleLocal    int `json:"dropped_stale_local"`
	DroppedTombstoned    int `json:"dropped_tombstoned"`
}
