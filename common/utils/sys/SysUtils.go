package sys

import (
	"cncplan/common/logger"
	"runtime/debug"

	"github.com/petermattis/goid"
)

func GetGID() uint64 {
	id := goid.Get()
	return uint64(id)
}

// CatchPanic must be deferred directly. It logs the panic with the goroutine
// id and stack, then hands the recovered value to onPanic (which may be nil).
func CatchPanic(onPanic func(err interface{})) {
	if err := recover(); err != nil {
		logger.Error("panic:", GetGID(), err, string(debug.Stack()))
		if onPanic != nil {
			onPanic(err)
		}
	}
}

// DeepCopyMap copies nested map[string]interface{} values; other values are
// copied by assignment.
func DeepCopyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	copyMap := make(map[string]interface{}, len(m))
	for k, v := range m {
		if nestedMap, ok := v.(map[string]interface{}); ok {
			copyMap[k] = DeepCopyMap(nestedMap)
		} else {
			copyMap[k] = v
		}
	}
	return copyMap
}
