package script

import (
	"fmt"
	"math"

	"github.com/Shopify/go-lua"
)

func pushValue(L *lua.State, value any) {
	switch v := value.(type) {
	case nil:
		L.PushNil()
	case string:
		L.PushString(v)
	case bool:
		L.PushBoolean(v)
	case int:
		L.PushInteger(v)
	case int32:
		L.PushInteger(int(v))
	case int64:
		L.PushInteger(int(v))
	case uint:
		L.PushNumber(float64(v))
	case uint64:
		L.PushNumber(float64(v))
	case float32:
		L.PushNumber(float64(v))
	case float64:
		L.PushNumber(v)
	case []any:
		pushArray(L, v)
	case []string:
		arr := make([]any, len(v))
		for i, s := range v {
			arr[i] = s
		}
		pushArray(L, arr)
	case map[string]any:
		pushMap(L, v)
	case map[string]string:
		m := make(map[string]any, len(v))
		for k, s := range v {
			m[k] = s
		}
		pushMap(L, m)
	case map[string]float64:
		m := make(map[string]any, len(v))
		for k, f := range v {
			m[k] = f
		}
		pushMap(L, m)
	case fmt.Stringer:
		L.PushString(v.String())
	default:
		L.PushString(fmt.Sprintf("%v", v))
	}
}

func pushArray(L *lua.State, arr []any) {
	L.CreateTable(len(arr), 0)
	for i, item := range arr {
		L.PushInteger(i + 1)
		pushValue(L, item)
		L.SetTable(arrayTableIdx)
	}
}

func pushMap(L *lua.State, m map[string]any) {
	L.CreateTable(0, len(m))
	for k, val := range m {
		L.PushString(k)
		pushValue(L, val)
		L.SetTable(mapTableIdx)
	}
}

func toGo(L *lua.State, index int) any {
	switch L.TypeOf(index) {
	case lua.TypeBoolean:
		return L.ToBoolean(index)
	case lua.TypeNumber:
		return numberToGo(L, index)
	case lua.TypeString:
		s, _ := L.ToString(index)
		return s
	case lua.TypeTable:
		return tableToAny(L, index)
	default:
		return nil
	}
}

func numberToGo(L *lua.State, index int) any {
	num, _ := L.ToNumber(index)
	if num == math.Trunc(num) && math.Abs(num) < 1<<53 {
		return int(num)
	}
	return num
}

func tableToMap(L *lua.State, index int) map[string]any {
	res := map[string]any{}
	L.PushNil()
	for L.Next(index - 1) {
		if L.TypeOf(-2) == lua.TypeString {
			key, _ := L.ToString(-2)
			res[key] = toGo(L, -1)
		}
		L.Pop(1)
	}
	return res
}

func tableToAny(L *lua.State, index int) any {
	isArray := true
	length := 0

	L.PushNil()
	for L.Next(index - 1) {
		if L.TypeOf(-2) != lua.TypeNumber {
			isArray = false
			L.Pop(2)
			break
		}
		length++
		L.Pop(1)
	}

	if isArray && length > 0 {
		return toArray(L, index, length)
	}

	res := map[string]any{}
	L.PushNil()
	for L.Next(index - 1) {
		var key string
		if L.TypeOf(-2) == lua.TypeString {
			key, _ = L.ToString(-2)
		} else {
			key = fmt.Sprintf("%v", toGo(L, -2))
		}
		res[key] = toGo(L, -1)
		L.Pop(1)
	}
	return res
}

func toArray(L *lua.State, index, length int) []any {
	abs := index
	if index < 0 {
		abs = L.Top() + index + 1
	}
	arr := make([]any, length)
	for i := 1; i <= length; i++ {
		L.RawGetInt(abs, i)
		arr[i-1] = toGo(L, -1)
		L.Pop(1)
	}
	return arr
}
