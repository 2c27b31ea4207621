package cache

import (
	"fmt"
	"reflect"
	"sort"
)

// Sizer 由值自己声明占用字节数，估算器优先使用它。
type Sizer interface {
	CacheSize() int64
}

const (
	defaultEntrySize = 64 // 无法识别的类型的保守估计
	stringHeader     = 16
	sliceHeader      = 24
	mapHeader        = 48
	mapEntryOverhead = 16 // 每个 map 元素的桶开销
	pointerSize      = 8
	interfaceSize    = 16

	maxDepth    = 6    // 递归深度上限
	sampleLimit = 8    // 集合最多抽样的元素数
	visitBudget = 4096 // 单次估算最多访问的节点数
)

// sizeEstimator 近似估算任意值的内存占用。
// 集合按 "头部 + 元素数 x (单元素开销 + 抽样均值)" 计算，
// 不做全量递归，深度与访问节点数都有上限。
type sizeEstimator struct {
	override func(interface{}) int64
}

// estimate 返回估算值；遍历中发生 panic 时返回默认大小和错误，调用方负责记录。
func (s *sizeEstimator) estimate(value interface{}) (size int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			size = defaultEntrySize
			err = fmt.Errorf("size estimation panicked for %T: %v", value, r)
		}
	}()

	if s.override != nil {
		if n := s.override(value); n >= 0 {
			return n, nil
		}
	}
	if value == nil {
		return 0, nil
	}
	w := &sizeWalker{budget: visitBudget}
	return w.walk(reflect.ValueOf(value), 0), nil
}

type sizeWalker struct {
	budget int
}

var sizerType = reflect.TypeOf((*Sizer)(nil)).Elem()

func (w *sizeWalker) walk(v reflect.Value, depth int) int64 {
	if !v.IsValid() {
		return 0
	}
	t := v.Type()
	w.budget--
	if depth > maxDepth || w.budget <= 0 {
		return int64(t.Size())
	}

	if t.Implements(sizerType) && v.CanInterface() && !isNilable(v) {
		if n := v.Interface().(Sizer).CacheSize(); n >= 0 {
			return n
		}
	}

	switch v.Kind() {
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return int64(t.Size())

	case reflect.String:
		return stringHeader + int64(v.Len())

	case reflect.Pointer:
		if v.IsNil() {
			return pointerSize
		}
		return pointerSize + w.walk(v.Elem(), depth+1)

	case reflect.Interface:
		if v.IsNil() {
			return interfaceSize
		}
		return interfaceSize + w.walk(v.Elem(), depth+1)

	case reflect.Struct:
		var total int64
		for i := 0; i < v.NumField(); i++ {
			total += w.walk(v.Field(i), depth+1)
		}
		// 字段对齐填充
		if padded := int64(t.Size()); padded > total {
			return padded
		}
		return total

	case reflect.Slice:
		if v.IsNil() {
			return sliceHeader
		}
		if t.Elem().Kind() == reflect.Uint8 {
			return sliceHeader + int64(v.Cap())
		}
		return sliceHeader + w.sequence(v, depth)

	case reflect.Array:
		return w.sequence(v, depth)

	case reflect.Map:
		if v.IsNil() {
			return pointerSize
		}
		return mapHeader + w.mapping(v, depth)

	default:
		// chan, func, unsafe.Pointer 等
		return defaultEntrySize
	}
}

// sequence 估算 slice/array 元素部分：抽样均值 x 元素个数
func (w *sizeWalker) sequence(v reflect.Value, depth int) int64 {
	n := v.Len()
	if n == 0 {
		return 0
	}
	elem := v.Type().Elem()
	if isFixedSize(elem.Kind()) {
		return int64(n) * int64(elem.Size())
	}

	samples := n
	if samples > sampleLimit {
		samples = sampleLimit
	}
	step := n / samples
	var sum int64
	for i := 0; i < samples; i++ {
		sum += w.walk(v.Index(i*step), depth+1)
	}
	if samples == n {
		return sum
	}
	return int64(n) * (sum / int64(samples))
}

// mapping 估算 map 元素部分。map 遍历顺序随机，超过抽样上限时
// 按排序后的键等距抽样以保证结果确定；键不可排序时退化为静态类型大小。
func (w *sizeWalker) mapping(v reflect.Value, depth int) int64 {
	n := v.Len()
	if n == 0 {
		return 0
	}
	t := v.Type()
	if isFixedSize(t.Key().Kind()) && isFixedSize(t.Elem().Kind()) {
		return int64(n) * (mapEntryOverhead + int64(t.Key().Size()+t.Elem().Size()))
	}

	var sum int64
	if n <= sampleLimit {
		iter := v.MapRange()
		for iter.Next() {
			sum += w.walk(iter.Key(), depth+1) + w.walk(iter.Value(), depth+1)
		}
		return int64(n)*mapEntryOverhead + sum
	}

	keys := v.MapKeys()
	if !sortKeys(keys) {
		return int64(n) * (mapEntryOverhead + int64(t.Key().Size()+t.Elem().Size()))
	}
	step := n / sampleLimit
	for i := 0; i < sampleLimit; i++ {
		k := keys[i*step]
		sum += w.walk(k, depth+1) + w.walk(v.MapIndex(k), depth+1)
	}
	return int64(n) * (mapEntryOverhead + sum/sampleLimit)
}

func sortKeys(keys []reflect.Value) bool {
	if len(keys) == 0 {
		return true
	}
	var less func(a, b reflect.Value) bool
	switch keys[0].Kind() {
	case reflect.String:
		less = func(a, b reflect.Value) bool { return a.String() < b.String() }
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		less = func(a, b reflect.Value) bool { return a.Int() < b.Int() }
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		less = func(a, b reflect.Value) bool { return a.Uint() < b.Uint() }
	default:
		return false
	}
	sort.Slice(keys, func(i, j int) bool { return less(keys[i], keys[j]) })
	return true
}

func isFixedSize(k reflect.Kind) bool {
	switch k {
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	default:
		return false
	}
}

func isNilable(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	default:
		return false
	}
}
