// Package reactive 显式的依赖图：输入单元 Value 和派生单元 Calc。
//
// Value.Set 会立即把所有直接或间接依赖它的 Calc 标记为 dirty，
// Calc.Get 只在 dirty 时重新计算。图本身不加锁，由调用方保证同一时间只有一个 goroutine 使用。
package reactive

// Source 可以被 Calc 依赖的单元
type Source interface {
	addDependent(d dependent)
}

type dependent interface {
	invalidate()
}

// edges 保存下游依赖
type edges struct {
	dependents []dependent
}

func (e *edges) addDependent(d dependent) {
	e.dependents = append(e.dependents, d)
}

func (e *edges) notify() {
	for _, d := range e.dependents {
		d.invalidate()
	}
}

// Value 输入单元
type Value[T any] struct {
	edges
	v T
}

func NewValue[T any](v T) *Value[T] {
	return &Value[T]{v: v}
}

func (v *Value[T]) Get() T { return v.v }

// Set 写入新值。值相同也会使下游失效
func (v *Value[T]) Set(x T) {
	v.v = x
	v.notify()
}


// Calc 派生单元，依赖在创建时声明
type Calc[T any] struct {
	edges
	name    string
	fn      func() T
	v       T
	dirty   bool
	runs    int
	onStale func(name string)
}

// NewCalc 创建派生单元，初始为 dirty，第一次 Get 时计算
func NewCalc[T any](name string, fn func() T, sources ...Source) *Calc[T] {
	c := &Calc[T]{name: name, fn: fn, dirty: true}
	for _, s := range sources {
		s.addDependent(c)
	}
	return c
}

// Get 返回当前值，dirty 时先重新计算
func (c *Calc[T]) Get() T {
	if c.dirty {
		c.v = c.fn()
		c.dirty = false
		c.runs++
	}
	return c.v
}

func (c *Calc[T]) Name() string { return c.name }

func (c *Calc[T]) Dirty() bool { return c.dirty }

// Runs fn 被执行的次数
func (c *Calc[T]) Runs() int { return c.runs }

// OnStale 注册失效回调，每次被标记为 dirty 时调用
func (c *Calc[T]) OnStale(fn func(name string)) {
	c.onStale = fn
}

func (c *Calc[T]) invalidate() {
	c.dirty = true
	if c.onStale != nil {
		c.onStale(c.name)
	}
	c.notify()
}
