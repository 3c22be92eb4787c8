package ctrlffi

import (
	"unsafe"
)

// requiredTargets is the number of host targets a call needs. With
// arguments the return target is always present, even for void; without
// arguments it is present only when there is a value to return.
func requiredTargets(argc int, ret TypeID) int {
	if argc > 0 {
		return argc + 1
	}
	if ret != Void {
		return 1
	}
	return 0
}

// Call invokes the function with the given targets: targets[0] receives
// the return value and targets[1:] are the arguments in order. After the
// call every assignable target receives the native value of its slot.
// Extra targets are ignored.
func (c *Catalog) Call(id FunctionID, targets ...Arg) error {
	fn, err := c.function(id)
	if err != nil {
		return err
	}
	argc := len(fn.args)
	if need := requiredTargets(argc, fn.ret.ID); len(targets) < need {
		return newError(InvalidArgument, "call", "%s needs %d targets, got %d", fn.symbol, need, len(targets))
	}

	engine, err := c.ffi()
	if err != nil {
		return err
	}

	// slots for the return value and each argument, then the argument vector
	n := argc + 1
	arena := c.heap.alloc(uintptr(n)*slotSize+uintptr(n)*pointerSize, true)
	if arena == nil {
		return newError(UnsupportedOperation, "call", "cannot allocate %d slots", n)
	}
	defer c.heap.free(arena)

	slots := make([]*slot, n)
	slots[0] = newSlot(fn.ret, arena, c.heap)
	for i, d := range fn.args {
		slots[i+1] = newSlot(d, unsafe.Add(arena, (i+1)*slotSize), c.heap)
	}
	defer func() {
		for _, s := range slots {
			s.release()
		}
	}()

	avalue := unsafe.Add(arena, n*slotSize)
	vec := unsafe.Slice((*unsafe.Pointer)(avalue), n)
	for i := 1; i < n; i++ {
		if isNilArg(targets[i]) {
			return newError(InvalidArgument, "call", "argument %d of %s is nil", i, fn.symbol)
		}
		if err := slots[i].set(targets[i].Value()); err != nil {
			return wrapError(InvalidArgument, "call", err, "argument %d of %s", i, fn.symbol)
		}
		vec[i-1] = slots[i].argPtr()
	}

	c.log.Debug("calling function", "name", fn.symbol, "library", fn.library)
	engine.invoke(fn.desc, fn.addr, slots[0].mem, avalue)
	narrowReturn(slots[0])

	for i, s := range slots {
		if i >= len(targets) {
			break
		}
		v, ok := s.get()
		if writeBack(targets[i], v, ok) == SkippedNotAssignable {
			c.log.Debug("target not assignable", "name", fn.symbol, "position", i)
		}
	}
	return nil
}
