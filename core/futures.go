package core

import "context"

// Func adapts a run-to-completion closure into a Step that is Ready after
// one call.
func Func(f func(ctx context.Context)) Step {
	return func(cx *Context) Poll {
		f(cx.Context())
		return Ready
	}
}

// Yield returns a Step that gives its worker up n times before handing over
// to then. A nil then completes right away. The task is stepped n+1 times
// plus whatever then needs.
func Yield(n int, then Step) Step {
	remaining := n
	return func(cx *Context) Poll {
		if remaining > 0 {
			remaining--
			return cx.Yield()
		}
		if then == nil {
			return Ready
		}
		return then(cx)
	}
}

// Sequence runs steps one after another within a single task. Each one is
// driven to Ready before the next starts.
func Sequence(steps ...Step) Step {
	next := 0
	return func(cx *Context) Poll {
		for next < len(steps) {
			if steps[next](cx) == Pending {
				return Pending
			}
			next++
		}
		return Ready
	}
}

// Await suspends until j completes, then continues with then, passing the
// awaited task's error.
func Await(j *JoinHandle, then func(cx *Context, err error) Poll) Step {
	return func(cx *Context) Poll {
		p, err := j.Poll(cx)
		if p == Pending {
			return Pending
		}
		if then == nil {
			return Ready
		}
		return then(cx, err)
	}
}
