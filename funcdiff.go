package funchook

import (
	"errors"
	"fmt"
	"reflect"
)

type funcDifferences struct {
	In  []*argDifference
	Out []*argDifference
}

func (d *funcDifferences) Error() error {
	errs := []error{}
	for i, arg := range d.In {
		if arg != nil {
			errs = append(errs, fmt.Errorf("argument %d: %v != %v", i, arg.A, arg.B))
		}
	}
	for i, out := range d.Out {
		if out != nil {
			errs = append(errs, fmt.Errorf("output %d: %v != %v", i, out.A, out.B))
		}
	}

	return errors.Join(errs...)
}

type argDifference struct {
	A reflect.Type
	B reflect.Type
}

func diffFuncs(a, b reflect.Value) *funcDifferences {
	at := a.Type()
	bt := b.Type()

	diff := funcDifferences{
		In:  make([]*argDifference, max(at.NumIn(), bt.NumIn())),
		Out: make([]*argDifference, max(at.NumOut(), bt.NumOut())),
	}

	for i := range diff.In {
		var ta, tb reflect.Type
		if i < at.NumIn() {
			ta = at.In(i)
		}
		if i < bt.NumIn() {
			tb = bt.In(i)
		}
		if ta != tb {
			diff.In[i] = &argDifference{A: ta, B: tb}
		}
	}

	for i := range diff.Out {
		var ta, tb reflect.Type
		if i < at.NumOut() {
			ta = at.Out(i)
		}
		if i < bt.NumOut() {
			tb = bt.Out(i)
		}
		if ta != tb {
			diff.Out[i] = &argDifference{A: ta, B: tb}
		}
	}

	return &diff
}
