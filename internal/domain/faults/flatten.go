package faults

import "github.com/clipwave/mediarelay/internal/domain/events"

// multiUnwrapper is satisfied by errors produced with errors.Join and by
// any composite error exposing its branches.
type multiUnwrapper interface {
	Unwrap() []error
}

// singleUnwrapper is satisfied by errors produced with fmt.Errorf("%w")
// and by Fault itself.
type singleUnwrapper interface {
	Unwrap() error
}

// FlattenChain expands an error and its causes into one flat ordered list
// of failure details, outermost first. Composite errors are expanded
// depth-first so a joined tree reads in discovery order. Faults contribute
// their diagnostic data; plain errors contribute their message only.
func FlattenChain(err error) []events.FailureDetail {
	var details []events.FailureDetail
	flatten(err, &details)
	return details
}

func flatten(err error, out *[]events.FailureDetail) {
	if err == nil {
		return
	}

	switch e := err.(type) {
	case *Fault:
		*out = append(*out, events.FailureDetail{Message: e.Message(), Data: e.Data()})
		flatten(e.Unwrap(), out)

	case multiUnwrapper:
		for _, branch := range e.Unwrap() {
			flatten(branch, out)
		}

	case singleUnwrapper:
		*out = append(*out, events.FailureDetail{Message: err.Error()})
		flatten(e.Unwrap(), out)

	default:
		*out = append(*out, events.FailureDetail{Message: err.Error()})
	}
}
