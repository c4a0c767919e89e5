package facade

import (
	"errors"
	"fmt"

	amerrors "github.com/aman-cerp/agentmem/internal/errors"
)

// errUnknownVerb and errUnknownAction back the façade's own validation
// failures, distinct from errors bubbling up out of the memory core.
func errUnknownVerb(verb string) error {
	return amerrors.Validation(fmt.Sprintf("unknown verb %q", verb))
}

func errUnknownAction(verb, action string) error {
	return amerrors.Validation(fmt.Sprintf("unknown action %q for verb %q", action, verb))
}

// errResult converts err into the boundary contract of spec §6/§7: every
// tool call returns a single structured value, never an escaping error.
func errResult(err error) Result {
	if err == nil {
		return Result{}
	}
	var me *amerrors.MemoryError
	if errors.As(err, &me) {
		return Result{IsError: true, Message: me.Message, Kind: string(me.Kind)}
	}
	return Result{IsError: true, Message: err.Error(), Kind: string(amerrors.KindInternal)}
}
