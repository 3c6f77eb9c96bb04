package module

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Define static errors
var (
	ErrModuleParameter = errors.New("module parameter mismatch")
	ErrInvalidModule   = errors.New("invalid module definition")
	ErrUnknownVariable = errors.New("unknown module variable")
	ErrUnknownExport   = errors.New("unknown module export")
	ErrNotRegistered   = errors.New("module is not registered")
)

// ParameterError reports a single bad binding.
type ParameterError struct {
	Name string
	Want ParamKind
	Got  ParamKind
}

// ModuleParameterError reports every difference between the declared parameters and the
// supplied bindings of an Apply call.
type ModuleParameterError struct {
	Module     string
	Missing    []string
	Unexpected []string
	Mismatched []ParameterError
}

func (e *ModuleParameterError) Error() string {
	var parts []string

	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}

	if len(e.Unexpected) > 0 {
		parts = append(parts, "unexpected "+strings.Join(e.Unexpected, ", "))
	}

	for _, m := range e.Mismatched {
		parts = append(parts, fmt.Sprintf("%s is %s, got %s", m.Name, m.Want, m.Got))
	}

	return fmt.Sprintf("module %s: parameters: %s", e.Module, strings.Join(parts, "; "))
}

// Is matches ErrModuleParameter.
func (e *ModuleParameterError) Is(target error) bool {
	return target == ErrModuleParameter
}

func (e *ModuleParameterError) empty() bool {
	return len(e.Missing) == 0 && len(e.Unexpected) == 0 && len(e.Mismatched) == 0
}

func (e *ModuleParameterError) sort() {
	sort.Strings(e.Missing)
	sort.Strings(e.Unexpected)
	sort.Slice(e.Mismatched, func(i, j int) bool { return e.Mismatched[i].Name < e.Mismatched[j].Name })
}
