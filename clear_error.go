package sessync

import "fmt"

// ClearError reports a partially failed Clear: the generation bump and the
// entry delete are independent operations and either can fail alone.
type ClearError struct {
	Key     string
	BumpErr error
	DelErr  error
}

func (e *ClearError) Error() string {
	switch {
	case e.BumpErr != nil && e.DelErr != nil:
		return fmt.Sprintf("clear %q failed: gen bump and delete failed: bump=%v; delete=%v",
			e.Key, e.BumpErr, e.DelErr)
	case e.BumpErr != nil:
		return fmt.Sprintf("clear %q: gen bump failed: %v", e.Key, e.BumpErr)
	case e.DelErr != nil:
		return fmt.Sprintf("clear %q: delete failed: %v", e.Key, e.DelErr)
	default:
		return fmt.Sprintf("clear %q: unknown error", e.Key)
	}
}

func (e *ClearError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.BumpErr != nil {
		errs = append(errs, e.BumpErr)
	}
	if e.DelErr != nil {
		errs = append(errs, e.DelErr)
	}
	return errs
}
