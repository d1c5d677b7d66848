package util

import (
	"encoding/json"
	"fmt"
)

// Optional distinguishes an absent JSON field from its zero value. Patch
// requests use it so that only the fields a client sent are applied.
type Optional[T any] struct {
	Val   T
	IsSet bool
}

func Some[T any](v T) Optional[T] {
	return Optional[T]{Val: v, IsSet: true}
}

// ApplyTo overwrites *dst when the value is set and reports whether it did.
func (o Optional[T]) ApplyTo(dst *T) bool {
	if !o.IsSet {
		return false
	}
	*dst = o.Val
	return true
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.IsSet {
		return []byte("null"), nil
	}
	return json.Marshal(o.Val)
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		o.IsSet = false
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.IsSet = true
	o.Val = v
	return nil
}

func (o Optional[T]) String() string {
	if !o.IsSet {
		return ""
	}

	return fmt.Sprintf("%v", o.Val)
}
