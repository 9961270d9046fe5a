// Copyright (C) 2022  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package containers

import "encoding/json"

// Optional is a presence-tagged value, for struct fields where "not
// set" and "set to the zero value" need to be told apart (e.g. a JSON
// config field that is only sometimes present).
type Optional[T any] struct {
	OK  bool
	Val T
}

func Some[T any](v T) Optional[T] { return Optional[T]{OK: true, Val: v} }

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if !o.OK {
		return []byte("null"), nil
	}
	return json.Marshal(o.Val)
}

func (o *Optional[T]) UnmarshalJSON(dat []byte) error {
	if string(dat) == "null" {
		*o = Optional[T]{}
		return nil
	}
	if err := json.Unmarshal(dat, &o.Val); err != nil {
		return err
	}
	o.OK = true
	return nil
}
