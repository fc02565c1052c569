package service

import "time"

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

func SystemClock() Clock { return systemClock{} }

func orSystem(c Clock) Clock {
	if c == nil {
		return SystemClock()
	}
	return c
}
