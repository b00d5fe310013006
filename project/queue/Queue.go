package queue

import (
	"container/list"
	"sync"
)

// Queue is an unbounded FIFO safe for concurrent use. The stepper link uses
// it to decouple frame encoding from the port writer.
type Queue[T any] struct {
	rows *list.List
	lock sync.Locker
}

func NewQueue[T any]() *Queue[T] {
	self := Queue[T]{}
	self.rows = list.New()
	self.lock = &sync.Mutex{}
	return &self
}

func (self *Queue[T]) PutNowait(data T) {
	self.lock.Lock()
	defer self.lock.Unlock()
	self.rows.PushBack(data)
}

// GetNowait pops the oldest element. ok is false when the queue is empty.
func (self *Queue[T]) GetNowait() (data T, ok bool) {
	self.lock.Lock()
	defer self.lock.Unlock()
	front := self.rows.Front()
	if front == nil {
		return data, false
	}
	self.rows.Remove(front)
	return front.Value.(T), true
}

func (self *Queue[T]) IsEmpty() bool {
	self.lock.Lock()
	defer self.lock.Unlock()
	return !(self.rows.Len() > 0)
}

func (self *Queue[T]) Len() int {
	self.lock.Lock()
	defer self.lock.Unlock()
	return self.rows.Len()
}
