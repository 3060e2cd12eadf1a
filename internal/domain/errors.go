package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("unique constraint conflict")
	ErrStorage    = errors.New("storage error")
)

// StorageError 后端不可达或语句执行失败
type StorageError struct {
	Op  string
	Err error
}

func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// PartialBatchError 批量处理中途失败；Committed 之前的记录已经落库
type PartialBatchError struct {
	Committed int
	Err       error
}

func (e *PartialBatchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("batch aborted after %d records", e.Committed)
	}
	return e.Err.Error()
}

func (e *PartialBatchError) Unwrap() error { return e.Err }

func Validation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
