package ridbag

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrCorrupted is wrapped by every error caused by a page or payload that
	// fails its checksum or structural validation.
	ErrCorrupted = errors.New("corrupted data")

	// ErrConflict means the tree a bag refers to was replaced by a concurrent
	// commit through another bag instance. Reload the owning document.
	ErrConflict = errors.New("concurrent modification conflict")

	ErrPageNotFound = errors.New("page not found")
	ErrTxClosed     = errors.New("transaction closed")
	ErrTxActive     = errors.New("bag is joined to an open transaction")
	ErrReadOnly     = errors.New("page transaction not writable")
)

type DataError struct {
	Data []byte
	Off  int
	Err  error
	Msg  string
}

func dataErrf(data []byte, off int, err error, format string, args ...any) error {
	return &DataError{data, off, err, fmt.Sprintf(format, args...)}
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// Is makes every DataError match ErrCorrupted.
func (e *DataError) Is(target error) bool {
	return target == ErrCorrupted
}

func (e *DataError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		if e.Err != nil {
			return fmt.Sprintf("%s at %d: %v: (%d) %x", e.Msg, e.Off, e.Err, n, e.Data)
		} else {
			return fmt.Sprintf("%s at %d: (%d) %x", e.Msg, e.Off, n, e.Data)
		}
	} else {
		p, s := e.Data[:prefixLen], e.Data[n-suffixLen:]
		if e.Err != nil {
			return fmt.Sprintf("%s at %d: %v: (%d) %x...%x", e.Msg, e.Off, e.Err, n, p, s)
		} else {
			return fmt.Sprintf("%s at %d: (%d) %x...%x", e.Msg, e.Off, n, p, s)
		}
	}
}

// PageError reports a failure to read, decode or validate a tree page.
type PageError struct {
	Page PageID
	Root PageID
	Msg  string
	Err  error
}

func pageErrf(root, page PageID, err error, format string, args ...any) error {
	return &PageError{page, root, fmt.Sprintf(format, args...), err}
}

func (e *PageError) Unwrap() error {
	return e.Err
}

func (e *PageError) Error() string {
	var buf strings.Builder
	buf.WriteString("page ")
	buf.WriteString(strconv.FormatUint(uint64(e.Page), 10))
	if e.Root != 0 && e.Root != e.Page {
		buf.WriteString(" (tree ")
		buf.WriteString(strconv.FormatUint(uint64(e.Root), 10))
		buf.WriteByte(')')
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}
