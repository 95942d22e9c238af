package history

import "errors"

var (
	ErrJournalDisabled = errors.New("journal disabled")
	ErrUnknownJournal  = errors.New("unknown journal kind")
	ErrCorruptRecord   = errors.New("corrupt journal record")
)
