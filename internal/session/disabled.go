package session

// disabledStorage is the fallback when the local database cannot be
// opened (e.g. an unwritable data directory). Every read reports
// "nothing persisted" and every write is dropped, so the client still
// runs — the session just won't survive a restart.
type disabledStorage struct{}

func (disabledStorage) Get(string) (string, bool, error) { return "", false, nil }
func (disabledStorage) Set(string, string) error         { return nil }
func (disabledStorage) Delete(string) error              { return nil }

// Disabled returns a Storage that persists nothing.
func Disabled() Storage {
	return disabledStorage{}
}
