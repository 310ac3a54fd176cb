//go:build !linux

package gpio

import "errors"

// CdevBackend is not available on non-Linux platforms.
type CdevBackend struct{}

func NewCdevBackend(string) *CdevBackend {
	return &CdevBackend{}
}

func (c *CdevBackend) Open() error {
	return errors.New("gpio: character device not supported on this platform (requires Linux)")
}

func (c *CdevBackend) Write(int, bool) error {
	return errors.New("gpio: not supported")
}

func (c *CdevBackend) Read(int) (bool, error) {
	return false, errors.New("gpio: not supported")
}

func (c *CdevBackend) Release(int) error { return nil }

func (c *CdevBackend) Close() error { return nil }
