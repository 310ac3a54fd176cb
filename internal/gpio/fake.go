package gpio

import "sync"

// FakeBackend is an in-memory Backend for tests.
type FakeBackend struct {
	mu sync.Mutex

	Levels   map[int]bool
	Writes   []Write
	Released []int
	Opened   bool
	Closed   bool

	// WriteErr, if set for a pin, is returned by Write on that pin.
	WriteErr map[int]error
	// ReadFunc, if set, answers Read instead of Levels.
	ReadFunc func(pin int) (bool, error)
}

type Write struct {
	Pin  int
	High bool
}

func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		Levels:   map[int]bool{},
		WriteErr: map[int]error{},
	}
}

func (f *FakeBackend) Open() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Opened = true
	return nil
}

func (f *FakeBackend) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

func (f *FakeBackend) Write(pin int, high bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.WriteErr[pin]; err != nil {
		return err
	}
	f.Levels[pin] = high
	f.Writes = append(f.Writes, Write{Pin: pin, High: high})
	return nil
}

func (f *FakeBackend) Read(pin int) (bool, error) {
	f.mu.Lock()
	read := f.ReadFunc
	level := f.Levels[pin]
	f.mu.Unlock()
	if read != nil {
		return read(pin)
	}
	return level, nil
}

func (f *FakeBackend) Release(pin int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Released = append(f.Released, pin)
	return nil
}

// Level reports the last level written to pin.
func (f *FakeBackend) Level(pin int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Levels[pin]
}
