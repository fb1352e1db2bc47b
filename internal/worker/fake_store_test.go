package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"codeguard/internal/storage"
)

// fakeStore replays scripted remote states per key. The first state is
// returned by Upload, the rest by successive Status calls; the last state
// repeats once the script is exhausted.
type fakeStore struct {
	mu         sync.Mutex
	states     map[string][]storage.RemoteState
	uploadErrs map[string][]error
	statusErrs map[string][]error
	delay      time.Duration

	events   []string
	uploads  map[string]int
	statuses map[string]int
	active   int
	peak     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		states:     map[string][]storage.RemoteState{},
		uploadErrs: map[string][]error{},
		statusErrs: map[string][]error{},
		uploads:    map[string]int{},
		statuses:   map[string]int{},
	}
}

func (f *fakeStore) script(key string, states ...storage.RemoteState) {
	f.states[key] = states
}

func (f *fakeStore) next(key string) storage.RemoteState {
	s := f.states[key]
	if len(s) == 0 {
		return storage.StateActive
	}
	st := s[0]
	if len(s) > 1 {
		f.states[key] = s[1:]
	}
	return st
}

func popErr(m map[string][]error, key string) error {
	errs := m[key]
	if len(errs) == 0 {
		return nil
	}
	m[key] = errs[1:]
	return errs[0]
}

func (f *fakeStore) observe(key string, st storage.RemoteState) {
	if st == storage.StateActive || st == storage.StateFailed {
		f.active--
		f.events = append(f.events, "terminal "+key)
	}
}

func (f *fakeStore) Upload(ctx context.Context, src storage.Source) (storage.Provisional, error) {
	f.mu.Lock()
	f.uploads[src.Key]++
	if err := popErr(f.uploadErrs, src.Key); err != nil {
		f.mu.Unlock()
		return storage.Provisional{}, err
	}
	f.events = append(f.events, "upload "+src.Key)
	f.active++
	if f.active > f.peak {
		f.peak = f.active
	}
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return storage.Provisional{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.next(src.Key)
	f.observe(src.Key, st)
	return f.provisional(src.Key, st), nil
}

func (f *fakeStore) Status(ctx context.Context, name string) (storage.Provisional, error) {
	if err := ctx.Err(); err != nil {
		return storage.Provisional{}, err
	}

	key := strings.TrimPrefix(name, "files/")

	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[key]++
	if err := popErr(f.statusErrs, key); err != nil {
		return storage.Provisional{}, err
	}
	st := f.next(key)
	f.observe(key, st)
	return f.provisional(key, st), nil
}

func (f *fakeStore) provisional(key string, st storage.RemoteState) storage.Provisional {
	return storage.Provisional{
		Name:     "files/" + key,
		URI:      "https://files.example/" + key,
		MIMEType: "text/plain",
		State:    st,
	}
}

func (f *fakeStore) eventLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

var errTransient = errors.New("503 service unavailable")
