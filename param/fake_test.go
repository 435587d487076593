package param_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/robertof/go-restclient-exporter/param"
)

type putCall struct {
	path  string
	value string
}

// fakeAPI is an in-memory device. GET replies are keyed by subsystem+name;
// PUT calls are recorded and answered from putReplies.
type fakeAPI struct {
	mu         sync.Mutex
	replies    map[string]string
	putReplies map[string]string
	modes      map[string]param.AccessMode
	gets       map[string]int
	puts       []putCall
}

func newFakeAPI(replies map[string]string) *fakeAPI {
	return &fakeAPI{
		replies:    replies,
		putReplies: map[string]string{},
		modes:      map[string]param.AccessMode{},
		gets:       map[string]int{},
	}
}

func (a *fakeAPI) Get(ctx context.Context, subsystem, name string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.gets[subsystem+name]++

	reply, ok := a.replies[subsystem+name]
	if !ok {
		return nil, fmt.Errorf("GET %s%s: not found", subsystem, name)
	}

	return []byte(reply), nil
}

func (a *fakeAPI) Put(ctx context.Context, subsystem, name, rawValue string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.puts = append(a.puts, putCall{subsystem + name, rawValue})

	return []byte(a.putReplies[subsystem+name]), nil
}

func (a *fakeAPI) LookupAccessMode(subsystem string) (param.AccessMode, bool) {
	mode, ok := a.modes[subsystem]
	return mode, ok
}

func (a *fakeAPI) setReply(path, reply string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.replies[path] = reply
}

func (a *fakeAPI) getCount(path string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.gets[path]
}

func (a *fakeAPI) putCalls() []putCall {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]putCall(nil), a.puts...)
}
