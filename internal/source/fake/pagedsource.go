// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package fake

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/mia-platform/transfer/internal/source"
)

// FakePagedSource is a scripted source serving pre defined pages for tests.
type FakePagedSource interface {
	source.Loader
	source.ClosableSource

	// Tokens returns the resume tokens received by Load, in call order.
	Tokens() []string
	// Closed reports if Close has been called.
	Closed() bool
}

var _ FakePagedSource = &fakePagedSource{}

// fakePagedSource serves pages[i] for the token "i"; the empty token is page 0.
type fakePagedSource struct {
	tb    testing.TB
	pages [][]source.Data
	err   error

	lock   sync.Mutex
	tokens []string
	closed bool
}

// NewFakePagedSource returns a FakePagedSource returning pages in order. The token of every page
// but the last one is the index of the following page.
func NewFakePagedSource(tb testing.TB, pages ...[]source.Data) FakePagedSource {
	tb.Helper()

	return &fakePagedSource{
		tb:    tb,
		pages: pages,
	}
}

// NewFakePagedSourceWithError returns a FakePagedSource whose Load always fails with err.
func NewFakePagedSourceWithError(tb testing.TB, err error) FakePagedSource {
	tb.Helper()

	return &fakePagedSource{
		tb:  tb,
		err: err,
	}
}

// Load implements source.Loader.
func (f *fakePagedSource) Load(ctx context.Context, resumeToken string) (*source.Page, error) {
	f.tb.Helper()

	f.lock.Lock()
	defer f.lock.Unlock()
	f.tokens = append(f.tokens, resumeToken)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if f.err != nil {
		return nil, f.err
	}

	index := 0
	if resumeToken != "" {
		var err error
		if index, err = strconv.Atoi(resumeToken); err != nil || index < 0 || index >= len(f.pages) {
			return nil, fmt.Errorf("fake source: invalid resume token %q", resumeToken)
		}
	}

	if index >= len(f.pages) {
		return &source.Page{}, nil
	}

	page := &source.Page{Data: f.pages[index]}
	if index+1 < len(f.pages) {
		page.ResumeToken = strconv.Itoa(index + 1)
	}

	return page, nil
}

// Close implements source.ClosableSource.
func (f *fakePagedSource) Close(_ context.Context, _ time.Duration) error {
	f.tb.Helper()

	f.lock.Lock()
	defer f.lock.Unlock()
	f.closed = true
	return nil
}

func (f *fakePagedSource) Tokens() []string {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]string(nil), f.tokens...)
}

func (f *fakePagedSource) Closed() bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.closed
}
