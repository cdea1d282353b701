// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package fake

import (
	"context"
	"sync"
	"testing"

	"github.com/mia-platform/transfer/internal/destination"
)

var _ destination.Sender = &FakeDestination{}
var _ destination.BatchSender = &FakeBatchDestination{}
var _ destination.Installer = &FakeInstaller{}

// FakeDestination records every call it receives; when err is set every call fails with it.
type FakeDestination struct {
	tb  testing.TB
	err error

	lock        sync.Mutex
	SentData    []*destination.Data
	DeletedData []*destination.Data
}

func NewFakeDestination(tb testing.TB) *FakeDestination {
	tb.Helper()
	return &FakeDestination{tb: tb}
}

// NewFakeDestinationWithError returns a FakeDestination failing every call with err.
func NewFakeDestinationWithError(tb testing.TB, err error) *FakeDestination {
	tb.Helper()
	return &FakeDestination{tb: tb, err: err}
}

func (f *FakeDestination) SendData(_ context.Context, data *destination.Data) error {
	f.tb.Helper()
	if f.err != nil {
		return f.err
	}

	f.lock.Lock()
	defer f.lock.Unlock()
	f.SentData = append(f.SentData, data)
	return nil
}

func (f *FakeDestination) DeleteData(_ context.Context, data *destination.Data) error {
	f.tb.Helper()
	if f.err != nil {
		return f.err
	}

	f.lock.Lock()
	defer f.lock.Unlock()
	f.DeletedData = append(f.DeletedData, data)
	return nil
}

// FakeBatchDestination is a FakeDestination also receiving whole batches.
type FakeBatchDestination struct {
	*FakeDestination

	Batches [][]*destination.Data
}

func NewFakeBatchDestination(tb testing.TB) *FakeBatchDestination {
	tb.Helper()
	return &FakeBatchDestination{FakeDestination: NewFakeDestination(tb)}
}

func (f *FakeBatchDestination) SendBatch(_ context.Context, batch []*destination.Data) error {
	f.tb.Helper()
	if f.err != nil {
		return f.err
	}

	f.lock.Lock()
	defer f.lock.Unlock()
	f.Batches = append(f.Batches, batch)
	return nil
}

// FakeInstaller returns the configured results from its hooks and counts the calls.
type FakeInstaller struct {
	*FakeDestination

	InstallResult   bool
	UninstallResult bool
	Log             []string

	Installs   int
	Uninstalls int
}

func NewFakeInstaller(tb testing.TB, installResult, uninstallResult bool, log ...string) *FakeInstaller {
	tb.Helper()
	return &FakeInstaller{
		FakeDestination: NewFakeDestination(tb),
		InstallResult:   installResult,
		UninstallResult: uninstallResult,
		Log:             log,
	}
}

func (f *FakeInstaller) Install(context.Context) (bool, []string, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.Installs++
	return f.InstallResult, f.Log, f.err
}

func (f *FakeInstaller) Uninstall(context.Context) (bool, []string, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.Uninstalls++
	return f.UninstallResult, f.Log, f.err
}
