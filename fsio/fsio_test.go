package fsio

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joeycumines/go-faultcatalog/eventloop"
	"github.com/joeycumines/go-faultcatalog/fault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJS(t *testing.T) *eventloop.JS {
	t.Helper()
	hooks := eventloop.NewHooks(eventloop.WithTerminate(func(int) {}))
	loop, err := eventloop.New(eventloop.WithHooks(hooks))
	require.NoError(t, err)
	js, err := eventloop.NewJS(loop)
	require.NoError(t, err)
	return js
}

func run(t *testing.T, js *eventloop.JS) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, js.Loop().Run(ctx))
}

func TestReadFile_missing(t *testing.T) {
	js := newJS(t)
	path := filepath.Join(t.TempDir(), "non_existent_file.txt")

	var (
		calls   int
		gotErr  error
		gotData []byte
	)
	require.NoError(t, js.Loop().Submit(func() {
		ReadFile(js, path, func(err error, data []byte) {
			calls++
			gotErr, gotData = err, data
		})
	}))
	run(t, js)

	require.Equal(t, 1, calls)
	assert.Nil(t, gotData)
	require.ErrorIs(t, gotErr, fault.ErrResource)
	f := fault.Wrap(gotErr)
	assert.Equal(t, path, f.Resource)
	assert.Equal(t, fault.ReasonNotFound, f.Reason)
	assert.Contains(t, f.Message, "not found")
}

func TestReadFile_success(t *testing.T) {
	js := newJS(t)
	path := filepath.Join(t.TempDir(), "data.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))

	var gotErr error
	var gotData []byte
	require.NoError(t, js.Loop().Submit(func() {
		ReadFile(js, path, func(err error, data []byte) {
			gotErr, gotData = err, data
		})
	}))
	run(t, js)

	assert.NoError(t, gotErr)
	assert.Equal(t, "hello", string(gotData))
}

func TestReadFile_callbackPanicIsUncaught(t *testing.T) {
	var exitCode int
	hooks := eventloop.NewHooks(eventloop.WithTerminate(func(code int) { exitCode = code }))
	loop, err := eventloop.New(eventloop.WithHooks(hooks))
	require.NoError(t, err)
	js, err := eventloop.NewJS(loop)
	require.NoError(t, err)

	require.NoError(t, loop.Submit(func() {
		ReadFile(js, "missing", func(err error, _ []byte) {
			fault.Throw(err)
		})
	}))

	var fatal *eventloop.FatalError
	require.ErrorAs(t, loop.Run(context.Background()), &fatal)
	assert.Equal(t, fault.KindResource, fatal.Fault.Kind())
	assert.Equal(t, 1, exitCode)
}

func TestReadFile_nonFaultRejection(t *testing.T) {
	js := newJS(t)

	var gotErr error
	require.NoError(t, js.Loop().Submit(func() {
		deliver(js.Loop(), js.Reject("plain reason"), func(err error, _ []byte) {
			gotErr = err
		})
	}))
	run(t, js)

	var f *fault.Fault
	require.ErrorAs(t, gotErr, &f)
	require.NotNil(t, f)
	assert.Equal(t, fault.KindUnknown, f.Kind())
	assert.Equal(t, "plain reason", f.Message)
}

func TestReadFilePromise(t *testing.T) {
	js := newJS(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "data.txt")
	require.NoError(t, os.WriteFile(path, []byte("contents"), 0o600))

	var ok, missing *eventloop.ChainedPromise
	require.NoError(t, js.Loop().Submit(func() {
		ok = ReadFilePromise(js, path)
		missing = ReadFilePromise(js, filepath.Join(dir, "missing"))
		missing.Catch(func(eventloop.Result) eventloop.Result { return nil })
	}))
	run(t, js)

	assert.Equal(t, []byte("contents"), ok.Value())
	assert.Equal(t, fault.KindResource, missing.Fault().Kind())
}

func TestReadFileSync(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadFileSync(filepath.Join(dir, "missing"))
	require.ErrorIs(t, err, fault.ErrResource)

	// directories are unreadable rather than missing
	_, err = ReadFileSync(dir)
	require.ErrorIs(t, err, fault.ErrResource)
	assert.Equal(t, fault.ReasonUnreadable, fault.Wrap(err).Reason)
}
