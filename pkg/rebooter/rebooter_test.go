package rebooter

import (
	"io/ioutil"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteTimestampToFile(t *testing.T) {
	// Setup
	tempFile, err := ioutil.TempFile("", "timestamp")
	require.NoError(t, err)
	defer os.Remove(tempFile.Name())

	watchdog := New(0, 0, tempFile.Name())

	testTime := time.Date(2022, 1, 2, 3, 4, 5, 0, time.UTC)
	err = watchdog.WriteTimestampToFile(testTime)
	require.NoError(t, err)

	actualTime, err := watchdog.GetLastConnectedTimestamp()
	require.NoError(t, err)
	assert.Equal(t, testTime.Unix(), actualTime.Unix())
}

func TestShouldRebootWhenStale(t *testing.T) {
	// Setup
	tempFile, err := ioutil.TempFile("", "timestamp")
	require.NoError(t, err)
	defer os.Remove(tempFile.Name())

	// Write a timestamp that is older than the reboot interval
	oldTime := time.Now().Add(-25 * time.Hour)
	ioutil.WriteFile(tempFile.Name(), []byte(strconv.FormatInt(oldTime.Unix(), 10)), 0644)

	watchdog := New(1*time.Hour, 24*time.Hour, tempFile.Name())

	shouldReboot := watchdog.shouldReboot()
	assert.True(t, shouldReboot)

	// Verify the window has been reset so the next tick does not retrigger
	content, err := ioutil.ReadFile(tempFile.Name())
	require.NoError(t, err)
	newTimestamp, err := strconv.ParseInt(string(content), 10, 64)
	require.NoError(t, err)
	assert.True(t, newTimestamp > oldTime.Unix())
}

func TestShouldNotRebootWhenFresh(t *testing.T) {
	tempFile, err := ioutil.TempFile("", "timestamp")
	require.NoError(t, err)
	defer os.Remove(tempFile.Name())

	watchdog := New(1*time.Hour, 24*time.Hour, tempFile.Name())
	watchdog.MarkConnected()

	assert.False(t, watchdog.shouldReboot())
}

func TestShouldNotRebootOnUnreadableTimestamp(t *testing.T) {
	tempFile, err := ioutil.TempFile("", "timestamp")
	require.NoError(t, err)
	defer os.Remove(tempFile.Name())

	ioutil.WriteFile(tempFile.Name(), []byte("garbage"), 0644)

	watchdog := New(1*time.Hour, 24*time.Hour, tempFile.Name())
	assert.False(t, watchdog.shouldReboot())
}
