package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishSubscribe(t *testing.T) {
	var got []TaskStatus
	handler := func(s TaskStatus) {
		got = append(got, s)
	}
	assert.NoError(t, Bus.Subscribe(TopicTaskStatus, handler))
	defer func() {
		assert.NoError(t, Bus.Unsubscribe(TopicTaskStatus, handler))
	}()

	PublishTaskStatus(TaskStatus{File: "a.tif", State: "uploading"})
	PublishTaskStatus(TaskStatus{File: "a.tif", State: "verified"})

	assert.Equal(t, []TaskStatus{
		{File: "a.tif", State: "uploading"},
		{File: "a.tif", State: "verified"},
	}, got)
}

func TestPassSummary(t *testing.T) {
	done := false
	handler := func(s PassSummary) {
		done = true
		assert.Equal(t, PassSummary{Uploaded: 3, Verified: 3, Completed: 3}, s)
	}
	assert.NoError(t, Bus.Subscribe(TopicPassDone, handler))
	defer func() {
		assert.NoError(t, Bus.Unsubscribe(TopicPassDone, handler))
	}()

	PublishPassDone(PassSummary{Uploaded: 3, Verified: 3, Completed: 3})
	assert.True(t, done)
}
