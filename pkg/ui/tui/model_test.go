package tui

import (
	"errors"
	"testing"

	"douyindl/internal/downloader"
)

func TestModelTracksTasks(t *testing.T) {
	model := NewModel()

	videoTask := downloader.Task{ItemID: "701", Type: downloader.TaskVideo, Dest: "/out/701_video.mp4"}
	musicTask := downloader.Task{ItemID: "701", Type: downloader.TaskMusic, Dest: "/out/701_music.mp3"}

	model.totalTasks = 2
	model.startTask(videoTask)
	model.startTask(musicTask)

	if len(model.tasks) != 2 {
		t.Errorf("Expected 2 tracked tasks, got %d", len(model.tasks))
	}
	if len(model.activeTasks()) != 2 {
		t.Errorf("Expected 2 active tasks, got %d", len(model.activeTasks()))
	}

	model.finishTask(downloader.TaskResult{
		Task:   videoTask,
		Status: downloader.StatusCompleted,
		Bytes:  1024 * 1024,
	})

	if model.completed != 1 {
		t.Errorf("Expected 1 completed, got %d", model.completed)
	}
	if model.bytes != 1024*1024 {
		t.Errorf("Expected byte count to accumulate, got %d", model.bytes)
	}
	if len(model.activeTasks()) != 1 {
		t.Errorf("Expected 1 active task after completion, got %d", len(model.activeTasks()))
	}

	model.finishTask(downloader.TaskResult{
		Task:   musicTask,
		Status: downloader.StatusFailed,
		Err:    errors.New("connection reset"),
	})

	if model.failed != 1 {
		t.Errorf("Expected 1 failed, got %d", model.failed)
	}
	if ratio := model.progressRatio(); ratio != 1.0 {
		t.Errorf("Expected full progress, got %f", ratio)
	}
}

func TestModelIgnoresUnknownResults(t *testing.T) {
	model := NewModel()

	model.finishTask(downloader.TaskResult{
		Task:   downloader.Task{ItemID: "999", Type: downloader.TaskVideo},
		Status: downloader.StatusCompleted,
	})

	if model.completed != 0 {
		t.Errorf("Untracked result should not count, got %d completed", model.completed)
	}
}

func TestModelLogRing(t *testing.T) {
	model := NewModel()
	model.maxLogLines = 3

	for i := 0; i < 5; i++ {
		model.addLog("INFO", "line")
	}

	if len(model.logLines) != 3 {
		t.Errorf("Expected log capped at 3 lines, got %d", len(model.logLines))
	}
}

func TestProgressRatioWithoutTasks(t *testing.T) {
	model := NewModel()
	if ratio := model.progressRatio(); ratio != 0 {
		t.Errorf("Expected zero progress before any batch, got %f", ratio)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{500, "500 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1024 * 1024, "1.0 MB"},
		{5 * 1024 * 1024 * 1024, "5.0 GB"},
	}

	for _, test := range tests {
		result := FormatBytes(test.bytes)
		if result != test.expected {
			t.Errorf("FormatBytes(%d) = %s, expected %s", test.bytes, result, test.expected)
		}
	}
}
