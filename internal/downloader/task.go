package downloader

import (
	"douyindl/pkg/media"
	"douyindl/pkg/storage"
)

// TaskType names what part of an item a task transfers
type TaskType string

const (
	TaskVideo  TaskType = "video"
	TaskImage  TaskType = "image"
	TaskMusic  TaskType = "music"
	TaskCover  TaskType = "cover"
	TaskAvatar TaskType = "avatar"
)

// Task is one file transfer: a source URL and its final destination
type Task struct {
	ItemID string
	Type   TaskType
	URL    string
	Dest   string
}

// Status is the outcome of one task
type Status string

const (
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// TaskResult reports what happened to one task
type TaskResult struct {
	Task    Task
	Status  Status
	Err     error
	Bytes   int64
	Resumed bool
}

// ItemJob is the unit of work the pool schedules: every task belonging
// to one item, plus the metadata sidecar
type ItemJob struct {
	Item  *media.Item
	Tasks []Task
	// MetadataPath is where the raw payload sidecar goes, empty to skip
	MetadataPath string
}

// TaskOptions selects which companion files get tasks
type TaskOptions struct {
	Music  bool
	Cover  bool
	Avatar bool
}

// BuildJob lays out every transfer for one item in dir
func BuildJob(item *media.Item, dir string, saveMetadata bool, opts TaskOptions) ItemJob {
	stem := storage.ItemStem(item.CreatedAt, item.Title)
	job := ItemJob{Item: item}

	if item.Refs.Video != "" {
		job.Tasks = append(job.Tasks, Task{
			ItemID: item.ID,
			Type:   TaskVideo,
			URL:    item.Refs.Video,
			Dest:   storage.VideoPath(dir, stem),
		})
	}

	for i, addr := range item.Refs.Images {
		job.Tasks = append(job.Tasks, Task{
			ItemID: item.ID,
			Type:   TaskImage,
			URL:    addr,
			Dest:   storage.ImagePath(dir, stem, i+1),
		})
	}

	if opts.Music && item.Refs.Audio != nil {
		job.Tasks = append(job.Tasks, Task{
			ItemID: item.ID,
			Type:   TaskMusic,
			URL:    item.Refs.Audio.URL,
			Dest:   storage.MusicPath(dir, stem, item.Refs.Audio.Name),
		})
	}

	if opts.Cover && item.Refs.Cover != "" {
		job.Tasks = append(job.Tasks, Task{
			ItemID: item.ID,
			Type:   TaskCover,
			URL:    item.Refs.Cover,
			Dest:   storage.CoverPath(dir, stem),
		})
	}

	if opts.Avatar && item.Refs.Avatar != "" {
		job.Tasks = append(job.Tasks, Task{
			ItemID: item.ID,
			Type:   TaskAvatar,
			URL:    item.Refs.Avatar,
			Dest:   storage.AvatarPath(dir, stem),
		})
	}

	if saveMetadata {
		job.MetadataPath = storage.MetadataPath(dir, stem)
	}

	return job
}
