package job

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/overdrive-chapters/internal/audio"
	"github.com/maauso/overdrive-chapters/internal/audiobook"
)

// markerReader serves marker payloads keyed by file name. An empty payload
// stands for a part without a marker tag.
type markerReader map[string]string

func (r markerReader) UserText(path, _ string) (string, bool, error) {
	v := r[filepath.Base(path)]
	return v, v != "", nil
}

// fakeSplitter records segments and writes a small file per output.
type fakeSplitter struct {
	mu       sync.Mutex
	segments []audio.Segment
	failOn   map[string]error // keyed by output file name
	delay    time.Duration
	inFlight int
	maxSeen  int
}

func (f *fakeSplitter) Split(ctx context.Context, seg audio.Segment) error {
	f.mu.Lock()
	f.segments = append(f.segments, seg)
	f.inFlight++
	if f.inFlight > f.maxSeen {
		f.maxSeen = f.inFlight
	}
	err := f.failOn[filepath.Base(seg.Output)]
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}
	return os.WriteFile(seg.Output, []byte(seg.Start+"-"+seg.End), 0o644)
}

func (f *fakeSplitter) outputs() map[string]audio.Segment {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := make(map[string]audio.Segment)
	for _, s := range f.segments {
		m[filepath.Base(s.Output)] = s
	}
	return m
}

// fakePublisher records published keys.
type fakePublisher struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, key string, data io.Reader) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	if _, err := io.Copy(io.Discard, data); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	return "mem://" + key, nil
}

const (
	part1Markers = `<Markers>
  <Marker><Name>Chapter 1</Name><Time>0:00.000</Time></Marker>
  <Marker><Name>Chapter 2</Name><Time>10:00.000</Time></Marker>
</Markers>`
	part2Markers = `<Markers>
  <Marker><Name>Chapter 3</Name><Time>0:00.000</Time></Marker>
  <Marker><Name>Chapter 4</Name><Time>5:00.000</Time></Marker>
</Markers>`
	// part 2 starts in the middle of chapter 2
	part2MidChapter = `<Markers>
  <Marker><Name>Chapter 3</Name><Time>3:15.000</Time></Marker>
</Markers>`
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openBook(t *testing.T, payloads markerReader) *audiobook.Audiobook {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "Saga")
	require.NoError(t, os.Mkdir(dir, 0o755))
	for name := range payloads {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("audio"), 0o644))
	}
	book, err := audiobook.Open(dir, payloads, audiobook.WithLogger(quietLogger()))
	require.NoError(t, err)
	return book
}

func TestNewExportService(t *testing.T) {
	splitter := &fakeSplitter{}

	svc := NewExportService(splitter, nil)
	require.NotNil(t, svc)
	assert.Equal(t, 1, svc.maxConcurrentSplits)
	assert.False(t, svc.failFast)
	assert.Nil(t, svc.publisher)

	svc = NewExportService(splitter, quietLogger(),
		WithMaxConcurrentSplits(4),
		WithMaxConcurrentSplits(0),
		WithFailFast(true),
		WithPublisher(&fakePublisher{}, "lib"),
	)
	assert.Equal(t, 4, svc.maxConcurrentSplits)
	assert.True(t, svc.failFast)
	assert.Equal(t, "lib", svc.publishPrefix)
}

func TestExportService_Plan(t *testing.T) {
	book := openBook(t, markerReader{"part01.mp3": part1Markers, "part02.mp3": part2Markers})
	svc := NewExportService(&fakeSplitter{}, quietLogger())

	job, err := svc.Plan(book, "merged")
	require.NoError(t, err)

	assert.Equal(t, StatusInQueue, job.GetStatus())
	assert.Equal(t, filepath.Join(book.Dir(), "merged"), job.OutputDir)
	require.Len(t, job.Tasks, 4)
	assert.Equal(t, filepath.Join(job.OutputDir, "1 Chapter_1.mp3"), job.Tasks[0].OutputPath)
	assert.Equal(t, 4, job.Tasks[3].Index)
	for _, task := range job.Tasks {
		assert.Equal(t, TaskPending, task.Status)
	}
	assert.NoDirExists(t, job.OutputDir)
}

func TestExportService_Plan_Errors(t *testing.T) {
	svc := NewExportService(&fakeSplitter{}, quietLogger())
	book := openBook(t, markerReader{"part01.mp3": part1Markers})

	for _, subdir := range []string{"", "  ", "/abs", "..", "../escape", "."} {
		_, err := svc.Plan(book, subdir)
		assert.ErrorIs(t, err, ErrInvalidOutputDir, subdir)
	}

	empty := openBook(t, markerReader{"part01.mp3": ""})
	_, err := NewExportService(&fakeSplitter{}, quietLogger()).Plan(empty, "merged")
	assert.ErrorIs(t, err, ErrNoChapters)
}

func TestExportService_Export(t *testing.T) {
	book := openBook(t, markerReader{"part01.mp3": part1Markers, "part02.mp3": part2Markers})
	splitter := &fakeSplitter{}
	svc := NewExportService(splitter, quietLogger())

	job, err := svc.Export(context.Background(), book, "merged")
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, job.GetStatus())
	assert.Equal(t, 100, job.Progress())
	assert.Equal(t, 4, job.Counts()[TaskCompleted])

	part1 := filepath.Join(book.Dir(), "part01.mp3")
	part2 := filepath.Join(book.Dir(), "part02.mp3")
	want := map[string]audio.Segment{
		"1 Chapter_1.mp3": {Source: part1, Start: "00:00:00.000", End: "00:10:00.000"},
		"2 Chapter_2.mp3": {Source: part1, Start: "00:10:00.000"},
		"3 Chapter_3.mp3": {Source: part2, Start: "00:00:00.000", End: "00:05:00.000"},
		"4 Chapter_4.mp3": {Source: part2, Start: "00:05:00.000"},
	}
	got := splitter.outputs()
	require.Len(t, got, len(want))
	for name, w := range want {
		seg, ok := got[name]
		require.True(t, ok, name)
		assert.Equal(t, w.Source, seg.Source, name)
		assert.Equal(t, w.Start, seg.Start, name)
		assert.Equal(t, w.End, seg.End, name)
		assert.Equal(t, w.End != "", seg.HasEnd(), name)
	}

	files, err := audio.ListChapterFiles(job.OutputDir, "mp3")
	require.NoError(t, err)
	assert.Len(t, files, len(book.Chapters()))
}

func TestExportService_CrossFileChapter(t *testing.T) {
	book := openBook(t, markerReader{"part01.mp3": part1Markers, "part02.mp3": part2MidChapter})
	splitter := &fakeSplitter{}
	svc := NewExportService(splitter, quietLogger())

	job, err := svc.Export(context.Background(), book, "merged")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedCrossFileSplit)

	var taskErr *TaskError
	require.True(t, errors.As(err, &taskErr))
	assert.Equal(t, 2, taskErr.Index)
	assert.Equal(t, "Chapter 2", taskErr.Title)

	assert.Equal(t, StatusFailed, job.GetStatus())
	assert.NotEmpty(t, job.Error)

	tasks := job.Snapshot()
	assert.Equal(t, TaskCompleted, tasks[0].Status)
	assert.Equal(t, TaskFailed, tasks[1].Status)
	assert.Equal(t, TaskCompleted, tasks[2].Status)

	// the splitter never saw the cross-file chapter
	_, called := splitter.outputs()["2 Chapter_2.mp3"]
	assert.False(t, called)
	assert.NoFileExists(t, tasks[1].OutputPath)
}

func TestExportService_SplitFailureContinues(t *testing.T) {
	book := openBook(t, markerReader{"part01.mp3": part1Markers, "part02.mp3": part2Markers})
	boom := errors.New("ffmpeg exploded")
	splitter := &fakeSplitter{failOn: map[string]error{"2 Chapter_2.mp3": boom}}
	svc := NewExportService(splitter, quietLogger())

	job, err := svc.Export(context.Background(), book, "merged")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	counts := job.Counts()
	assert.Equal(t, 3, counts[TaskCompleted])
	assert.Equal(t, 1, counts[TaskFailed])

	failures := job.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, 2, failures[0].Index)
	assert.Len(t, splitter.outputs(), 4)
}

func TestExportService_FailFast(t *testing.T) {
	book := openBook(t, markerReader{"part01.mp3": part1Markers, "part02.mp3": part2Markers})
	boom := errors.New("ffmpeg exploded")
	splitter := &fakeSplitter{failOn: map[string]error{"2 Chapter_2.mp3": boom}}
	svc := NewExportService(splitter, quietLogger(), WithFailFast(true))

	job, err := svc.Export(context.Background(), book, "merged")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StatusFailed, job.GetStatus())

	tasks := job.Snapshot()
	assert.Equal(t, TaskCompleted, tasks[0].Status)
	assert.Equal(t, TaskFailed, tasks[1].Status)
	assert.Equal(t, TaskSkipped, tasks[2].Status)
	assert.Equal(t, TaskSkipped, tasks[3].Status)
	assert.Len(t, splitter.outputs(), 2)
}

func TestExportService_Concurrency(t *testing.T) {
	book := openBook(t, markerReader{"part01.mp3": part1Markers, "part02.mp3": part2Markers})
	splitter := &fakeSplitter{delay: 20 * time.Millisecond}
	svc := NewExportService(splitter, quietLogger(), WithMaxConcurrentSplits(2))

	job, err := svc.Export(context.Background(), book, "merged")
	require.NoError(t, err)

	assert.LessOrEqual(t, splitter.maxSeen, 2)
	for i, task := range job.Snapshot() {
		assert.Equal(t, i+1, task.Index)
		assert.Equal(t, TaskCompleted, task.Status)
		assert.FileExists(t, task.OutputPath)
	}
}

func TestExportService_Publish(t *testing.T) {
	book := openBook(t, markerReader{"part01.mp3": part1Markers})
	publisher := &fakePublisher{}
	svc := NewExportService(&fakeSplitter{}, quietLogger(), WithPublisher(publisher, "library"))

	job, err := svc.Export(context.Background(), book, "merged")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"library/Saga/merged/1 Chapter_1.mp3",
		"library/Saga/merged/2 Chapter_2.mp3",
	}, publisher.keys)
	assert.Equal(t, "mem://library/Saga/merged/1 Chapter_1.mp3", job.Snapshot()[0].Location)
}

func TestExportService_PublishFailure(t *testing.T) {
	book := openBook(t, markerReader{"part01.mp3": part1Markers})
	denied := errors.New("access denied")
	svc := NewExportService(&fakeSplitter{}, quietLogger(), WithPublisher(&fakePublisher{err: denied}, ""))

	job, err := svc.Export(context.Background(), book, "merged")
	assert.ErrorIs(t, err, denied)
	assert.Equal(t, 2, job.Counts()[TaskFailed])
}

func TestExportService_Cancelled(t *testing.T) {
	book := openBook(t, markerReader{"part01.mp3": part1Markers, "part02.mp3": part2Markers})
	splitter := &fakeSplitter{}
	svc := NewExportService(splitter, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job, err := svc.Export(ctx, book, "merged")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusCancelled, job.GetStatus())
	assert.Equal(t, 4, job.Counts()[TaskSkipped])
	assert.Empty(t, splitter.outputs())
}
