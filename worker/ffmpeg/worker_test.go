package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alfresco/gytheio-sub001/content"
	"github.com/Alfresco/gytheio-sub001/content/file"
	"github.com/Alfresco/gytheio-sub001/errors"
	"github.com/Alfresco/gytheio-sub001/message"
	"github.com/Alfresco/gytheio-sub001/worker"
)

type commandLog struct {
	mu    sync.Mutex
	calls [][]string
}

func (l *commandLog) all() [][]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.calls)
}

func setHelperCommand(t *testing.T, mode string) *commandLog {
	t.Helper()
	log := &commandLog{}
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		log.mu.Lock()
		log.calls = append(log.calls, append([]string{name}, args...))
		log.mu.Unlock()

		cs := append([]string{"-test.run=TestHelperProcess", "--", name}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("FFMPEG_HELPER_MODE=%s", mode))
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
	return log
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	args := os.Args
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}
	mode := os.Getenv("FFMPEG_HELPER_MODE")

	if filepath.Base(args[0]) == "ffprobe" {
		if mode == "noprobe" {
			fmt.Fprintln(os.Stderr, "probe failed")
			os.Exit(1)
		}
		fmt.Println(`{"streams":[{"index":0,"codec_type":"video","width":640,"height":480}],"format":{"duration":"10.000000","format_name":"mp4"}}`)
		os.Exit(0)
	}

	if mode == "fail" {
		fmt.Fprintln(os.Stderr, "Invalid data found when processing input")
		os.Exit(1)
	}
	for _, us := range []string{"2500000", "5000000", "10000000"} {
		fmt.Println("out_time_us=" + us)
		fmt.Println("progress=continue")
	}
	fmt.Println("progress=end")
	if err := os.WriteFile(args[len(args)-1], []byte("encoded"), 0o644); err != nil {
		os.Exit(2)
	}
	os.Exit(0)
}

type fixture struct {
	worker  *Worker
	sources *file.Handler
	targets *file.Handler
	input   content.Reference
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	sources, err := file.New(t.TempDir())
	require.NoError(t, err)
	targets, err := file.New(t.TempDir())
	require.NoError(t, err)

	path := filepath.Join(sources.Root(), "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("not a real video"), 0o644))

	return fixture{
		worker:  New(sources, targets, WithWorkDir(t.TempDir())),
		sources: sources,
		targets: targets,
		input:   content.NewReference(file.URIFor(path), "video/mp4"),
	}
}

func (f fixture) target(t *testing.T, name, mediaType string) content.Reference {
	t.Helper()
	ref, err := f.targets.CreateContentReference(context.Background(), name, mediaType)
	require.NoError(t, err)
	return ref
}

func TestTransform_Success(t *testing.T) {
	log := setHelperCommand(t, "success")
	f := newFixture(t)
	target := f.target(t, "thumb.png", "image/png")

	var progress []float64
	opts := message.NewOptions(
		message.CropOptions{Width: 41, Height: 40},
		message.PageRangeOptions{StartPage: 1},
	)
	results, err := f.worker.Transform(context.Background(),
		[]content.Reference{f.input}, []content.Reference{target}, opts,
		func(p float64) { progress = append(progress, p) })
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, target.URI(), results[0].ContentReference.URI())
	size, ok := results[0].ContentReference.Size()
	require.True(t, ok)
	assert.Equal(t, int64(7), size)
	assert.Equal(t, "7", results[0].Details[DetailSize])
	assert.Equal(t, "10.000", results[0].Details[DetailDuration])

	p, err := f.targets.GetFile(context.Background(), target)
	require.NoError(t, err)
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "encoded", string(data))

	require.NotEmpty(t, progress)
	assert.InDelta(t, 0.25, progress[0], 1e-9)
	assert.Equal(t, 1.0, progress[len(progress)-1])
	assert.True(t, slices.IsSorted(progress), "progress never decreases: %v", progress)

	calls := log.all()
	require.Len(t, calls, 2)
	assert.Equal(t, "ffprobe", calls[0][0])
	assert.Equal(t, "ffmpeg", calls[1][0])
	assert.Contains(t, calls[1], "crop=41:40:0:0")
	assert.True(t, filepath.Ext(calls[1][len(calls[1])-1]) == ".png")
}

func TestTransform_MultipleTargetsShareProgress(t *testing.T) {
	setHelperCommand(t, "success")
	f := newFixture(t)
	targets := []content.Reference{
		f.target(t, "small.mp4", "video/mp4"),
		f.target(t, "large.mp4", "video/mp4"),
	}

	var progress []float64
	results, err := f.worker.Transform(context.Background(),
		[]content.Reference{f.input}, targets, nil,
		func(p float64) { progress = append(progress, p) })
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.InDelta(t, 0.125, progress[0], 1e-9)
	assert.Contains(t, progress, 0.5)
	assert.True(t, slices.IsSorted(progress), "progress never decreases: %v", progress)
}

// failingTargets rejects writes to references whose name starts with bad-.
type failingTargets struct {
	*file.Handler
}

func (h failingTargets) PutFile(ctx context.Context, path string, ref content.Reference) (content.Reference, error) {
	if strings.HasPrefix(filepath.Base(ref.URI()), "bad-") {
		return ref, errors.IO(fmt.Errorf("disk full"), "failingTargets", "PutFile", "write failed")
	}
	return h.Handler.PutFile(ctx, path, ref)
}

func TestTransform_PartialTargetFailure(t *testing.T) {
	setHelperCommand(t, "success")
	f := newFixture(t)
	w := New(f.sources, failingTargets{f.targets}, WithWorkDir(t.TempDir()))
	foreign := content.NewReference("objectstore://renditions/x.mp4", "video/mp4")
	targets := []content.Reference{
		f.target(t, "good.mp4", "video/mp4"),
		f.target(t, "bad-copy.mp4", "video/mp4"),
		foreign,
	}

	var progress []float64
	results, err := w.Transform(context.Background(),
		[]content.Reference{f.input}, targets, nil,
		func(p float64) { progress = append(progress, p) })
	require.NoError(t, err, "one of three targets succeeded")
	require.Len(t, results, 3)

	assert.Equal(t, "7", results[0].Details[DetailSize])
	assert.NotContains(t, results[0].Details, worker.DetailError)

	assert.Equal(t, targets[1].URI(), results[1].ContentReference.URI())
	assert.Contains(t, results[1].Details[worker.DetailError], "disk full")
	assert.Equal(t, errors.KindIO, results[1].Details[worker.DetailErrorKind])

	assert.Equal(t, foreign.URI(), results[2].ContentReference.URI())
	assert.Equal(t, errors.KindUnsupportedReference, results[2].Details[worker.DetailErrorKind])

	assert.Equal(t, 1.0, progress[len(progress)-1])

	p, err := f.targets.GetFile(context.Background(), targets[0])
	require.NoError(t, err)
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "encoded", string(data), "successful target kept")
}

func TestTransform_AllTargetsFail(t *testing.T) {
	setHelperCommand(t, "success")
	f := newFixture(t)
	w := New(f.sources, failingTargets{f.targets}, WithWorkDir(t.TempDir()))

	results, err := w.Transform(context.Background(),
		[]content.Reference{f.input},
		[]content.Reference{f.target(t, "bad-a.mp4", "video/mp4"), f.target(t, "bad-b.mp4", "video/mp4")},
		nil, nil)
	require.Error(t, err)
	assert.Nil(t, results)
	assert.ErrorIs(t, err, errors.ErrIO)
}

// spoolingSources copies every GetFile into a spool directory, like a
// remote store does.
type spoolingSources struct {
	*file.Handler
	spool string
}

func (h spoolingSources) GetFile(ctx context.Context, ref content.Reference) (string, error) {
	p, err := h.Handler.GetFile(ctx, ref)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return "", err
	}
	out, err := os.CreateTemp(h.spool, "*-"+filepath.Base(p))
	if err != nil {
		return "", err
	}
	defer out.Close()
	_, err = out.Write(data)
	return out.Name(), err
}

func (h spoolingSources) ReleaseFile(_ content.Reference, path string) error {
	return os.Remove(path)
}

func TestTransform_ReleasesSpooledSource(t *testing.T) {
	setHelperCommand(t, "success")
	f := newFixture(t)
	spool := t.TempDir()
	w := New(spoolingSources{Handler: f.sources, spool: spool}, f.targets, WithWorkDir(t.TempDir()))

	for _, name := range []string{"a.mp4", "b.mp4"} {
		_, err := w.Transform(context.Background(),
			[]content.Reference{f.input}, []content.Reference{f.target(t, name, "video/mp4")}, nil, nil)
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(spool)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = os.Stat(filepath.Join(f.sources.Root(), "clip.mp4"))
	assert.NoError(t, err, "the source itself is kept")
}

func TestTransform_EncoderFailure(t *testing.T) {
	setHelperCommand(t, "fail")
	f := newFixture(t)

	_, err := f.worker.Transform(context.Background(),
		[]content.Reference{f.input}, []content.Reference{f.target(t, "out.mp4", "video/mp4")}, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTransformFailure)
	assert.Contains(t, err.Error(), "Invalid data found")
}

func TestTransform_ProbeFailureStillEncodes(t *testing.T) {
	setHelperCommand(t, "noprobe")
	f := newFixture(t)

	var progress []float64
	results, err := f.worker.Transform(context.Background(),
		[]content.Reference{f.input}, []content.Reference{f.target(t, "out.mp4", "video/mp4")}, nil,
		func(p float64) { progress = append(progress, p) })
	require.NoError(t, err)
	assert.NotContains(t, results[0].Details, DetailDuration)
	assert.Equal(t, []float64{1, 1}, progress)
}

func TestTransform_UnsupportedReferences(t *testing.T) {
	log := setHelperCommand(t, "success")
	f := newFixture(t)
	foreign := content.NewReference("objectstore://content/clip.mp4", "video/mp4")

	_, err := f.worker.Transform(context.Background(),
		[]content.Reference{foreign}, []content.Reference{f.target(t, "a.mp4", "video/mp4")}, nil, nil)
	assert.ErrorIs(t, err, errors.ErrUnsupportedReference)

	_, err = f.worker.Transform(context.Background(),
		[]content.Reference{f.input}, []content.Reference{foreign}, nil, nil)
	assert.ErrorIs(t, err, errors.ErrUnsupportedReference)

	assert.Empty(t, log.all(), "no process started")
}

func TestTransform_MissingSourceFile(t *testing.T) {
	setHelperCommand(t, "success")
	f := newFixture(t)
	missing := content.NewReference(file.URIFor(filepath.Join(f.sources.Root(), "gone.mp4")), "video/mp4")

	_, err := f.worker.Transform(context.Background(),
		[]content.Reference{missing}, []content.Reference{f.target(t, "a.mp4", "video/mp4")}, nil, nil)
	assert.ErrorIs(t, err, errors.ErrIO)
}

func TestProbe(t *testing.T) {
	setHelperCommand(t, "success")

	result, err := Probe(context.Background(), "", "/media/clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, 10.0, result.DurationSeconds())
	assert.True(t, result.HasVideo())

	_, err = Probe(context.Background(), "ffprobe", " ")
	assert.Error(t, err)
}
