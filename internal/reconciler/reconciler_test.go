package reconciler

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"sync"
	"testing"

	"crawlfleet/internal/model"
	"crawlfleet/internal/planner"
	"crawlfleet/pkg/constants"
	"crawlfleet/pkg/interfaces"
	"crawlfleet/pkg/store/file"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRuntime records calls and serves artifacts from memory.
type fakeRuntime struct {
	mu        sync.Mutex
	alive     map[string]struct{}
	listErr   error
	artifacts map[string]map[string]string // worker name -> file name -> content
	launchErr map[string]error
	launched  []*interfaces.LaunchRequest
	stopped   []string
	removed   []string
	copied    []string
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		alive:     map[string]struct{}{},
		artifacts: map[string]map[string]string{},
		launchErr: map[string]error{},
	}
}

func (f *fakeRuntime) Launch(ctx context.Context, req *interfaces.LaunchRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.launchErr[req.Name]; err != nil {
		return err
	}
	f.launched = append(f.launched, req)
	f.alive[req.Name] = struct{}{}
	return nil
}

func (f *fakeRuntime) ListAlive(ctx context.Context) (map[string]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make(map[string]struct{}, len(f.alive))
	for name := range f.alive {
		out[name] = struct{}{}
	}
	return out, nil
}

func (f *fakeRuntime) CopyArtifacts(ctx context.Context, name, srcDir, destDir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	files, ok := f.artifacts[name]
	if !ok {
		return errors.New("no such path in container")
	}
	f.copied = append(f.copied, srcDir)
	dir := filepath.Join(destDir, path.Base(srcDir))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for fileName, content := range files {
		if err := os.WriteFile(filepath.Join(dir, fileName), []byte(content), 0644); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeRuntime) Stop(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, name)
	delete(f.alive, name)
	return nil
}

func (f *fakeRuntime) Remove(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, name)
	return nil
}

// kill makes a worker disappear from the alive snapshot
func (f *fakeRuntime) kill(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.alive, name)
}

// logSyncingRuntime also refreshes logs, as pod runtimes do
type logSyncingRuntime struct {
	*fakeRuntime
	logs map[string]string
}

func (r *logSyncingRuntime) SyncLogs(ctx context.Context, name, logPath string) error {
	content, ok := r.logs[name]
	if !ok {
		return errors.New("pod not found")
	}
	return os.WriteFile(logPath, []byte(content), 0644)
}

type testEnv struct {
	baseDir string
	runtime *fakeRuntime
	store   *file.FleetStore
	rec     *Reconciler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	baseDir := t.TempDir()
	rt := newFakeRuntime()
	store := file.NewFleetStore(filepath.Join(baseDir, "state.json"))
	return &testEnv{
		baseDir: baseDir,
		runtime: rt,
		store:   store,
		rec:     NewReconciler(rt, store, Options{BaseDir: baseDir}),
	}
}

func (e *testEnv) writeLog(t *testing.T, tag string, id int, content string) {
	t.Helper()
	writeFile(t, filepath.Join(e.baseDir, "crawl_logs", model.LogFileName(tag, id)), content)
}

func shardWorker(id, start, end int, status constants.WorkerStatus) *model.Worker {
	w := model.NewWorker("exp", id, model.LaunchConfig{
		Image:      "crawler",
		Volume:     "crawl-data",
		Count:      100,
		StartIndex: start,
		EndIndex:   end,
		Policies:   model.StringPtr("string:precise"),
	})
	w.Status = status
	return w
}

func TestSync_RefreshesArtifactsAndStatus(t *testing.T) {
	env := newTestEnv(t)
	fleet := model.NewFleet()
	fleet.Put(shardWorker(1, 0, 100, constants.WorkerStatusRunning))
	fleet.Put(shardWorker(2, 100, 200, constants.WorkerStatusRunning))

	env.runtime.alive["crawler-exp-1"] = struct{}{}
	env.runtime.artifacts["crawler-exp-1"] = map[string]string{
		"index.txt":    "42\n",
		"results.json": `{"rows": [1, 2, 3]}`,
	}

	fleet, err := env.rec.Sync(context.Background(), fleet, false)
	require.NoError(t, err)

	w1, err := fleet.Get("crawler-exp-1")
	require.NoError(t, err)
	assert.Equal(t, constants.WorkerStatusRunning, w1.Status)
	assert.Equal(t, model.IntPtr(42), w1.Index)
	assert.Equal(t, model.IntPtr(3), w1.Packages)
	assert.Equal(t, []string{"/persist/exp_1_output"}, env.runtime.copied)

	w2, err := fleet.Get("crawler-exp-2")
	require.NoError(t, err)
	assert.Equal(t, constants.WorkerStatusStopped, w2.Status)
	assert.Nil(t, w2.Index)
	assert.Nil(t, w2.Packages)
}

func TestSync_MalformedResultsKeepPreviousCount(t *testing.T) {
	env := newTestEnv(t)
	fleet := model.NewFleet()
	w := shardWorker(1, 0, 100, constants.WorkerStatusRunning)
	w.Index = model.IntPtr(10)
	w.Packages = model.IntPtr(7)
	fleet.Put(w)
	fleet.Put(shardWorker(2, 100, 200, constants.WorkerStatusRunning))

	env.runtime.artifacts["crawler-exp-1"] = map[string]string{
		"index.txt":    "20",
		"results.json": `{"rows": [`,
	}
	env.runtime.artifacts["crawler-exp-2"] = map[string]string{
		"index.txt":    "150",
		"results.json": `{"rows": [1]}`,
	}

	fleet, err := env.rec.Sync(context.Background(), fleet, false)
	require.NoError(t, err)

	w1, _ := fleet.Get("crawler-exp-1")
	assert.Equal(t, model.IntPtr(20), w1.Index)
	assert.Equal(t, model.IntPtr(7), w1.Packages)

	w2, _ := fleet.Get("crawler-exp-2")
	assert.Equal(t, model.IntPtr(150), w2.Index)
	assert.Equal(t, model.IntPtr(1), w2.Packages)
}

func TestSync_SentinelWinsOverLiveness(t *testing.T) {
	env := newTestEnv(t)
	fleet := model.NewFleet()
	fleet.Put(shardWorker(1, 0, 100, constants.WorkerStatusRunning))
	fleet.Put(shardWorker(2, 100, 200, constants.WorkerStatusRunning))
	env.runtime.alive["crawler-exp-1"] = struct{}{}
	env.writeLog(t, "exp", 1, "step\nDone with analysis\n")
	env.writeLog(t, "exp", 2, "step\nDone with analysis\n")

	fleet, err := env.rec.Sync(context.Background(), fleet, false)
	require.NoError(t, err)
	assert.True(t, fleet.IsDone("crawler-exp-1"))
	assert.True(t, fleet.IsDone("crawler-exp-2"))
}

func TestSync_ListAliveFailureLeavesFleet(t *testing.T) {
	env := newTestEnv(t)
	fleet := model.NewFleet()
	fleet.Put(shardWorker(1, 0, 100, constants.WorkerStatusRunning))
	env.runtime.listErr = errors.New("daemon unreachable")

	fleet, err := env.rec.Sync(context.Background(), fleet, false)
	assert.Error(t, err)
	assert.True(t, fleet.IsRunning("crawler-exp-1"))
}

func TestSync_CleanRemovesStaleOutput(t *testing.T) {
	env := newTestEnv(t)
	fleet := model.NewFleet()
	fleet.Put(shardWorker(1, 0, 100, constants.WorkerStatusRunning))
	stale := filepath.Join(env.baseDir, "exp_1_output", "stale.json")
	writeFile(t, stale, "{}")

	_, err := env.rec.Sync(context.Background(), fleet, true)
	require.NoError(t, err)
	assert.NoFileExists(t, stale)
}

func TestSync_UsesLogSyncer(t *testing.T) {
	baseDir := t.TempDir()
	rt := &logSyncingRuntime{
		fakeRuntime: newFakeRuntime(),
		logs:        map[string]string{"crawler-exp-1": "Done with analysis"},
	}
	require.NoError(t, os.MkdirAll(filepath.Join(baseDir, "crawl_logs"), 0755))
	rec := NewReconciler(rt, file.NewFleetStore(filepath.Join(baseDir, "state.json")), Options{BaseDir: baseDir})

	fleet := model.NewFleet()
	fleet.Put(shardWorker(1, 0, 100, constants.WorkerStatusRunning))
	fleet.Put(shardWorker(2, 100, 200, constants.WorkerStatusRunning))

	fleet, err := rec.Sync(context.Background(), fleet, false)
	require.NoError(t, err)
	assert.True(t, fleet.IsDone("crawler-exp-1"))
	assert.True(t, fleet.IsStopped("crawler-exp-2"))
}

func TestResume_StartIndex(t *testing.T) {
	env := newTestEnv(t)
	fleet := model.NewFleet()
	known := shardWorker(1, 0, 100, constants.WorkerStatusStopped)
	known.Index = model.IntPtr(57)
	fleet.Put(known)
	fleet.Put(shardWorker(2, 100, 200, constants.WorkerStatusStopped))
	fleet.Put(shardWorker(3, 200, 300, constants.WorkerStatusRunning))
	fleet.Put(shardWorker(4, 300, 400, constants.WorkerStatusDone))

	fleet, resumed := env.rec.Resume(context.Background(), fleet, nil, false)
	assert.Equal(t, []string{"crawler-exp-1", "crawler-exp-2"}, resumed)
	require.Len(t, env.runtime.launched, 2)

	first := env.runtime.launched[0]
	assert.Contains(t, first.Args, "--start-index=58")
	assert.Contains(t, first.Args, "--end-index=100")
	assert.Contains(t, first.Args, "--policies=string:precise")
	assert.NotContains(t, first.Args, "--fresh")

	second := env.runtime.launched[1]
	assert.Contains(t, second.Args, "--start-index=100")
	assert.Contains(t, second.Args, "--end-index=200")

	w1, _ := fleet.Get("crawler-exp-1")
	assert.Equal(t, constants.WorkerStatusRunning, w1.Status)
	assert.Equal(t, 0, w1.Config.StartIndex)
	assert.Equal(t, model.IntPtr(57), w1.Index)
	assert.True(t, fleet.IsDone("crawler-exp-4"))
	assert.Empty(t, env.runtime.stopped)
}

func TestResume_FilterAndRemove(t *testing.T) {
	env := newTestEnv(t)
	fleet := model.NewFleet()
	fleet.Put(shardWorker(1, 0, 100, constants.WorkerStatusStopped))
	fleet.Put(shardWorker(2, 100, 200, constants.WorkerStatusStopped))

	fleet, resumed := env.rec.Resume(context.Background(), fleet, []int{2}, true)
	assert.Equal(t, []string{"crawler-exp-2"}, resumed)
	assert.Equal(t, []string{"crawler-exp-2"}, env.runtime.stopped)
	assert.Equal(t, []string{"crawler-exp-2"}, env.runtime.removed)
	assert.True(t, fleet.IsStopped("crawler-exp-1"))
	assert.True(t, fleet.IsRunning("crawler-exp-2"))
}

func TestResume_LaunchFailureStaysStopped(t *testing.T) {
	env := newTestEnv(t)
	fleet := model.NewFleet()
	fleet.Put(shardWorker(1, 0, 100, constants.WorkerStatusStopped))
	env.runtime.launchErr["crawler-exp-1"] = errors.New("name in use")

	fleet, resumed := env.rec.Resume(context.Background(), fleet, nil, false)
	assert.Empty(t, resumed)
	assert.True(t, fleet.IsStopped("crawler-exp-1"))
}

func TestStop(t *testing.T) {
	env := newTestEnv(t)
	fleet := model.NewFleet()
	fleet.Put(shardWorker(1, 0, 100, constants.WorkerStatusRunning))
	fleet.Put(shardWorker(2, 100, 200, constants.WorkerStatusDone))
	fleet.Put(shardWorker(3, 200, 300, constants.WorkerStatusRunning))

	fleet = env.rec.Stop(context.Background(), fleet, []int{1, 2}, true)
	assert.True(t, fleet.IsStopped("crawler-exp-1"))
	assert.True(t, fleet.IsDone("crawler-exp-2"))
	assert.True(t, fleet.IsRunning("crawler-exp-3"))
	assert.Equal(t, []string{"crawler-exp-1", "crawler-exp-2"}, env.runtime.stopped)
	assert.Equal(t, []string{"crawler-exp-1", "crawler-exp-2"}, env.runtime.removed)
}

func TestCycle_BacksUpBeforeResume(t *testing.T) {
	env := newTestEnv(t)
	fleet := model.NewFleet()
	fleet.Put(shardWorker(1, 0, 100, constants.WorkerStatusRunning))
	env.runtime.artifacts["crawler-exp-1"] = map[string]string{"index.txt": "9", "results.json": `{"rows": []}`}

	fleet, done, err := env.rec.Cycle(context.Background(), fleet)
	require.NoError(t, err)
	assert.False(t, done)
	assert.True(t, fleet.IsRunning("crawler-exp-1"))
	require.Len(t, env.runtime.launched, 1)
	assert.Contains(t, env.runtime.launched[0].Args, "--start-index=10")

	backup, err := file.NewFleetStore(file.BackupPath(env.store.Location())).Load(context.Background())
	require.NoError(t, err)
	assert.True(t, backup.IsStopped("crawler-exp-1"))
}

func TestSync_ForcedRelaunchIgnoresPreviousCompletion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d := planner.NewDispatcher(env.runtime)
	req := &planner.StartRequest{
		Tag:      "exp",
		Workers:  1,
		Range:    100,
		Template: model.LaunchConfig{Image: "crawler", Count: 100},
		LogsDir:  env.rec.opts.LogsDir,
	}

	fleet, _, err := d.Start(ctx, model.NewFleet(), req)
	require.NoError(t, err)
	env.writeLog(t, "exp", 1, "Done with analysis\n")
	env.runtime.kill("crawler-exp-1")

	fleet, err = env.rec.Sync(ctx, fleet, false)
	require.NoError(t, err)
	require.True(t, fleet.IsDone("crawler-exp-1"))

	req.Force = true
	req.Fresh = true
	fleet, launched, err := d.Start(ctx, fleet, req)
	require.NoError(t, err)
	require.Equal(t, []string{"crawler-exp-1"}, launched)

	fleet, err = env.rec.Sync(ctx, fleet, false)
	require.NoError(t, err)
	w, err := fleet.Get("crawler-exp-1")
	require.NoError(t, err)
	assert.Equal(t, constants.WorkerStatusRunning, w.Status)
}
