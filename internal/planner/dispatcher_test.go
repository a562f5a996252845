package planner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"crawlfleet/internal/model"
	"crawlfleet/pkg/constants"
	"crawlfleet/pkg/interfaces"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRuntime struct {
	launched []*interfaces.LaunchRequest
	fail     map[string]bool
}

func (f *fakeRuntime) Launch(ctx context.Context, req *interfaces.LaunchRequest) error {
	if f.fail[req.Name] {
		return errors.New("name already in use")
	}
	f.launched = append(f.launched, req)
	return nil
}

func (f *fakeRuntime) ListAlive(ctx context.Context) (map[string]struct{}, error) {
	return map[string]struct{}{}, nil
}

func (f *fakeRuntime) CopyArtifacts(ctx context.Context, name, srcDir, destDir string) error {
	return nil
}

func (f *fakeRuntime) Stop(ctx context.Context, name string) error {
	return nil
}

func (f *fakeRuntime) Remove(ctx context.Context, name string) error {
	return nil
}

func startRequest() *StartRequest {
	return &StartRequest{
		Tag:     "exp",
		Workers: 3,
		Range:   300,
		Template: model.LaunchConfig{
			Image:  "nodetaint/crawler:latest",
			Volume: "crawl-data",
			Count:  100,
		},
		LogsDir: "/data/crawl_logs",
	}
}

func TestDispatcher_Start(t *testing.T) {
	rt := &fakeRuntime{}
	d := NewDispatcher(rt)

	fleet, launched, err := d.Start(context.Background(), model.NewFleet(), startRequest())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"nodetaint-crawler-latest-exp-1",
		"nodetaint-crawler-latest-exp-2",
		"nodetaint-crawler-latest-exp-3",
	}, launched)
	require.Equal(t, 3, fleet.Len())

	bounds := [][2]int{{0, 100}, {100, 200}, {200, 300}}
	for i, w := range fleet.List() {
		assert.Equal(t, constants.WorkerStatusRunning, w.Status)
		assert.Equal(t, i+1, w.ID)
		assert.Equal(t, bounds[i][0], w.Config.StartIndex)
		assert.Equal(t, bounds[i][1], w.Config.EndIndex)
		assert.Nil(t, w.Index)
	}

	first := rt.launched[0]
	assert.Equal(t, "/data/crawl_logs/exp_1_container.log", first.LogPath)
	assert.Equal(t, "crawl-data", first.Volume)
	assert.Contains(t, first.Args, "--start-index=0")
	assert.Contains(t, first.Args, "--end-index=100")
	assert.Contains(t, first.Args, "--output-dir=/persist/exp_1_output")
	assert.NotContains(t, first.Args, "--fresh")
}

func TestDispatcher_StartIsIdempotent(t *testing.T) {
	rt := &fakeRuntime{}
	d := NewDispatcher(rt)
	ctx := context.Background()

	fleet, _, err := d.Start(ctx, model.NewFleet(), startRequest())
	require.NoError(t, err)
	require.NoError(t, fleet.Update("nodetaint-crawler-latest-exp-2", func(w *model.Worker) {
		w.Index = model.IntPtr(150)
	}))
	before := fleet.Clone()

	fleet, launched, err := d.Start(ctx, fleet, startRequest())
	require.NoError(t, err)
	assert.Empty(t, launched)
	assert.Len(t, rt.launched, 3)
	assert.Equal(t, before.List(), fleet.List())
}

func TestDispatcher_StartForceRelaunches(t *testing.T) {
	rt := &fakeRuntime{}
	d := NewDispatcher(rt)
	ctx := context.Background()

	fleet, _, err := d.Start(ctx, model.NewFleet(), startRequest())
	require.NoError(t, err)

	req := startRequest()
	req.Force = true
	req.Fresh = true
	_, launched, err := d.Start(ctx, fleet, req)
	require.NoError(t, err)
	assert.Len(t, launched, 3)
	assert.Contains(t, rt.launched[3].Args, "--fresh")
}

func TestDispatcher_StartForceRotatesPreviousLog(t *testing.T) {
	rt := &fakeRuntime{}
	d := NewDispatcher(rt)
	ctx := context.Background()
	req := startRequest()
	req.LogsDir = t.TempDir()

	fleet, _, err := d.Start(ctx, model.NewFleet(), req)
	require.NoError(t, err)
	logPath := filepath.Join(req.LogsDir, "exp_1_container.log")
	require.NoError(t, os.WriteFile(logPath, []byte("Done with analysis\n"), 0644))

	req.Force = true
	_, _, err = d.Start(ctx, fleet, req)
	require.NoError(t, err)

	_, err = os.Stat(logPath)
	assert.True(t, os.IsNotExist(err))
	rotated, err := os.ReadFile(logPath + ".1")
	require.NoError(t, err)
	assert.Equal(t, "Done with analysis\n", string(rotated))
}

func TestDispatcher_StartForceDryRunKeepsLog(t *testing.T) {
	d := NewDispatcher(&fakeRuntime{})
	ctx := context.Background()
	req := startRequest()
	req.LogsDir = t.TempDir()

	fleet, _, err := d.Start(ctx, model.NewFleet(), req)
	require.NoError(t, err)
	logPath := filepath.Join(req.LogsDir, "exp_1_container.log")
	require.NoError(t, os.WriteFile(logPath, []byte("Done with analysis\n"), 0644))

	req.Force = true
	req.DryRun = true
	_, _, err = d.Start(ctx, fleet, req)
	require.NoError(t, err)

	assert.FileExists(t, logPath)
	assert.NoFileExists(t, logPath+".1")
}

func TestDispatcher_LaunchFailureRecordedStopped(t *testing.T) {
	rt := &fakeRuntime{fail: map[string]bool{"nodetaint-crawler-latest-exp-2": true}}
	d := NewDispatcher(rt)

	fleet, launched, err := d.Start(context.Background(), model.NewFleet(), startRequest())
	require.NoError(t, err)
	assert.Len(t, launched, 2)
	assert.True(t, fleet.IsStopped("nodetaint-crawler-latest-exp-2"))
}

func TestDispatcher_InvalidPlan(t *testing.T) {
	d := NewDispatcher(&fakeRuntime{})
	req := startRequest()
	req.Workers = 0

	fleet := model.NewFleet()
	_, _, err := d.Start(context.Background(), fleet, req)
	assert.ErrorIs(t, err, ErrInvalidPlan)
	assert.Equal(t, 0, fleet.Len())
}
