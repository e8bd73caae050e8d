package provision

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/vmpilot/internal/history"
	"github.com/loykin/vmpilot/internal/template"
)

func validSpec(t *testing.T) VMSpec {
	t.Helper()
	dir := t.TempDir()
	iso := filepath.Join(dir, "win11.iso")
	require.NoError(t, os.WriteFile(iso, []byte("iso"), 0o600))
	return VMSpec{
		Name:                 "gpu-vm",
		DiskSizeGB:           40,
		MemoryGB:             8,
		CPUCores:             4,
		ISOPath:              iso,
		NetworkSwitch:        "Default Switch",
		GPUName:              "AUTO",
		VHDPath:              dir,
		GPUAllocationPercent: 50,
		Username:             "admin",
		Password:             "s3cret",
		AutoLogon:            true,
	}
}

func TestProvisionEndToEnd(t *testing.T) {
	requireUnix(t)
	f := newFixture(t)
	// the script exits before the appended powershell sentinel line
	f.writeTemplate(t, template.ScriptTemplate, "echo \"VM __VM_NAME__ mem __MEMORY_GB__\"\necho PROVISION_SUCCESS\nexit 0\n")
	f.writeTemplate(t, template.UnattendTemplate, "<user>__USERNAME__</user><pass>__PASSWORD__</pass><vm>__VM_NAME__</vm>")

	sum, err := f.p.Provision(context.Background(), validSpec(t))
	require.NoError(t, err)
	assert.Equal(t, "VM provisioned successfully", sum.Message)
	assert.Equal(t, []string{
		"Starting provisioning for VM: gpu-vm...",
		"VM gpu-vm mem 8",
		"PROVISION_SUCCESS",
	}, f.lines.texts(StreamStdout))
	assert.Equal(t, []history.EventType{history.EventStart, history.EventFinish}, f.sink.types())

	workDir := f.p.Engine().WorkDir("gpu-vm")
	unattend, err := os.ReadFile(filepath.Join(workDir, template.UnattendRendered))
	require.NoError(t, err)
	assert.Equal(t, "<user>admin</user><pass>s3cret</pass><vm>__VM_NAME__</vm>", string(unattend))

	script, err := os.ReadFile(filepath.Join(workDir, template.ScriptRendered))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(script), template.SuccessLine))

	log, err := os.ReadFile(filepath.Join(f.logDir, "gpu-vm.provision.log"))
	require.NoError(t, err)
	assert.Contains(t, string(log), "VM gpu-vm mem 8")
}

func TestProvisionValidationErrors(t *testing.T) {
	f := newFixture(t)
	cases := map[string]func(*VMSpec){
		"empty name":  func(s *VMSpec) { s.Name = "" },
		"bad name":    func(s *VMSpec) { s.Name = "../x" },
		"memory":      func(s *VMSpec) { s.MemoryGB = 1 },
		"disk":        func(s *VMSpec) { s.DiskSizeGB = 19 },
		"vhd missing": func(s *VMSpec) { s.VHDPath = filepath.Join(s.VHDPath, "nope") },
		"iso missing": func(s *VMSpec) { s.ISOPath = s.ISOPath + ".missing" },
		"cpu":         func(s *VMSpec) { s.CPUCores = 0 },
		"gpu percent": func(s *VMSpec) { s.GPUAllocationPercent = 101 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			spec := validSpec(t)
			mutate(&spec)
			_, err := f.p.Provision(context.Background(), spec)
			require.ErrorIs(t, err, ErrInvalidSpec)
		})
	}
	st, _ := f.p.Status()
	assert.False(t, st.Busy)
	assert.Empty(t, f.sink.types(), "nothing recorded for rejected specs")
}

func TestProvisionResourceMessages(t *testing.T) {
	spec := validSpec(t)
	spec.MemoryGB = 1
	assert.EqualError(t, spec.CheckResources(), "invalid VM spec: Minimum memory is 2GB")

	spec = validSpec(t)
	spec.DiskSizeGB = 10
	assert.EqualError(t, spec.CheckResources(), "invalid VM spec: Minimum disk size is 20GB")

	spec = validSpec(t)
	spec.VHDPath = "/does/not/exist"
	assert.EqualError(t, spec.CheckResources(), "invalid VM spec: VHD Path does not exist: /does/not/exist")

	spec = validSpec(t)
	spec.ISOPath = "/does/not/exist.iso"
	assert.EqualError(t, spec.CheckResources(), "invalid VM spec: ISO Path does not exist: /does/not/exist.iso")
}

func TestProvisionMissingTemplateReleasesSlot(t *testing.T) {
	f := newFixture(t)
	_, err := f.p.Provision(context.Background(), validSpec(t))
	require.ErrorIs(t, err, template.ErrTemplateMissing)

	st, _ := f.p.Status()
	assert.False(t, st.Busy)
	assert.Equal(t, []history.EventType{history.EventFinish}, f.sink.types())
}

func TestProvisionMissingTemplateDir(t *testing.T) {
	f := newFixture(t)
	f.p.templateDir = "not-there"
	_, err := f.p.Provision(context.Background(), validSpec(t))
	require.ErrorIs(t, err, template.ErrTemplateNotFound)
}

func TestProvisionLockedByAnotherProcess(t *testing.T) {
	f := newFixture(t)
	spec := validSpec(t)
	unlock, err := f.p.lockJob(spec.Name)
	require.NoError(t, err)
	defer unlock()

	// a second pipeline over the same staging root stands in for another process
	other := New(Options{Engine: f.p.Engine(), Runner: f.runner})
	_, err = other.Provision(context.Background(), spec)
	require.ErrorIs(t, err, ErrBusy)
	st, _ := other.Status()
	assert.False(t, st.Busy)
}

func TestStartRunsInBackground(t *testing.T) {
	requireUnix(t)
	f := newFixture(t)
	f.writeTemplate(t, template.ScriptTemplate, "sleep 0.2\necho PROVISION_SUCCESS\nexit 0\n")
	f.writeTemplate(t, template.UnattendTemplate, "<x/>")

	task, err := f.p.Start(context.Background(), validSpec(t))
	require.NoError(t, err)
	require.NotEmpty(t, task.RunID)

	st, _ := f.p.Status()
	assert.True(t, st.Busy)
	assert.Equal(t, task.RunID, st.RunID)

	_, err = f.p.Start(context.Background(), validSpec(t))
	require.ErrorIs(t, err, ErrBusy)

	sum, err := task.Wait()
	require.NoError(t, err)
	assert.Equal(t, task.RunID, sum.RunID)
	<-task.Done()
	st, _ = f.p.Status()
	assert.False(t, st.Busy)
}
