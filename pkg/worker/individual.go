package worker

import (
	"strconv"

	"github.com/sammck-go/abibridge/internal/corelog"
)

// IndividualArgs builds the command line for spawning one worker per
// native plugin load, per spec §6: "host <plugin_type> <plugin_path>
// <endpoint_base_dir> <parent_pid>".
type IndividualArgs struct {
	PluginType      string
	PluginPath      string
	EndpointBaseDir string
	ParentPID       int
}

// CommandArgs renders the worker's argv (excluding argv[0]).
func (a IndividualArgs) CommandArgs() []string {
	return []string{"host", a.PluginType, a.PluginPath, a.EndpointBaseDir, strconv.Itoa(a.ParentPID)}
}

// SpawnIndividual launches a dedicated worker for one plugin instance.
func SpawnIndividual(logger corelog.Logger, binaryPath string, args IndividualArgs, stdio StdioMode, logPath string, extraEnv []string) (*Handle, error) {
	return Spawn(logger, SpawnConfig{
		BinaryPath: binaryPath,
		Args:       args.CommandArgs(),
		ExtraEnv:   extraEnv,
		Stdio:      stdio,
		LogPath:    logPath,
	})
}
