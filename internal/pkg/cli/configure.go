// Package cli implements accelhook's command line: a single "configure"
// subcommand run as a container runtime prestart hook, mirroring the
// structure (if not the scope) of apptainer's own cmd/internal/cli.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/accelhook/accelhook/internal/pkg/accel"
	"github.com/accelhook/accelhook/internal/pkg/accel/config"
	"github.com/accelhook/accelhook/internal/pkg/accel/engine/intel"
	"github.com/accelhook/accelhook/internal/pkg/accel/engine/xilinx"
	"github.com/accelhook/accelhook/internal/pkg/accel/provision"
	"github.com/accelhook/accelhook/internal/pkg/sylog"
)

const defaultConfigPath = "/etc/acceleration.json"

var (
	configurePid       int
	configureRootfs    string
	configureDevices   string
	configureFunctions string
	configureLogFile   string
	configureLogLevel  string
)

func init() {
	ConfigureCmd.Flags().IntVarP(&configurePid, "pid", "p", 0, "pid of the container's init process")
	ConfigureCmd.Flags().StringVarP(&configureRootfs, "rootfs", "r", "", "absolute path of the container's root filesystem on the host")
	ConfigureCmd.Flags().StringVarP(&configureDevices, "devices", "d", "", `comma separated device tokens ("all", a bb:dd.f BDF, or a bare slot id)`)
	ConfigureCmd.Flags().StringVarP(&configureFunctions, "functions", "f", "", "comma separated acceleration function names, one per device token")
	ConfigureCmd.Flags().StringVarP(&configureLogFile, "log", "l", "", "log file path (defaults to stderr)")
	ConfigureCmd.Flags().StringVarP(&configureLogLevel, "loglevel", "L", "", "log level override (error|info|debug)")

	_ = ConfigureCmd.MarkFlagRequired("pid")
	_ = ConfigureCmd.MarkFlagRequired("rootfs")
	_ = ConfigureCmd.MarkFlagRequired("devices")

	RootCmd.AddCommand(ConfigureCmd)
}

// RootCmd is accelhook's base cobra command.
var RootCmd = &cobra.Command{
	Use:           "accelhook",
	Short:         "Provision FPGA accelerator devices into a container",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// ConfigureCmd implements the "configure" subcommand, the only entry
// point a container runtime prestart hook ever actually invokes.
var ConfigureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Attach and reconfigure accelerator devices for a starting container",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigure()
	},
}

func runConfigure() error {
	if configureLogFile != "" {
		if err := sylog.OpenLogFile(configureLogFile); err != nil {
			return err
		}
	}
	if configureLogLevel != "" {
		if level, ok := sylog.LevelFromName(configureLogLevel); ok {
			sylog.SetLevel(level, configureLogFile == "")
		} else {
			sylog.Warningf("log level %s unknown", configureLogLevel)
		}
	}

	world := accel.NewWorld()
	world.Registry.Register(intel.New())
	world.Registry.Register(xilinx.New())

	doc, err := config.Load(defaultConfigPath)
	if err != nil {
		return err
	}
	if err := doc.Apply(world); err != nil {
		return err
	}
	if configureLogLevel != "" {
		if level, ok := sylog.LevelFromName(configureLogLevel); ok {
			sylog.SetLevel(level, configureLogFile == "")
		} else {
			sylog.Warningf("log level %s unknown", configureLogLevel)
		}
	}

	if err := world.Registry.ProbeInstalled(); err != nil {
		return err
	}
	for _, e := range world.Registry.All() {
		if e.Installed {
			sylog.Infof("engine %s: installed", e.Name)
		} else {
			sylog.Infof("engine %s: not installed, skipping", e.Name)
		}
	}

	if err := world.Enumerate(); err != nil {
		return err
	}
	sylog.Infof("enumerated %d accelerator device(s)", world.Devices.Len())

	selector := world.NewSelector()
	deviceTokens := accel.ParseTokens(configureDevices)
	functionTokens := accel.ParseTokens(configureFunctions)

	attached, err := selector.SelectDevices(world.Devices, deviceTokens)
	if err != nil {
		return err
	}
	funcNames, err := selector.ResolveFunctions(attached, functionTokens)
	if err != nil {
		return err
	}

	if err := selector.Reconcile(attached, funcNames); err != nil {
		return err
	}

	return provision.Configure(world, configurePid, configureRootfs, attached)
}

// Execute runs accelhook's root command. Any error returned by the
// configure subcommand is fatal: the runtime hook invoking this binary
// treats a non-zero exit as "abort the container start", so there is
// no partial-success exit code to report, matching the original tool's
// EXIT_FAILURE policy.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		sylog.Errorf("%v", err)
		os.Exit(1)
	}
}
