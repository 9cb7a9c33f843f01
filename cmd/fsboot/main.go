package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/osbuild/fsboot/internal/config"
	"github.com/osbuild/fsboot/pkg/blockio"
	"github.com/osbuild/fsboot/pkg/bootfs"
	"github.com/osbuild/fsboot/pkg/fixture"
	"github.com/osbuild/fsboot/pkg/fsboot"
	"github.com/osbuild/fsboot/pkg/partfilter"
)

var (
	osStdout io.Writer = os.Stdout
	osArgs             = os.Args
)

// plainFormatter prints the bare message, the search log reads like a
// console transcript.
type plainFormatter struct{}

func (plainFormatter) Format(e *logrus.Entry) ([]byte, error) {
	return []byte(e.Message + "\n"), nil
}

func newLogger(cmd *cobra.Command) (*logrus.Logger, error) {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetOutput(osStdout)
	logger.SetFormatter(plainFormatter{})
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger, nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	conf, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	fixturePath, err := cmd.Flags().GetString("fixture")
	if err != nil {
		return nil, err
	}
	if fixturePath != "" {
		conf.Fixture = fixturePath
	}
	return conf, nil
}

// providers returns the in-memory providers of the configured fixture, or
// the host ones.
func providers(conf *config.Config) (blockio.Provider, bootfs.Provider, error) {
	if conf.Fixture != "" {
		fx, err := fixture.Load(conf.Fixture)
		if err != nil {
			return nil, nil, err
		}
		return fx.Build()
	}
	resolver := conf.Resolver()
	return &blockio.Sysfs{Resolver: resolver}, &bootfs.Host{Resolver: resolver}, nil
}

func newBooter(cmd *cobra.Command) (*fsboot.Booter, *config.Config, error) {
	conf, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cmd)
	if err != nil {
		return nil, nil, err
	}
	blocks, fs, err := providers(conf)
	if err != nil {
		return nil, nil, err
	}

	b := fsboot.New(blocks, fs, logger)
	b.Names = conf.Scheme()
	b.Buses = conf.Buses
	conf.Apply(b.Locator)
	return b, conf, nil
}

func cmdDiscover(cmd *cobra.Command, args []string) error {
	b, _, err := newBooter(cmd)
	if err != nil {
		return err
	}
	filter, err := cmd.Flags().GetStringArray("filter")
	if err != nil {
		return err
	}
	if len(filter) > 0 {
		b.Filter, err = partfilter.New(filter...)
		if err != nil {
			return err
		}
	}

	b.DiscoverAndReport()
	return nil
}

func cmdDevices(cmd *cobra.Command, args []string) error {
	conf, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	filterTerms, err := cmd.Flags().GetStringArray("filter")
	if err != nil {
		return err
	}
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}

	filter, err := partfilter.New(filterTerms...)
	if err != nil {
		return err
	}
	fmter, err := partfilter.NewResultsFormatter(partfilter.OutputFormat(format))
	if err != nil {
		return err
	}
	blocks, _, err := providers(conf)
	if err != nil {
		return err
	}
	lister, ok := blocks.(blockio.Lister)
	if !ok {
		return fmt.Errorf("block devices cannot be listed")
	}
	infos, err := lister.Devices()
	if err != nil {
		return err
	}

	var targets []partfilter.Target
	for _, info := range infos {
		t := partfilter.Describe(info, conf.Scheme(), conf.Buses)
		if filter.Matches(t) {
			targets = append(targets, t)
		}
	}
	return fmter.Output(osStdout, targets)
}

func cmdBoot(cmd *cobra.Command, args []string) error {
	b, conf, err := newBooter(cmd)
	if err != nil {
		return err
	}
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	capacity := conf.Capacity
	if flag := cmd.Flags().Lookup("capacity"); flag != nil && flag.Changed {
		capacity = flag.Value.(*sizeValue).size
	}
	if capacity == 0 {
		return fmt.Errorf("capacity cannot be zero")
	}

	buf := make([]byte, capacity)
	n, err := b.BootFirst(buf)
	if err != nil {
		return err
	}
	if err := os.WriteFile(output, buf[:n], 0644); err != nil {
		return err
	}
	fmt.Fprintf(osStdout, "boot image: %d bytes written to %s\n", n, output)
	return nil
}

func run() error {
	rootCmd := &cobra.Command{
		Use:   "fsboot",
		Short: "Find and load a boot image from the first usable partition",
		Long: `Find and load a boot image from the first usable partition

Fsboot walks the storage buses in priority order, mounts each partition
in turn and loads the first file matching the boot image name.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "Config file (.yaml, .toml or .json), defaults to $"+config.EnvKey)
	rootCmd.PersistentFlags().String("fixture", "", "Use the in-memory devices described in this file instead of the host")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log every probe and directory entry")

	discoverCmd := &cobra.Command{
		Use:          "discover",
		Short:        "Report every partition and the root directory of those that mount",
		RunE:         cmdDiscover,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
	}
	discoverCmd.Flags().StringArray("filter", nil, "Only report partitions matching the given criteria, e.g. \"bus:sdcard\"")
	rootCmd.AddCommand(discoverCmd)

	devicesCmd := &cobra.Command{
		Use:          "devices",
		Short:        "List known block devices, use --filter to limit further",
		RunE:         cmdDevices,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
	}
	devicesCmd.Flags().StringArray("filter", nil, "Filter devices by a specific criteria")
	devicesCmd.Flags().String("format", "", fmt.Sprintf("Output in a specific format (%s)", strings.Join(partfilter.SupportedOutputFormats()[1:], ",")))
	rootCmd.AddCommand(devicesCmd)

	bootCmd := &cobra.Command{
		Use:          "boot",
		Short:        "Load the first boot image found and write it to a file",
		RunE:         cmdBoot,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
	}
	bootCmd.Flags().String("output", "", "File to write the boot image to")
	bootCmd.Flags().Var(&sizeValue{}, "capacity", "Largest image accepted, e.g. \"32 MiB\" (default from config)")
	if err := bootCmd.MarkFlagRequired("output"); err != nil {
		return err
	}
	rootCmd.AddCommand(bootCmd)

	rootCmd.SetArgs(osArgs[1:])
	rootCmd.SetOut(osStdout)
	return rootCmd.Execute()
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("error: %s", err)
	}
}
