package config

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config package should avoid importing any pkg/core packages in order to
// prevent any cyclic-dependancy issues

const (
	// current working dir
	searchPath1 = "."
	// home datadir
	searchPath2 = "$HOME/.consensusd/"

	// name for the config file. Does not include extension.
	configFileName = "consensusd"
)

var (
	r *Registry
)

// Registry stores all loaded configurations according to the config order
// NB It should be cheap to be copied by value
type Registry struct {
	UsedConfigFile string

	// All configuration groups
	General     generalConfiguration
	Storage     storageConfiguration
	Engine      engineConfiguration
	Logger      loggerConfiguration
	Performance performanceConfiguration
}

// Load makes an attempt to read and unmershal any configs from flag, env and
// config file.
//
// It  uses the following precedence order. Each item takes precedence over the item below it:
//  - flag
//  - env
//  - config
//  - key/value store (not used yet)
//  - default
//
// The configuration file can be in form of TOML, JSON, YAML, HCL or Java
// properties config files
func Load() error {

	r = new(Registry)

	// Initialization
	if err := r.init(); err != nil {
		return err
	}

	// Validation and defaulting should be done by the consumers (packages) as
	// they will be the best at knowing what they expect

	return nil
}

// Get returns registry by value in order to avoid further modifications after
// initial configuration loading
func Get() Registry {
	return *r
}

func (r *Registry) init() error {

	// Make an attempt to find consensusd.toml/consensusd.json/consensusd.yaml
	// in any of the provided paths below
	viper.SetConfigName(configFileName)

	// search paths
	viper.AddConfigPath(searchPath1)
	viper.AddConfigPath(searchPath2)

	// Initialize and parse flags
	confFile, err := loadFlags()

	if err != nil {
		return err
	}

	// confPath is overwritten by the one from command line
	if len(confFile) > 0 {
		viper.SetConfigFile(confFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		return errors.Wrap(err, "error reading config file")
	}

	defineENV()

	// Uncomment on debugging only. This will list all levels of configurations
	// viper.Debug()

	// Unmarshal all configurations from all conf levels to the registry struct
	if err := viper.Unmarshal(&r); err != nil {
		return errors.Wrap(err, "unable to decode into struct")
	}

	r.UsedConfigFile = viper.ConfigFileUsed()

	return nil
}

func loadFlags() (string, error) {

	pflag.CommandLine.Init("consensusd", pflag.ExitOnError)

	pflag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage of %s:\n", "consensusd")
		pflag.PrintDefaults()
	}

	// Define all supported flags.
	defineFlags()
	configFile := pflag.String("config", "", "Set path to the config file")

	// Bind all command line parameters to their corresponding file configs
	//
	// e.g CLI argument `--logger.level="warn"`` will overwrite the value from
	// `[logger] level = "info"`` in the loaded config file
	if err := viper.BindPFlags(pflag.CommandLine); err != nil {
		return "", errors.Wrap(err, "unable to bind pflags")
	}

	pflag.Parse()

	return *configFile, nil
}

// define a set of flags as bindings to config file settings
// The settings that are needed to be passed frequently by CLI should be added here
func defineFlags() {
	_ = pflag.StringP("logger.level", "l", "", "override logger.level settings in config file")
	_ = pflag.StringP("general.network", "n", "testnet", "override general.network settings in config file")
	_ = pflag.StringP("storage.backend", "s", "heavy_v1", "storage driver: heavy_v1 (leveldb) or lite_v1 (buntdb)")
	_ = pflag.StringP("storage.dir", "b", "chain", "sets the blockchain storage directory")
	_ = pflag.Uint64("engine.minstakeamount", 100000000000, "minimum stake amount, in the smallest unit, to register a validator")
	_ = pflag.Uint32("engine.stakematurityblocks", 100, "number of blocks a stake must age before it can be withdrawn")
	_ = pflag.Uint32("engine.posactivationheight", 0, "height at which proof-of-stake slots begin")
	_ = pflag.Float64("engine.powtargetratio", 0.5, "target fraction of proof-of-work blocks per retarget window")
	_ = pflag.Int("engine.workercount", 0, "proof-of-work miner worker count; the engine does not read this value (the mine command takes --workers, where 0 uses GOMAXPROCS)")
}

// define a set of environment variables as bindings to config file settings
func defineENV() {

	// Bind config key general.network to ENV var CONSENSUSD_GENERAL_NETWORK
	if err := viper.BindEnv("general.network", "CONSENSUSD_GENERAL_NETWORK"); err != nil {
		fmt.Printf("defineENV %v", err)
	}

	if err := viper.BindEnv("logger.level", "CONSENSUSD_LOGGER_LEVEL"); err != nil {
		fmt.Printf("defineENV %v", err)
	}

	if err := viper.BindEnv("storage.backend", "CONSENSUSD_STORAGE_BACKEND"); err != nil {
		fmt.Printf("defineENV %v", err)
	}
}

// Mock should be used only in test packages. It could be useful when a unit
// test needs to be rerun with configs different from the default ones.
func Mock(m *Registry) {
	r = m
}

func init() {
	// By default Registry should be empty but not nil. In that way, consumers
	// (packages) can use their default values on unit testing
	r = new(Registry)
	r.Storage.Backend = "lite_v1"
	r.General.Network = "testnet"
	r.Engine.MinStakeAmount = 100000000000
	r.Engine.StakeMaturityBlocks = 100
	r.Engine.PowTargetRatio = 0.5
}
