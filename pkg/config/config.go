package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"os/user"
	"path"

	"gopkg.in/yaml.v2"
)

const (
	configDir  string = ".rvdbg"
	configFile string = "config.yml"
)

// Config defines all configuration options available to be set through
// the config file. Command line flags override these.
type Config struct {
	// Listen is the address the server accepts client connections on.
	Listen string `yaml:"listen"`
	// Cores is the number of simulated cores.
	Cores int `yaml:"cores"`
	// ContinueTimeout bounds a continue operation, in seconds. Zero
	// disables the timeout.
	ContinueTimeout float64 `yaml:"continue-timeout"`
	// ExitOnKill makes a kill packet end the server instead of resetting
	// the target and waiting for the next session.
	ExitOnKill bool `yaml:"exit-on-kill"`
	// KillCoreOnExit marks a core dead once it performs an exit system
	// call. Off by default, which looks to the client like a fresh
	// inferior immediately replacing the exited one.
	KillCoreOnExit bool `yaml:"kill-core-on-exit"`
}

// Defaults returns the configuration used when no file and no flags say
// otherwise.
func Defaults() *Config {
	return &Config{
		Listen: "localhost:4242",
		Cores:  1,
	}
}

// LoadConfig attempts to populate a Config object from the config.yml file.
func LoadConfig() *Config {
	err := createConfigPath()
	if err != nil {
		fmt.Printf("Could not create config directory: %v.", err)
		return Defaults()
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		fmt.Printf("Unable to get config file path: %v.", err)
		return Defaults()
	}

	f, err := os.Open(fullConfigFile)
	if err != nil {
		f, err = createDefaultConfig(fullConfigFile)
		if err != nil {
			fmt.Printf("Error creating default config file: %v", err)
			return Defaults()
		}
	}
	defer func() {
		err := f.Close()
		if err != nil {
			fmt.Printf("Closing config file failed: %v.", err)
		}
	}()

	data, err := ioutil.ReadAll(f)
	if err != nil {
		fmt.Printf("Unable to read config data: %v.", err)
		return Defaults()
	}

	c := Defaults()
	err = yaml.Unmarshal(data, c)
	if err != nil {
		fmt.Printf("Unable to decode config file: %v.", err)
		return Defaults()
	}

	return c
}

// SaveConfig will marshal and save the config struct to disk.
func SaveConfig(conf *Config) error {
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(*conf)
	if err != nil {
		return err
	}

	f, err := os.Create(fullConfigFile)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(out)
	return err
}

func createDefaultConfig(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("unable to create config file: %v", err)
	}
	err = writeDefaultConfig(f)
	if err != nil {
		return nil, fmt.Errorf("unable to write default configuration: %v", err)
	}
	return f, nil
}

func writeDefaultConfig(f *os.File) error {
	_, err := f.WriteString(
		`# Configuration file for the rvdbg debug server.

# This is the default configuration file. Available options are provided,
# but disabled. Delete the leading hash mark to enable an item.

# Address the server listens on for client connections.
# listen: localhost:4242

# Number of simulated cores.
# cores: 1

# Bound on a continue operation in seconds, 0 disables the timeout.
# continue-timeout: 0

# End the server on a kill packet instead of resetting the target.
# exit-on-kill: false

# Mark a core dead once it performs an exit system call.
# kill-core-on-exit: false
`)
	return err
}

// createConfigPath creates the directory structure at which all config files are saved.
func createConfigPath() error {
	path, err := GetConfigFilePath("")
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0700)
}

// GetConfigFilePath gets the full path to the given config file name.
func GetConfigFilePath(file string) (string, error) {
	userHomeDir := "."
	usr, err := user.Current()
	if err == nil {
		userHomeDir = usr.HomeDir
	}
	return path.Join(userHomeDir, configDir, file), nil
}
