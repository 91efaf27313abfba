package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile describes one remote FTP endpoint.
type Profile struct {
	Name     string        `yaml:"name"`
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	User     string        `yaml:"user"`
	Password string        `yaml:"password"`
	TLS      bool          `yaml:"tls"`
	Timeout  time.Duration `yaml:"timeout"`
}

// profilesFile mirrors the `ftp.connections` layout of the deployment config.
type profilesFile struct {
	FTP struct {
		Connections []Profile `yaml:"connections"`
	} `yaml:"ftp"`
}

const defaultFTPPort = 21

// LoadProfiles reads connection profiles from a YAML file.
func LoadProfiles(path string) ([]Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles file: %w", err)
	}
	return ParseProfiles(data)
}

// ParseProfiles decodes a profiles document and fills in defaults.
func ParseProfiles(data []byte) ([]Profile, error) {
	var f profilesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}
	if len(f.FTP.Connections) == 0 {
		return nil, errors.New("profiles: ftp.connections is empty")
	}

	profiles := f.FTP.Connections
	for i := range profiles {
		p := &profiles[i]
		if p.Host == "" {
			return nil, fmt.Errorf("profiles: connection %d has no host", i)
		}
		if p.Port == 0 {
			p.Port = defaultFTPPort
		}
		if p.User == "" {
			p.User = "anonymous"
		}
		if p.Name == "" {
			p.Name = fmt.Sprintf("connection-%d", i)
		}
	}
	return profiles, nil
}
