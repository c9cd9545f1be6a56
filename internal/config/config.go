package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Antenna AntennaConfig `yaml:"antenna"`
	Ntrip   *NtripConfig  `yaml:"ntrip"`
	Publish PublishConfig `yaml:"publish"`
}

type AntennaConfig struct {
	Device         string `yaml:"device"`
	Baud           int    `yaml:"baud"`
	DataBits       int    `yaml:"data_bits"`
	StopBits       int    `yaml:"stop_bits"`
	Parity         string `yaml:"parity"`
	FlowControl    string `yaml:"flow_control"`
	ReadBufferSize int    `yaml:"read_buffer_size"`
	MountOffsetCM  int    `yaml:"mount_offset_cm"`
}

type NtripConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Mountpoint     string        `yaml:"mountpoint"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	ReadBufferSize int           `yaml:"read_buffer_size"`
	KeepAlive      time.Duration `yaml:"keep_alive"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
}

type PublishConfig struct {
	MQTT *MQTTConfig `yaml:"mqtt"`
	UDP  *UDPConfig  `yaml:"udp"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
}

type UDPConfig struct {
	Dest string `yaml:"dest"`
}

var validParity = map[string]bool{
	"none": true, "odd": true, "even": true, "mark": true, "space": true,
}

var validFlowControl = map[string]bool{
	"none": true, "rtscts": true, "dsrdtr": true, "xonxoff": true,
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if cfg.Antenna.Device == "" {
		return Config{}, fmt.Errorf("antenna.device is required")
	}
	if cfg.Antenna.Baud <= 0 {
		cfg.Antenna.Baud = 9600
	}
	if cfg.Antenna.DataBits <= 0 {
		cfg.Antenna.DataBits = 8
	}
	if cfg.Antenna.StopBits <= 0 {
		cfg.Antenna.StopBits = 1
	}
	if cfg.Antenna.Parity == "" {
		cfg.Antenna.Parity = "none"
	}
	if !validParity[cfg.Antenna.Parity] {
		return Config{}, fmt.Errorf("antenna.parity must be one of none, odd, even, mark, space")
	}
	if cfg.Antenna.FlowControl == "" {
		cfg.Antenna.FlowControl = "none"
	}
	if !validFlowControl[cfg.Antenna.FlowControl] {
		return Config{}, fmt.Errorf("antenna.flow_control must be one of none, rtscts, dsrdtr, xonxoff")
	}
	if cfg.Antenna.ReadBufferSize <= 0 {
		cfg.Antenna.ReadBufferSize = 1024
	}
	if cfg.Antenna.MountOffsetCM < 0 {
		return Config{}, fmt.Errorf("antenna.mount_offset_cm must be >= 0")
	}

	if cfg.Ntrip != nil {
		if cfg.Ntrip.Host == "" {
			return Config{}, fmt.Errorf("ntrip.host is required when ntrip is configured")
		}
		if cfg.Ntrip.Mountpoint == "" {
			return Config{}, fmt.Errorf("ntrip.mountpoint is required when ntrip is configured")
		}
		if cfg.Ntrip.Port <= 0 {
			cfg.Ntrip.Port = 2101
		}
		if cfg.Ntrip.ReadBufferSize <= 0 {
			cfg.Ntrip.ReadBufferSize = 1024
		}
		if cfg.Ntrip.KeepAlive <= 0 {
			cfg.Ntrip.KeepAlive = 10 * time.Second
		}
		if cfg.Ntrip.ReadTimeout <= 0 {
			cfg.Ntrip.ReadTimeout = 60 * time.Second
		}
	}

	if cfg.Publish.MQTT != nil {
		if cfg.Publish.MQTT.Broker == "" {
			return Config{}, fmt.Errorf("publish.mqtt.broker is required when publish.mqtt is configured")
		}
		if cfg.Publish.MQTT.Topic == "" {
			return Config{}, fmt.Errorf("publish.mqtt.topic is required when publish.mqtt is configured")
		}
		if cfg.Publish.MQTT.ClientID == "" {
			cfg.Publish.MQTT.ClientID = "gnssrover"
		}
	}
	if cfg.Publish.UDP != nil && cfg.Publish.UDP.Dest == "" {
		return Config{}, fmt.Errorf("publish.udp.dest is required when publish.udp is configured")
	}

	return cfg, nil
}
