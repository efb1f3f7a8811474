package main

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/kgricour/archethic-node/crypto"
	"github.com/kgricour/archethic-node/utils"
)

type config struct {
	IP                string    `json:"ip"`
	Port              int       `json:"port"`
	HTTPPort          int       `json:"http_port"`
	Patch             string    `json:"patch"`
	DataPath          string    `json:"data_path"`
	Key               keyConfig `json:"key"`
	LogLevel          string    `json:"log_level"`
	ContentMaxSize    int       `json:"content_max_size"`
	MiningTimeoutSecs int       `json:"mining_timeout"`
	AllowedKeyOrigins []string  `json:"allowed_key_origins"`
}

type keyConfig struct {
	Type int    `json:"type"`
	Path string `json:"path"`
}

func parseConfig(cf string) (*config, error) {
	if len(cf) == 0 {
		return nil, fmt.Errorf("miss config file")
	}

	if err := utils.AccessCheck(cf); err != nil {
		return nil, err
	}

	jsonContent, err := ioutil.ReadFile(cf)
	if err != nil {
		return nil, fmt.Errorf("read config file failed:%v", err)
	}

	conf := &config{}
	if err := json.Unmarshal(jsonContent, &conf); err != nil {
		return nil, fmt.Errorf("config parse failed:%v", err)
	}

	if err := verifyConfig(conf); err != nil {
		return nil, err
	}

	return conf, nil
}

func verifyConfig(c *config) error {
	if ip := net.ParseIP(c.IP); ip == nil || ip.To4() == nil {
		return fmt.Errorf("invalid IPv4:%s", c.IP)
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port:%d", c.Port)
	}

	if c.HTTPPort < 0 || c.HTTPPort > 65535 || c.HTTPPort == c.Port {
		return fmt.Errorf("invalid http port:%d", c.HTTPPort)
	}

	if len(c.Patch) != 3 {
		return fmt.Errorf("invalid network patch:%s", c.Patch)
	}

	if err := utils.AccessCheck(c.DataPath); err != nil {
		return err
	}

	if c.Key.Type != crypto.PlainSeedType && c.Key.Type != crypto.SealedSeedType {
		return fmt.Errorf("invalid key type")
	}

	if err := utils.AccessCheck(c.Key.Path); err != nil {
		return err
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level:%s", c.LogLevel)
	}

	if c.ContentMaxSize < 0 {
		return fmt.Errorf("invalid content max size:%d", c.ContentMaxSize)
	}

	if c.MiningTimeoutSecs < 0 {
		return fmt.Errorf("invalid mining timeout:%d", c.MiningTimeoutSecs)
	}

	for _, origin := range c.AllowedKeyOrigins {
		if _, err := crypto.OriginFromName(origin); err != nil {
			return err
		}
	}

	return nil
}

func (c *config) keyOrigins() []uint8 {
	var result []uint8
	for _, origin := range c.AllowedKeyOrigins {
		id, _ := crypto.OriginFromName(origin)
		result = append(result, id)
	}
	return result
}
